// Package knowledge turns a persona's reference corpus into a single block of
// prompt text. Results are cached per persona for a fixed TTL; individual
// file failures are replaced by placeholders and never fail a load.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL matches the refresh interval of the reference corpus.
const DefaultTTL = 5 * time.Minute

const defaultParallelism = 8

// Options tunes a Loader.
type Options struct {
	TTL         time.Duration
	Parallelism int
}

type entry struct {
	content  string
	loadedAt time.Time
}

// Loader reads persona namespaces from fsys.
type Loader struct {
	fsys     fs.FS
	registry *persona.Registry
	ttl      time.Duration
	parallel int
	logger   *slog.Logger
	clock    func() time.Time

	mu    sync.Mutex
	cache map[persona.ID]entry
	group singleflight.Group

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

// NewLoader creates a loader over fsys. A nil fsys yields empty context for
// every persona.
func NewLoader(fsys fs.FS, registry *persona.Registry, opts Options, logger *slog.Logger) *Loader {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	l := &Loader{
		fsys:     fsys,
		registry: registry,
		ttl:      opts.TTL,
		parallel: opts.Parallelism,
		logger:   logger.With(slog.String("component", "knowledge")),
		clock:    time.Now,
		cache:    make(map[persona.ID]entry),
	}
	meter := otel.Meter("github.com/alecci-media/boardroom/knowledge")
	l.hits, _ = meter.Int64Counter("boardroom.knowledge.cache_hits", metric.WithDescription("Knowledge loads served from cache"))
	l.misses, _ = meter.Int64Counter("boardroom.knowledge.cache_misses", metric.WithDescription("Knowledge loads that read the corpus"))
	return l
}

// Load returns the knowledge context for id. Errors are an unknown persona
// or ctx ending first; a missing namespace yields an empty string. The read
// itself is shared by concurrent callers and is not cut short when one of
// them goes away, so a cached entry is always a complete read.
func (l *Loader) Load(ctx context.Context, id persona.ID) (string, error) {
	p, err := l.registry.Get(id)
	if err != nil {
		return "", err
	}
	if content, ok := l.cached(id); ok {
		l.record(ctx, l.hits, id)
		return content, nil
	}
	l.record(ctx, l.misses, id)

	readCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(string(id), func() (any, error) {
		var content string
		if p.Composite() {
			content = l.loadComposite(readCtx, p)
		} else {
			content = l.readNamespace(readCtx, p.KnowledgeNamespace)
		}
		l.mu.Lock()
		l.cache[id] = entry{content: content, loadedAt: l.clock()}
		l.mu.Unlock()
		return content, nil
	})
	select {
	case res := <-ch:
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached context for the given personas.
func (l *Loader) Invalidate(ids ...persona.ID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.cache, id)
	}
}

// Purge drops every cached entry.
func (l *Loader) Purge() {
	l.mu.Lock()
	l.cache = make(map[persona.ID]entry)
	l.mu.Unlock()
}

func (l *Loader) cached(id persona.ID) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[id]
	if !ok {
		return "", false
	}
	if l.clock().Sub(e.loadedAt) >= l.ttl {
		delete(l.cache, id)
		return "", false
	}
	return e.content, true
}

// loadComposite concatenates each constituent's context plus the shared
// namespace. Constituents are never composite, so this does not recurse.
func (l *Loader) loadComposite(ctx context.Context, p persona.Persona) string {
	var b strings.Builder
	for _, cid := range p.Constituents {
		constituent, err := l.registry.Get(cid)
		if err != nil {
			l.logger.Warn("composite constituent missing", slog.String("persona", string(p.ID)), slogError(err))
			continue
		}
		content, ok := l.cached(cid)
		if !ok {
			content = l.readNamespace(ctx, constituent.KnowledgeNamespace)
			l.mu.Lock()
			l.cache[cid] = entry{content: content, loadedAt: l.clock()}
			l.mu.Unlock()
		}
		fmt.Fprintf(&b, "\n\n=== %s's Knowledge ===\n%s", constituent.FirstName(), content)
	}
	if p.SharedNamespace != "" {
		if shared := l.readNamespace(ctx, p.SharedNamespace); shared != "" {
			fmt.Fprintf(&b, "\n\n=== Shared Knowledge ===\n%s", shared)
		}
	}
	return b.String()
}

func (l *Loader) readNamespace(ctx context.Context, namespace string) string {
	if l.fsys == nil || namespace == "" {
		return ""
	}
	return l.readDir(ctx, namespace)
}

func (l *Loader) readDir(ctx context.Context, dir string) string {
	entries, err := fs.ReadDir(l.fsys, dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("knowledge directory unreadable", slog.String("dir", dir), slogError(err))
		}
		return ""
	}

	var files, dirs []fs.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else if e.Type().IsRegular() {
			files = append(files, e)
		}
	}

	sections := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.parallel)
	for i, f := range files {
		g.Go(func() error {
			sections[i] = fmt.Sprintf("\n\n--- %s ---\n%s", f.Name(), l.readFile(gctx, path.Join(dir, f.Name())))
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s)
	}
	for _, d := range dirs {
		if sub := l.readDir(ctx, path.Join(dir, d.Name())); sub != "" {
			fmt.Fprintf(&b, "\n\n=== Folder: %s ===\n%s", d.Name(), sub)
		}
	}
	return b.String()
}

func (l *Loader) readFile(ctx context.Context, name string) string {
	if ctx.Err() != nil {
		return readErrorPlaceholder
	}
	base := path.Base(name)
	format := formatFor(base)
	if format.skip != "" {
		return format.skip
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		l.logger.Warn("knowledge file unreadable", slog.String("file", name), slogError(err))
		return readErrorPlaceholder
	}
	text, err := format.parse(data)
	if err != nil {
		l.logger.Warn("knowledge file parse failed", slog.String("file", name), slogError(err))
		return format.failed
	}
	if strings.TrimSpace(text) == "" && format.empty != "" {
		return format.empty
	}
	return text
}

func (l *Loader) record(ctx context.Context, counter metric.Int64Counter, id persona.ID) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("persona", string(id))))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
