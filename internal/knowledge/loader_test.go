package knowledge

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/alecci-media/boardroom/internal/persona"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingFS counts Open calls and can fail specific paths.
type countingFS struct {
	fs    fs.FS
	opens atomic.Int64
	fail  map[string]bool
}

func (c *countingFS) Open(name string) (fs.File, error) {
	c.opens.Add(1)
	if c.fail[name] {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
	}
	return c.fs.Open(name)
}

func corpus() fstest.MapFS {
	return fstest.MapFS{
		"Alexandria/brand.md":          {Data: []byte("# Brand playbook")},
		"Alexandria/notes.txt":         {Data: []byte("launch notes")},
		"Alexandria/campaigns/q1.md":   {Data: []byte("q1 plan")},
		"Kim/pipeline.md":              {Data: []byte("pipeline stages")},
		"Kim and Alex shared/gtm.md":   {Data: []byte("go to market")},
		"Kim and Alex shared/demo.mp4": {Data: []byte{0, 1, 2}},
	}
}

func newTestLoader(fsys fs.FS) (*Loader, *time.Time) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLoader(fsys, persona.Default(), Options{}, newLogger())
	l.clock = func() time.Time { return now }
	return l, &now
}

func TestLoadSinglePersona(t *testing.T) {
	l, _ := newTestLoader(corpus())
	got, err := l.Load(context.Background(), persona.Alexandria)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, want := range []string{"--- brand.md ---\n# Brand playbook", "--- notes.txt ---\nlaunch notes", "=== Folder: campaigns ===", "q1 plan"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
	if strings.Index(got, "notes.txt") > strings.Index(got, "Folder: campaigns") {
		t.Fatalf("files should precede sub folders")
	}
}

func TestLoadCachesWithinTTL(t *testing.T) {
	cfs := &countingFS{fs: corpus()}
	l, now := newTestLoader(cfs)
	ctx := context.Background()

	first, err := l.Load(ctx, persona.Kim)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	opens := cfs.opens.Load()
	if opens == 0 {
		t.Fatalf("expected the corpus to be read")
	}

	*now = now.Add(4 * time.Minute)
	second, _ := l.Load(ctx, persona.Kim)
	if second != first {
		t.Fatalf("cached output differs")
	}
	if cfs.opens.Load() != opens {
		t.Fatalf("expected cache hit without reads, opens went %d -> %d", opens, cfs.opens.Load())
	}

	*now = now.Add(2 * time.Minute)
	if _, err := l.Load(ctx, persona.Kim); err != nil {
		t.Fatalf("load after expiry: %v", err)
	}
	if cfs.opens.Load() == opens {
		t.Fatalf("expected a fresh read after TTL expiry")
	}
}

func TestLoadAbsorbsPartialFailures(t *testing.T) {
	fsys := fstest.MapFS{
		"Kim/a.md":     {Data: []byte("alpha")},
		"Kim/b.txt":    {Data: []byte("bravo")},
		"Kim/c.md":     {Data: []byte("charlie")},
		"Kim/d.md":     {Data: []byte("delta")},
		"Kim/bad.pdf":  {Data: []byte("this is not a pdf")},
		"Kim/gone.txt": {Data: []byte("never read")},
	}
	cfs := &countingFS{fs: fsys, fail: map[string]bool{"Kim/gone.txt": true}}
	l, _ := newTestLoader(cfs)

	got, err := l.Load(context.Background(), persona.Kim)
	if err != nil {
		t.Fatalf("load should not fail: %v", err)
	}
	for _, want := range []string{"alpha", "bravo", "charlie", "delta", "--- bad.pdf ---\n[Error parsing PDF file]", "--- gone.txt ---\n[Error reading file]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output:\n%s", want, got)
		}
	}
}

func TestLoadMissingNamespace(t *testing.T) {
	l, _ := newTestLoader(fstest.MapFS{})
	got, err := l.Load(context.Background(), persona.Alexandria)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}
}

func TestLoadUnknownPersona(t *testing.T) {
	l, _ := newTestLoader(corpus())
	if _, err := l.Load(context.Background(), "nobody"); !errors.Is(err, persona.ErrUnknownPersona) {
		t.Fatalf("expected ErrUnknownPersona, got %v", err)
	}
}

func TestLoadComposite(t *testing.T) {
	l, _ := newTestLoader(corpus())
	got, err := l.Load(context.Background(), persona.Collaborative)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	alex := strings.Index(got, "=== Alexandria's Knowledge ===")
	kim := strings.Index(got, "=== Kim's Knowledge ===")
	shared := strings.Index(got, "=== Shared Knowledge ===")
	if alex < 0 || kim < alex || shared < kim {
		t.Fatalf("unexpected composite layout:\n%s", got)
	}
	if !strings.Contains(got, "[Media file: demo.mp4 - content not extracted]") {
		t.Fatalf("expected media placeholder in shared knowledge:\n%s", got)
	}
}

func TestInvalidateAffectsComposites(t *testing.T) {
	l, _ := newTestLoader(corpus())
	ids := l.affected("Kim")
	want := map[persona.ID]bool{persona.Kim: true, persona.Collaborative: true}
	if len(ids) != len(want) {
		t.Fatalf("unexpected affected set %v", ids)
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("unexpected affected persona %q", id)
		}
	}
}

func TestFormatPlaceholders(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "deck.pptx", want: "[Media file: deck.pptx - content not extracted]"},
		{name: "data.json", want: "[Unsupported file format: .json]"},
	}
	for _, tc := range tests {
		if got := formatFor(tc.name).skip; got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestWatchInvalidatesOnChange(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Kim")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file := filepath.Join(dir, "pipeline.md")
	if err := os.WriteFile(file, []byte("pipeline stages"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l, _ := newTestLoader(os.DirFS(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := l.Load(ctx, persona.Kim)
	if err != nil || !strings.Contains(got, "pipeline stages") {
		t.Fatalf("initial load: %q, %v", got, err)
	}
	if err := l.Watch(ctx, root); err != nil {
		t.Fatalf("watch: %v", err)
	}
	if err := os.WriteFile(file, []byte("revised stages"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err = l.Load(ctx, persona.Kim)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if strings.Contains(got, "revised stages") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("cache was not invalidated after change:\n%s", got)
}

func TestCancelledLoadDoesNotPoisonCache(t *testing.T) {
	l, _ := newTestLoader(corpus())
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for _, id := range []persona.ID{persona.Kim, persona.Collaborative} {
		if got, err := l.Load(cancelled, id); err == nil && strings.Contains(got, readErrorPlaceholder) {
			t.Fatalf("cancelled load of %s returned placeholders:\n%s", id, got)
		}
	}
	for _, id := range []persona.ID{persona.Kim, persona.Collaborative} {
		got, err := l.Load(context.Background(), id)
		if err != nil {
			t.Fatalf("load %s: %v", id, err)
		}
		if strings.Contains(got, readErrorPlaceholder) || !strings.Contains(got, "pipeline stages") {
			t.Fatalf("cache for %s holds a partial read:\n%s", id, got)
		}
	}
}
