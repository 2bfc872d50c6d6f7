package knowledge

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/fsnotify/fsnotify"
)

// Watch invalidates cached context whenever a file under root changes. root
// must be the on-disk directory backing the loader's filesystem. The watcher
// stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create knowledge watcher: %w", err)
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch knowledge root: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Has(fsnotify.Create) {
					if info, err := statDir(evt.Name); err == nil && info {
						_ = watcher.Add(evt.Name)
					}
				}
				ids := l.affected(namespaceOf(root, evt.Name))
				l.Invalidate(ids...)
				l.logger.Debug("knowledge changed", slog.String("path", evt.Name), slog.Int("invalidated", len(ids)))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("knowledge watcher error", slogError(err))
			}
		}
	}()
	return nil
}

// affected lists the personas whose context depends on namespace, including
// composites that embed them.
func (l *Loader) affected(namespace string) []persona.ID {
	var ids []persona.ID
	direct := make(map[persona.ID]bool)
	for _, p := range l.registry.List() {
		if namespace == "" || p.KnowledgeNamespace == namespace || p.SharedNamespace == namespace {
			ids = append(ids, p.ID)
			direct[p.ID] = true
		}
	}
	for _, p := range l.registry.List() {
		if direct[p.ID] {
			continue
		}
		for _, c := range p.Constituents {
			if direct[c] {
				ids = append(ids, p.ID)
				break
			}
		}
	}
	return ids
}

func namespaceOf(root, name string) string {
	rel, err := filepath.Rel(root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0]
}

func statDir(name string) (bool, error) {
	info, err := os.Stat(name)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
