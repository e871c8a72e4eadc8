package persona

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Store holds the active tables and swaps them when the override file changes.
type Store struct {
	path    string
	log     *slog.Logger
	current atomic.Pointer[Tables]
}

// NewStore loads the embedded tables plus the optional override file at path.
func NewStore(path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	tables, err := LoadTables(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, log: log.With(slog.String("component", "persona"))}
	s.current.Store(tables)
	return s, nil
}

// NewStaticStore wraps fixed tables; Watch is a no-op for it.
func NewStaticStore(t *Tables) *Store {
	s := &Store{log: slog.Default()}
	s.current.Store(t)
	return s
}

// Tables returns the active table set.
func (s *Store) Tables() *Tables {
	return s.current.Load()
}

// Reload re-reads the override file. The previous tables stay active on error.
func (s *Store) Reload() error {
	tables, err := LoadTables(s.path)
	if err != nil {
		return err
	}
	s.current.Store(tables)
	return nil
}

// Watch reloads the tables whenever the override file is written, until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("persona: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("persona: watch %s: %w", s.path, err)
	}

	target := filepath.Clean(s.path)
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}
		case <-pending:
			pending = nil
			if err := s.Reload(); err != nil {
				s.log.Error("keyword tables reload failed", slog.String("path", s.path), slog.Any("error", err))
				continue
			}
			s.log.Info("keyword tables reloaded", slog.String("path", s.path))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("keyword tables watcher error", slog.Any("error", err))
		}
	}
}
