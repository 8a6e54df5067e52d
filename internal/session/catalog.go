package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/RenatoCabral2022/hypnotone/internal/metrics"
)

// reloadDebounce collapses the burst of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Catalog serves the sessions loaded from a JSON file and reloads them
// when the file changes.
type Catalog struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	sessions []Session
	lastErr  error
	loadedAt time.Time
}

// NewCatalog creates an empty catalog for path. Call Reload to populate it.
func NewCatalog(path string, logger *zap.Logger) *Catalog {
	return &Catalog{
		path:     path,
		logger:   logger.With(zap.String("catalog", path)),
		sessions: []Session{},
	}
}

// Reload re-reads the catalog file. A failed load leaves the catalog empty
// and records the error; it never keeps a stale list.
func (c *Catalog) Reload() error {
	sessions, err := LoadFile(c.path)

	c.mu.Lock()
	c.sessions = sessions
	c.lastErr = err
	c.loadedAt = time.Now()
	c.mu.Unlock()
	metrics.CatalogSessions.Set(float64(len(sessions)))

	if err != nil {
		metrics.CatalogReloadsTotal.WithLabelValues("error").Inc()
		c.logger.Warn("failed to load sessions", zap.Error(err))
		return err
	}
	metrics.CatalogReloadsTotal.WithLabelValues("success").Inc()
	c.logger.Info("sessions loaded", zap.Int("count", len(sessions)))
	return nil
}

// Sessions returns a copy of the loaded sessions in file order.
func (c *Catalog) Sessions() []Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// Get looks up a session by id.
func (c *Catalog) Get(id string) (Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: %s", ErrUnknownSession, id)
}

// LastError returns the error from the most recent load, if any.
func (c *Catalog) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LoadedAt returns when the catalog was last (re)loaded.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Watch reloads the catalog whenever its file is written, created or
// renamed into place. It blocks until ctx is cancelled.
//
// The containing directory is watched rather than the file so that
// editors replacing the file atomically are still seen.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(c.path), err)
	}
	target := filepath.Clean(c.path)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounce = time.After(reloadDebounce)
		case <-debounce:
			debounce = nil
			c.Reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("catalog watcher error", zap.Error(err))
		}
	}
}
