package settings

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

type StoreOptions struct {
	Logger *slog.Logger
	// Defaults seeds the store when the backend is empty. Zero value means
	// dupes.DefaultSettings().
	Defaults *dupes.Settings
}

// Store is the process-wide settings holder. Scans read a snapshot through
// Get; nothing in the engine keeps a reference to it.
type Store struct {
	backend Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	current dupes.Settings

	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

func Open(ctx context.Context, backend Backend, opts StoreOptions) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := dupes.DefaultSettings()
	if opts.Defaults != nil {
		defaults = opts.Defaults.Normalize()
	}
	s := &Store{
		backend: backend,
		logger:  logger.With("component", "settings"),
		current: defaults,
	}
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		s.current = loaded.Normalize()
	}

	if watcher, ok := backend.(Watcher); ok {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		s.watchDone = make(chan struct{})
		go func() {
			defer close(s.watchDone)
			if err := watcher.Watch(watchCtx, func() { s.reload(watchCtx) }); err != nil {
				s.logger.Error("settings watcher stopped", "error", err)
			}
		}()
	}
	return s, nil
}

func (s *Store) Get() dupes.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies patch, persists the result and only then makes it visible.
func (s *Store) Update(ctx context.Context, patch Patch) (dupes.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := patch.Apply(s.current)
	if err := s.backend.Save(ctx, next); err != nil {
		return s.current, err
	}
	s.current = next
	s.logger.Info("settings updated",
		"search_days", next.SearchDays,
		"tag_name", next.TagName,
		"auto_cancel", next.AutoCancel,
		"webhook_enabled", next.WebhookEnabled)
	return next, nil
}

// Reload re-reads the backend. An empty backend keeps the current value.
func (s *Store) Reload(ctx context.Context) error {
	loaded, err := s.backend.Load(ctx)
	if err != nil {
		return err
	}
	if loaded == nil {
		return nil
	}
	next := loaded.Normalize()
	s.mu.Lock()
	changed := next != s.current
	s.current = next
	s.mu.Unlock()
	if changed {
		s.logger.Info("settings reloaded from backend", "search_days", next.SearchDays, "auto_cancel", next.AutoCancel)
	}
	return nil
}

func (s *Store) reload(ctx context.Context) {
	if err := s.Reload(ctx); err != nil {
		s.logger.Warn("settings reload failed", "error", err)
	}
}

func (s *Store) Close() error {
	if s.watchCancel != nil {
		s.watchCancel()
		<-s.watchDone
	}
	return s.backend.Close()
}
