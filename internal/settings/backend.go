package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// Backend persists a single settings document. Load returns nil, nil when
// nothing has been saved yet.
type Backend interface {
	Load(ctx context.Context) (*dupes.Settings, error)
	Save(ctx context.Context, settings dupes.Settings) error
	Close() error
}

// Watcher is implemented by backends that can notice edits made outside the
// process. Watch blocks until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

type BackendFactory func(dsn string) (Backend, error)

var backendRegistry = struct {
	mu        sync.RWMutex
	factories map[string]BackendFactory
}{
	factories: map[string]BackendFactory{},
}

func RegisterBackendFactory(scheme string, factory BackendFactory) {
	scheme = normalizeScheme(scheme)
	if scheme == "" || factory == nil {
		return
	}
	backendRegistry.mu.Lock()
	defer backendRegistry.mu.Unlock()
	backendRegistry.factories[scheme] = factory
}

func lookupBackendFactory(scheme string) (BackendFactory, bool) {
	scheme = normalizeScheme(scheme)
	backendRegistry.mu.RLock()
	defer backendRegistry.mu.RUnlock()
	factory, ok := backendRegistry.factories[scheme]
	return factory, ok
}

func normalizeScheme(scheme string) string {
	return strings.ToLower(strings.TrimSpace(scheme))
}

// BuildBackendFromDSN picks a backend by URL scheme. An empty DSN is the
// in-memory backend.
func BuildBackendFromDSN(dsn string) (Backend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := normalizeScheme(parsed.Scheme)
	if factory, ok := lookupBackendFactory(scheme); ok {
		return factory(dsn)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileBackend(path), nil
	case "memory", "mem", "inmem":
		return NewMemoryBackend(), nil
	case "postgres", "postgresql":
		return NewPostgresBackend(dsn)
	case "sqlite", "sqlite3":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewSQLiteBackend(path)
	case "mysql":
		return nil, fmt.Errorf("%w: settings backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported settings backend scheme: %s", scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) (string, error) {
	if parsed == nil {
		return "", ErrInvalidInput
	}
	if strings.TrimSpace(parsed.Scheme) == "" {
		if strings.TrimSpace(raw) == "" {
			return "", ErrInvalidInput
		}
		return strings.TrimSpace(raw), nil
	}
	path := strings.TrimSpace(parsed.Host + parsed.Path)
	if path == "" {
		path = strings.TrimSpace(parsed.Opaque)
	}
	if path == "" {
		return "", ErrInvalidInput
	}
	return path, nil
}

type MemoryBackend struct {
	mu       sync.Mutex
	settings *dupes.Settings
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (b *MemoryBackend) Load(context.Context) (*dupes.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settings == nil {
		return nil, nil
	}
	clone := *b.settings
	return &clone, nil
}

func (b *MemoryBackend) Save(_ context.Context, settings dupes.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = &settings
	return nil
}

func (b *MemoryBackend) Close() error {
	return nil
}
