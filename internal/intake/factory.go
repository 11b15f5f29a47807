package intake

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type QueueFactory func(dsn string, capacity int) (Queue, error)

var queueRegistry = struct {
	mu        sync.RWMutex
	factories map[string]QueueFactory
}{
	factories: map[string]QueueFactory{},
}

func RegisterQueueFactory(scheme string, factory QueueFactory) {
	scheme = strings.ToLower(strings.TrimSpace(scheme))
	if scheme == "" || factory == nil {
		return
	}
	queueRegistry.mu.Lock()
	defer queueRegistry.mu.Unlock()
	queueRegistry.factories[scheme] = factory
}

func lookupQueueFactory(scheme string) (QueueFactory, bool) {
	queueRegistry.mu.RLock()
	defer queueRegistry.mu.RUnlock()
	factory, ok := queueRegistry.factories[scheme]
	return factory, ok
}

// BuildQueueFromDSN picks a queue by URL scheme. An empty DSN is an
// in-memory channel queue.
func BuildQueueFromDSN(dsn string, capacity int) (Queue, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryQueue(capacity), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if factory, ok := lookupQueueFactory(scheme); ok {
		return factory(dsn, capacity)
	}
	switch scheme {
	case "", "file":
		path, pathErr := dsnPath(parsed, dsn)
		if pathErr != nil {
			return nil, pathErr
		}
		return NewFileQueue(path, capacity)
	case "memory", "mem", "inmem":
		return NewMemoryQueue(capacity), nil
	case "postgres", "postgresql":
		return NewPostgresQueue(dsn, capacity)
	case "redis", "rediss":
		return NewRedisQueue(dsn, capacity)
	case "nats", "sqs", "kafka":
		return nil, fmt.Errorf("%w: event queue backend %s", ErrNotImplemented, scheme)
	default:
		return nil, fmt.Errorf("unsupported event queue scheme: %s", scheme)
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
