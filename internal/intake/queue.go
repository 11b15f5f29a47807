package intake

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
	ErrQueueFull      = errors.New("event queue is full")
	ErrClosed         = errors.New("dispatcher is closed")
)

const defaultQueueCapacity = 1024

// Event is one orders/create delivery waiting for an incremental check.
type Event struct {
	ID         string      `json:"id"`
	Topic      string      `json:"topic,omitempty"`
	ShopDomain string      `json:"shopDomain,omitempty"`
	Order      dupes.Order `json:"order"`
	ReceivedAt time.Time   `json:"receivedAt"`
	Attempt    int         `json:"attempt,omitempty"`
}

func (e Event) valid() bool {
	return strings.TrimSpace(e.ID) != "" && strings.TrimSpace(e.Order.ID) != ""
}

func encodeEvent(e Event) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, err
	}
	return e, nil
}

type Queue interface {
	TryEnqueue(event Event) bool
	Enqueue(ctx context.Context, event Event) bool
	Dequeue(ctx context.Context) (Event, bool)
	Depth() int
	Capacity() int
	Close() error
}

type memoryQueue struct {
	ch chan Event
}

func NewMemoryQueue(capacity int) Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &memoryQueue{ch: make(chan Event, capacity)}
}

func (q *memoryQueue) TryEnqueue(event Event) bool {
	if q == nil || !event.valid() {
		return false
	}
	select {
	case q.ch <- event:
		return true
	default:
		return false
	}
}

func (q *memoryQueue) Enqueue(ctx context.Context, event Event) bool {
	if q == nil || !event.valid() {
		return false
	}
	select {
	case q.ch <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *memoryQueue) Dequeue(ctx context.Context) (Event, bool) {
	if q == nil {
		return Event{}, false
	}
	select {
	case event := <-q.ch:
		return event, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (q *memoryQueue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *memoryQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

func (q *memoryQueue) Close() error {
	return nil
}
