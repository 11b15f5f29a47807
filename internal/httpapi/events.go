package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

const (
	defaultSubscriberBuffer = 64
	eventWriteTimeout       = 5 * time.Second
)

// EventHub fans scan transitions out to websocket subscribers. It is the
// scanner's Observer; a slow subscriber loses transitions rather than
// stalling a scan.
type EventHub struct {
	mu      sync.Mutex
	subs    map[chan dupes.Transition]struct{}
	buffer  int
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewEventHub(logger *slog.Logger, buffer int) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &EventHub{
		subs:   map[chan dupes.Transition]struct{}{},
		buffer: buffer,
		logger: logger.With("component", "events"),
	}
}

func (h *EventHub) ScanTransition(t dupes.Transition) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- t:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

// Subscribe returns a channel of transitions and a function that releases it.
// The channel is closed when the hub closes.
func (h *EventHub) Subscribe() (<-chan dupes.Transition, func()) {
	ch := make(chan dupes.Transition, h.buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

func (h *EventHub) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := conn.CloseRead(r.Context())
	transitions, release := h.Subscribe()
	defer release()
	h.logger.Debug("event subscriber connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-transitions:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := writeTransition(ctx, conn, t); err != nil {
				h.logger.Debug("event subscriber write failed", "error", err)
				return
			}
		}
	}
}

func writeTransition(ctx context.Context, conn *websocket.Conn, t dupes.Transition) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, t)
}
