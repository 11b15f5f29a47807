package shopify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

// ErrAlreadyCanceled mirrors the 422 Shopify returns when canceling twice.
var ErrAlreadyCanceled = errors.New("order is already canceled")

// MemoryStore is an in-process order source used for demos, tests and the
// --mock mode. Listings are returned newest first, like the Admin API.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[string]dupes.Order
	now    func() time.Time
}

func NewMemoryStore(now func() time.Time, orders ...dupes.Order) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	store := &MemoryStore{
		orders: make(map[string]dupes.Order, len(orders)),
		now:    now,
	}
	for _, order := range orders {
		store.Put(order)
	}
	return store
}

// SampleOrders is the demo dataset: #1001/#1002 and #1004/#1005 share a phone
// and #1003 stands alone.
func SampleOrders(now time.Time) []dupes.Order {
	now = now.UTC()
	sample := func(id, name, phone string, status dupes.FulfillmentStatus, age time.Duration) dupes.Order {
		return dupes.Order{
			ID:                id,
			Name:              name,
			CreatedAt:         now.Add(-age),
			FulfillmentStatus: status,
			Phone:             phone,
			CustomerPhone:     phone,
			Tags:              dupes.Tags{},
		}
	}
	day := 24 * time.Hour
	return []dupes.Order{
		sample("12345", "#1001", "+40123456789", "", 0),
		sample("12346", "#1002", "+40123456789", dupes.FulfillmentFulfilled, day),
		sample("12347", "#1003", "+40987654321", "", 0),
		sample("12348", "#1004", "+40555999888", "", 0),
		sample("12349", "#1005", "+40555999888", dupes.FulfillmentFulfilled, 3*day),
	}
}

func (m *MemoryStore) Put(order dupes.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = cloneOrder(order)
}

// Orders returns a snapshot of every order, newest first.
func (m *MemoryStore) Orders() []dupes.Order {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(dupes.Order) bool { return true })
}

func (m *MemoryStore) FetchOrdersCreatedSince(_ context.Context, since time.Time) ([]dupes.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sorted(func(order dupes.Order) bool { return !order.CreatedAt.Before(since) }), nil
}

func (m *MemoryStore) FetchCanceledOrders(_ context.Context) ([]dupes.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.sorted(dupes.Order.Canceled)
	if len(out) > canceledPageLimit {
		out = out[:canceledPageLimit]
	}
	return out, nil
}

func (m *MemoryStore) FetchOrder(_ context.Context, orderID string) (dupes.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[strings.TrimSpace(orderID)]
	if !ok {
		return dupes.Order{}, fmt.Errorf("%w: %s", dupes.ErrOrderNotFound, orderID)
	}
	return cloneOrder(order), nil
}

func (m *MemoryStore) SetTags(_ context.Context, orderID string, tags dupes.Tags) error {
	return m.update(orderID, func(order *dupes.Order) error {
		order.Tags = append(dupes.Tags{}, tags...)
		return nil
	})
}

func (m *MemoryStore) SetNote(_ context.Context, orderID string, note string) error {
	return m.update(orderID, func(order *dupes.Order) error {
		order.Note = note
		return nil
	})
}

func (m *MemoryStore) Cancel(_ context.Context, orderID string, opts dupes.CancelOptions) error {
	return m.update(orderID, func(order *dupes.Order) error {
		if order.Canceled() {
			return fmt.Errorf("%w: %s", ErrAlreadyCanceled, orderID)
		}
		cancelledAt := m.now().UTC()
		order.CancelledAt = &cancelledAt
		order.CancelReason = opts.Reason
		if order.CancelReason == "" {
			order.CancelReason = dupes.CancelReasonOther
		}
		return nil
	})
}

func (m *MemoryStore) Reopen(_ context.Context, orderID string) error {
	return m.update(orderID, func(order *dupes.Order) error {
		order.CancelledAt = nil
		order.CancelReason = ""
		return nil
	})
}

func (m *MemoryStore) update(orderID string, apply func(*dupes.Order) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.TrimSpace(orderID)
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("%w: %s", dupes.ErrOrderNotFound, orderID)
	}
	if err := apply(&order); err != nil {
		return err
	}
	m.orders[id] = order
	return nil
}

func (m *MemoryStore) sorted(keep func(dupes.Order) bool) []dupes.Order {
	out := make([]dupes.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if keep(order) {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func cloneOrder(order dupes.Order) dupes.Order {
	order.Tags = append(dupes.Tags{}, order.Tags...)
	if order.CancelledAt != nil {
		cancelledAt := *order.CancelledAt
		order.CancelledAt = &cancelledAt
	}
	return order
}

var _ interface {
	dupes.OrderDirectory
	dupes.OrderMutator
} = (*MemoryStore)(nil)
