package dupes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeStore is an in-memory OrderDirectory and OrderMutator with per-order
// failure injection.
type fakeStore struct {
	mu       sync.Mutex
	ids      []string
	orders   map[string]Order
	fetchErr error
	failures map[string]map[Step]error
	calls    []string
}

func newFakeStore(orders ...Order) *fakeStore {
	s := &fakeStore{orders: map[string]Order{}, failures: map[string]map[Step]error{}}
	for _, order := range orders {
		s.ids = append(s.ids, order.ID)
		s.orders[order.ID] = order
	}
	return s
}

func (s *fakeStore) failOn(orderID string, step Step, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[orderID] == nil {
		s.failures[orderID] = map[Step]error{}
	}
	s.failures[orderID][step] = err
}

func (s *fakeStore) injected(orderID string, step Step) error {
	if steps, ok := s.failures[orderID]; ok {
		return steps[step]
	}
	return nil
}

func (s *fakeStore) get(orderID string) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[orderID]
}

func (s *fakeStore) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeStore) FetchOrdersCreatedSince(_ context.Context, since time.Time) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := []Order{}
	for _, id := range s.ids {
		order := s.orders[id]
		if !order.CreatedAt.Before(since) {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *fakeStore) FetchCanceledOrders(context.Context) ([]Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	out := []Order{}
	for _, id := range s.ids {
		if order := s.orders[id]; order.Canceled() {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *fakeStore) FetchOrder(_ context.Context, orderID string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected(orderID, StepFetch); err != nil {
		return Order{}, err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *fakeStore) SetTags(_ context.Context, orderID string, tags Tags) error {
	return s.mutate(orderID, StepTag, func(order *Order) {
		order.Tags = append(Tags{}, tags...)
	})
}

func (s *fakeStore) SetNote(_ context.Context, orderID string, note string) error {
	return s.mutate(orderID, StepNote, func(order *Order) {
		order.Note = note
	})
}

var errAlreadyCanceled = errors.New("order is already canceled")

func (s *fakeStore) Cancel(_ context.Context, orderID string, opts CancelOptions) error {
	s.mu.Lock()
	canceled := s.orders[orderID].Canceled()
	s.mu.Unlock()
	if canceled {
		s.mu.Lock()
		s.calls = append(s.calls, string(StepCancel)+":"+orderID)
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errAlreadyCanceled, orderID)
	}
	return s.mutate(orderID, StepCancel, func(order *Order) {
		at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
		order.CancelledAt = &at
		order.CancelReason = opts.Reason
	})
}

func (s *fakeStore) Reopen(_ context.Context, orderID string) error {
	return s.mutate(orderID, StepReopen, func(order *Order) {
		order.CancelledAt = nil
		order.CancelReason = ""
	})
}

func (s *fakeStore) mutate(orderID string, step Step, apply func(*Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, string(step)+":"+orderID)
	if err := s.injected(orderID, step); err != nil {
		return err
	}
	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	apply(&order)
	s.orders[orderID] = order
	return nil
}

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func daysAgo(days int) time.Time {
	return testNow.Add(-time.Duration(days) * 24 * time.Hour)
}

func testOrder(id, name, phone string, status FulfillmentStatus, created time.Time) Order {
	return Order{
		ID:                id,
		Name:              name,
		CustomerPhone:     phone,
		FulfillmentStatus: status,
		CreatedAt:         created,
		Tags:              Tags{},
	}
}
