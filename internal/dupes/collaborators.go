package dupes

import (
	"context"
	"time"
)

type OrderDirectory interface {
	FetchOrdersCreatedSince(ctx context.Context, since time.Time) ([]Order, error)
	FetchCanceledOrders(ctx context.Context) ([]Order, error)
}

// OrderMutator only supports whole-field replacement of tags and note, so
// union and append are done by the engine after a FetchOrder.
type OrderMutator interface {
	FetchOrder(ctx context.Context, orderID string) (Order, error)
	SetTags(ctx context.Context, orderID string, tags Tags) error
	SetNote(ctx context.Context, orderID string, note string) error
	Cancel(ctx context.Context, orderID string, opts CancelOptions) error
	Reopen(ctx context.Context, orderID string) error
}

type CancelOptions struct {
	Reason         string `json:"reason"`
	NotifyCustomer bool   `json:"email"`
	Refund         bool   `json:"refund"`
	Note           string `json:"note,omitempty"`
}

const CancelReasonOther = "other"
