package dupes

import (
	"strings"
	"time"
)

type FulfillmentStatus string

const (
	FulfillmentUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentFulfilled   FulfillmentStatus = "fulfilled"
	FulfillmentPartial     FulfillmentStatus = "partial"
)

// IsUnfulfilled treats a missing status the same as "unfulfilled".
func (s FulfillmentStatus) IsUnfulfilled() bool {
	normalized := FulfillmentStatus(strings.ToLower(strings.TrimSpace(string(s))))
	return normalized == "" || normalized == FulfillmentUnfulfilled
}

type Order struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	CreatedAt         time.Time         `json:"createdAt"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillmentStatus,omitempty"`
	CustomerPhone     string            `json:"customerPhone,omitempty"`
	Phone             string            `json:"phone,omitempty"`
	BillingPhone      string            `json:"billingPhone,omitempty"`
	ShippingPhone     string            `json:"shippingPhone,omitempty"`
	CustomerName      string            `json:"customerName,omitempty"`
	TotalPrice        string            `json:"totalPrice,omitempty"`
	Tags              Tags              `json:"tags"`
	Note              string            `json:"note,omitempty"`
	CancelledAt       *time.Time        `json:"cancelledAt,omitempty"`
	CancelReason      string            `json:"cancelReason,omitempty"`
}

func (o Order) Canceled() bool {
	return o.CancelledAt != nil
}

func (o Order) displayName() string {
	if strings.TrimSpace(o.Name) != "" {
		return o.Name
	}
	return o.ID
}

func orderNames(orders []Order) []string {
	names := make([]string, 0, len(orders))
	for _, order := range orders {
		names = append(names, order.displayName())
	}
	return names
}
