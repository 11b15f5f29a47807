package shopify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

// orderFields is the field list requested on every order listing.
const orderFields = "id,name,phone,customer,billing_address,shipping_address,created_at,fulfillment_status,tags,note,cancelled_at,cancel_reason,total_price"

type wireAddress struct {
	Phone string `json:"phone"`
}

type wireCustomer struct {
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type wireOrder struct {
	ID                json.Number   `json:"id"`
	Name              string        `json:"name"`
	Phone             string        `json:"phone"`
	Customer          *wireCustomer `json:"customer"`
	BillingAddress    *wireAddress  `json:"billing_address"`
	ShippingAddress   *wireAddress  `json:"shipping_address"`
	CreatedAt         time.Time     `json:"created_at"`
	FulfillmentStatus string        `json:"fulfillment_status"`
	Tags              string        `json:"tags"`
	Note              string        `json:"note"`
	CancelledAt       *time.Time    `json:"cancelled_at"`
	CancelReason      string        `json:"cancel_reason"`
	TotalPrice        string        `json:"total_price"`
}

type orderEnvelope struct {
	Order wireOrder `json:"order"`
}

type ordersEnvelope struct {
	Orders []wireOrder `json:"orders"`
}

type ShopInfo struct {
	ID     json.Number `json:"id"`
	Name   string      `json:"name"`
	Domain string      `json:"domain"`
	Email  string      `json:"email"`
}

type shopEnvelope struct {
	Shop ShopInfo `json:"shop"`
}

func (o wireOrder) toOrder() dupes.Order {
	order := dupes.Order{
		ID:                o.ID.String(),
		Name:              o.Name,
		CreatedAt:         o.CreatedAt.UTC(),
		FulfillmentStatus: dupes.FulfillmentStatus(o.FulfillmentStatus),
		Phone:             o.Phone,
		TotalPrice:        o.TotalPrice,
		Tags:              dupes.ParseTags(o.Tags),
		Note:              o.Note,
		CancelReason:      o.CancelReason,
	}
	if o.Customer != nil {
		order.CustomerPhone = o.Customer.Phone
		order.CustomerName = strings.TrimSpace(o.Customer.FirstName + " " + o.Customer.LastName)
	}
	if o.BillingAddress != nil {
		order.BillingPhone = o.BillingAddress.Phone
	}
	if o.ShippingAddress != nil {
		order.ShippingPhone = o.ShippingAddress.Phone
	}
	if o.CancelledAt != nil {
		cancelledAt := o.CancelledAt.UTC()
		order.CancelledAt = &cancelledAt
	}
	return order
}

var ErrInvalidOrderPayload = errors.New("invalid order payload")

// ParseOrder decodes a single order as delivered in an orders/create webhook.
func ParseOrder(data []byte) (dupes.Order, error) {
	if err := validateWebhookOrder(data); err != nil {
		return dupes.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrderPayload, err)
	}
	var wire wireOrder
	if err := json.Unmarshal(data, &wire); err != nil {
		return dupes.Order{}, fmt.Errorf("%w: %v", ErrInvalidOrderPayload, err)
	}
	if strings.TrimSpace(wire.ID.String()) == "" {
		return dupes.Order{}, fmt.Errorf("%w: missing id", ErrInvalidOrderPayload)
	}
	return wire.toOrder(), nil
}
