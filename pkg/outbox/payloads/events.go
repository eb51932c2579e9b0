// Package payloads holds the data section of every published checkout event.
package payloads

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

var errGroupMissing = errors.New("checkout_group_id is required")

// ShopOrderRef summarizes one shop order inside a checkout event.
type ShopOrderRef struct {
	OrderID     uuid.UUID         `json:"order_id"`
	ShopID      uuid.UUID         `json:"shop_id"`
	AmountCents int               `json:"amount_cents"`
	Status      enums.OrderStatus `json:"status"`
}

// OrderCreatedEvent signals a checkout split into per-shop orders.
type OrderCreatedEvent struct {
	CheckoutGroupID uuid.UUID           `json:"checkout_group_id"`
	BuyerID         uuid.UUID           `json:"buyer_id"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	AmountCents     int                 `json:"amount_cents"`
	Currency        string              `json:"currency"`
	Orders          []ShopOrderRef      `json:"orders"`
}

func (e *OrderCreatedEvent) Check() error {
	if e.CheckoutGroupID == uuid.Nil {
		return errGroupMissing
	}
	if len(e.Orders) == 0 {
		return errors.New("orders are required")
	}
	return nil
}

// OrderPaidEvent is emitted once the gateway payment for a checkout group is verified.
type OrderPaidEvent struct {
	CheckoutGroupID  uuid.UUID   `json:"checkout_group_id"`
	BuyerID          uuid.UUID   `json:"buyer_id"`
	OrderIDs         []uuid.UUID `json:"order_ids"`
	GatewayOrderID   string      `json:"gateway_order_id"`
	GatewayPaymentID string      `json:"gateway_payment_id"`
	AmountCents      int         `json:"amount_cents"`
	PaidAt           time.Time   `json:"paid_at"`
}

func (e *OrderPaidEvent) Check() error {
	if e.CheckoutGroupID == uuid.Nil {
		return errGroupMissing
	}
	return nil
}

// PaymentFailedEvent reports a rejected payment verification attempt.
type PaymentFailedEvent struct {
	CheckoutGroupID  uuid.UUID `json:"checkout_group_id"`
	BuyerID          uuid.UUID `json:"buyer_id"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id,omitempty"`
	Reason           string    `json:"reason"`
}

func (e *PaymentFailedEvent) Check() error {
	if e.CheckoutGroupID == uuid.Nil {
		return errGroupMissing
	}
	return nil
}
