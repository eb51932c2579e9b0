package types

import "github.com/angelmondragon/storefront-checkout/pkg/enums"

// CreateOrdersItem is one product line in a shop order request.
type CreateOrdersItem struct {
	ProductID string `json:"product_id" validate:"required"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateShopOrder is the per-shop part of a multi-shop order submission.
type CreateShopOrder struct {
	ShopID     string             `json:"shop_id" validate:"required"`
	ShopName   string             `json:"shop_name"`
	Items      []CreateOrdersItem `json:"items" validate:"required,min=1,dive"`
	CouponCode string             `json:"coupon_code,omitempty"`
}

// CreateOrdersRequest is the body of POST /checkout/orders.
type CreateOrdersRequest struct {
	Orders            []CreateShopOrder   `json:"orders" validate:"required,min=1,dive"`
	ShippingAddressID string              `json:"shipping_address_id" validate:"required"`
	BillingAddressID  string              `json:"billing_address_id,omitempty"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method,omitempty" validate:"omitempty,oneof=razorpay cod"`
	Notes             string              `json:"notes,omitempty" validate:"max=1000"`
}

// CreatedOrder summarizes one committed shop order.
type CreatedOrder struct {
	ID          string            `json:"id"`
	ShopID      string            `json:"shop_id"`
	Status      enums.OrderStatus `json:"status"`
	AmountCents int               `json:"amount_cents"`
}

// CreateOrdersResponse is returned by POST /checkout/orders. Amount is in
// minor units; Total is the same value as a decimal string.
type CreateOrdersResponse struct {
	CheckoutGroupID string         `json:"checkout_group_id"`
	Orders          []CreatedOrder `json:"orders"`
	Amount          int            `json:"amount"`
	Currency        string         `json:"currency"`
	Total           string         `json:"total"`
	RazorpayOrderID string         `json:"razorpay_order_id,omitempty"`
	RazorpayKeyID   string         `json:"razorpay_key_id,omitempty"`
}

// OrderIDs lists the created order ids in response order.
func (r CreateOrdersResponse) OrderIDs() []string {
	ids := make([]string, 0, len(r.Orders))
	for _, order := range r.Orders {
		ids = append(ids, order.ID)
	}
	return ids
}

// VerifyPaymentRequest is the body of POST /checkout/orders/verify.
type VerifyPaymentRequest struct {
	OrderIDs         []string `json:"order_ids" validate:"required,min=1"`
	GatewayOrderID   string   `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string   `json:"gateway_payment_id" validate:"required"`
	GatewaySignature string   `json:"gateway_signature" validate:"required"`
}

// VerifyPaymentResponse reports the settled orders.
type VerifyPaymentResponse struct {
	CheckoutGroupID string   `json:"checkout_group_id"`
	OrderIDs        []string `json:"order_ids"`
	Status          string   `json:"status"`
}

// CouponQuoteRequest asks what a coupon would take off one shop's subtotal.
type CouponQuoteRequest struct {
	ShopID        string `json:"shop_id" validate:"required"`
	Code          string `json:"code" validate:"required,coupon_code"`
	SubtotalCents int    `json:"subtotal_cents" validate:"min=0"`
}

// CouponQuote is the evaluated discount for one shop.
type CouponQuote struct {
	Code          string `json:"code"`
	ShopID        string `json:"shop_id"`
	DiscountCents int    `json:"discount_cents"`
}

// Address is an address book entry as consumed by checkout.
type Address struct {
	ID    string            `json:"id"`
	Type  enums.AddressType `json:"type"`
	Label string            `json:"label,omitempty"`
}
