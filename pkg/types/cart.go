package types

import (
	"time"
)

// CartLine is one product/variant entry in a cart. Guest carts persist the
// same shape as JSON.
type CartLine struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	VariantID         string `json:"variant_id,omitempty"`
	ShopID            string `json:"shop_id"`
	ShopName          string `json:"shop_name"`
	ProductName       string `json:"product_name"`
	ProductSlug       string `json:"product_slug,omitempty"`
	UnitPriceCents    int    `json:"unit_price_cents"`
	Quantity          int    `json:"quantity"`
	MaxQuantity       int    `json:"max_quantity"`
	LineDiscountCents int    `json:"line_discount_cents"`
	SubtotalCents     int    `json:"subtotal_cents"`
	TotalCents        int    `json:"total_cents"`
	IsAvailable       bool   `json:"is_available"`
}

// Identity keys a line by product and variant; guest merges and duplicate
// adds collapse on it.
func (l CartLine) Identity() string {
	return LineIdentity(l.ProductID, l.VariantID)
}

// Recompute refreshes the derived subtotal and total.
func (l *CartLine) Recompute() {
	l.SubtotalCents = l.UnitPriceCents * l.Quantity
	l.TotalCents = l.SubtotalCents - l.LineDiscountCents
}

// LineIdentity builds the product[:variant] key used for line identity.
func LineIdentity(productID, variantID string) string {
	if variantID == "" {
		return productID
	}
	return productID + ":" + variantID
}

// Cart is the computed view of a user cart returned by the cart API.
type Cart struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	Lines         []CartLine `json:"lines"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	CouponShopID  string     `json:"coupon_shop_id,omitempty"`
	SubtotalCents int        `json:"subtotal_cents"`
	DiscountCents int        `json:"discount_cents"`
	TaxCents      int        `json:"tax_cents"`
	TotalCents    int        `json:"total_cents"`
	ItemCount     int        `json:"item_count"`
	Version       int64      `json:"version"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ShopOrderGroup is the subset of a cart belonging to one shop. It is derived
// on demand and never persisted.
type ShopOrderGroup struct {
	ShopID        string     `json:"shop_id"`
	ShopName      string     `json:"shop_name"`
	Lines         []CartLine `json:"lines"`
	CouponCode    string     `json:"coupon_code,omitempty"`
	DiscountCents int        `json:"discount_cents"`
	SubtotalCents int        `json:"subtotal_cents"`
	TotalCents    int        `json:"total_cents"`
}

// ItemCount sums the group's quantities.
func (g ShopOrderGroup) ItemCount() int {
	total := 0
	for _, line := range g.Lines {
		total += line.Quantity
	}
	return total
}

// LineIssue codes reported by cart validation.
const (
	LineIssueNotFound     = "not_found"
	LineIssueUnavailable  = "unavailable"
	LineIssueOutOfStock   = "out_of_stock"
	LineIssuePriceChanged = "price_changed"
	LineIssueCartEmpty    = "cart_empty"
)

// CartValidationError describes one line failing the pre-checkout gate.
type CartValidationError struct {
	ItemID    string `json:"item_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
}

// CartValidation is the result of the pre-checkout gate.
type CartValidation struct {
	Valid  bool                  `json:"valid"`
	Errors []CartValidationError `json:"errors"`
}

// CartCount is the payload of the lightweight count query.
type CartCount struct {
	Count int `json:"count"`
}
