package helpers

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// FieldErrors maps a request field to a user-facing message.
type FieldErrors map[string]string

// AddressSelection is what the address step collects.
type AddressSelection struct {
	ShippingAddressID     string
	BillingAddressID      string
	UseShippingForBilling bool
}

// BillingID resolves the effective billing address.
func (a AddressSelection) BillingID() string {
	if a.UseShippingForBilling {
		return a.ShippingAddressID
	}
	return a.BillingAddressID
}

// ValidateAddressSelection reports missing address fields. An empty result
// means the selection is complete.
func ValidateAddressSelection(sel AddressSelection) FieldErrors {
	errs := FieldErrors{}
	if strings.TrimSpace(sel.ShippingAddressID) == "" {
		errs["shipping_address_id"] = "select a shipping address"
	}
	if !sel.UseShippingForBilling && strings.TrimSpace(sel.BillingAddressID) == "" {
		errs["billing_address_id"] = "select a billing address"
	}
	return errs
}

// ValidateCreateOrders checks the shape of a multi-shop order submission and
// returns the parsed address ids.
func ValidateCreateOrders(req types.CreateOrdersRequest) (shipping uuid.UUID, billing uuid.UUID, err error) {
	details := map[string]string{}

	shipping, parseErr := uuid.Parse(strings.TrimSpace(req.ShippingAddressID))
	if parseErr != nil {
		details["shipping_address_id"] = "must be a valid id"
	}
	billing = shipping
	if raw := strings.TrimSpace(req.BillingAddressID); raw != "" {
		if billing, parseErr = uuid.Parse(raw); parseErr != nil {
			details["billing_address_id"] = "must be a valid id"
		}
	}
	if !req.PaymentMethod.IsValid() {
		details["payment_method"] = "must be one of razorpay, cod"
	}
	if len(req.Orders) == 0 {
		details["orders"] = "at least one shop order is required"
	}

	seenShops := map[string]bool{}
	for _, order := range req.Orders {
		if _, err := uuid.Parse(order.ShopID); err != nil {
			details["orders.shop_id"] = "must be a valid id"
			continue
		}
		if seenShops[order.ShopID] {
			details["orders.shop_id"] = "each shop may appear only once"
		}
		seenShops[order.ShopID] = true
		if len(order.Items) == 0 {
			details["orders.items"] = "each shop order needs at least one item"
		}
		for _, item := range order.Items {
			if _, err := uuid.Parse(item.ProductID); err != nil {
				details["orders.items.product_id"] = "must be a valid id"
			}
			if item.VariantID != "" {
				if _, err := uuid.Parse(item.VariantID); err != nil {
					details["orders.items.variant_id"] = "must be a valid id"
				}
			}
			if item.Quantity <= 0 {
				details["orders.items.quantity"] = "must be at least 1"
			}
		}
	}

	if len(details) > 0 {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order request").WithDetails(details)
	}
	return shipping, billing, nil
}

// PaymentMethodOrDefault falls back to the preselected method.
func PaymentMethodOrDefault(method enums.PaymentMethod) enums.PaymentMethod {
	if method == "" {
		return enums.DefaultPaymentMethod
	}
	return method
}
