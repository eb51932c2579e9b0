package cart

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

type applyCouponRequest struct {
	Code string `json:"code" validate:"required,coupon_code"`
}

// mergeRequest distinguishes an omitted guest_cart_items from an empty list:
// omitted means "merge what the guest session stored".
type mergeRequest struct {
	GuestCartItems *[]types.CartLine `json:"guest_cart_items,omitempty"`
}

func ownerFromContext(r *http.Request) (uuid.UUID, error) {
	owner := middleware.BuyerID(r.Context())
	if owner == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
	}
	return owner, nil
}

func lineIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "itemId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid item id").
			WithDetails(map[string]string{"itemId": raw})
	}
	return id, nil
}

// ifMatch reads the cart version the client last saw. Both bare and quoted
// (ETag style) values are accepted.
func ifMatch(r *http.Request) (*int64, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "If-Match must carry a cart version").
			WithDetails(map[string]string{"If-Match": raw})
	}
	return &version, nil
}

func optionalUUID(raw string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
