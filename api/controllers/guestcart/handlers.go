package guestcart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/guestcart"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	VariantID string `json:"variant_id,omitempty" validate:"omitempty,uuid"`
	Quantity  int    `json:"quantity" validate:"min=0"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type guestCartView struct {
	Lines         []types.CartLine `json:"lines"`
	SubtotalCents int              `json:"subtotal_cents"`
	ItemCount     int              `json:"item_count"`
}

func newGuestCartView(lines []types.CartLine) guestCartView {
	view := guestCartView{Lines: lines}
	if view.Lines == nil {
		view.Lines = []types.CartLine{}
	}
	for _, line := range lines {
		view.SubtotalCents += line.SubtotalCents
		view.ItemCount += line.Quantity
	}
	return view
}

func storeFor(r *http.Request, sessions *guestcart.Sessions) *guestcart.Store {
	return sessions.For(middleware.GuestSessionFromContext(r.Context()))
}

// GuestCartFetch returns the lines stored for the guest session.
func GuestCartFetch(sessions *guestcart.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, newGuestCartView(storeFor(r, sessions).Get(r.Context())))
	}
}

// GuestCartAdd prices the product from the catalog and adds it to the guest
// cart, clamped to the product's max quantity.
func GuestCartAdd(sessions *guestcart.Sessions, lookup catalog.Lookup, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if lookup == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "catalog unavailable"))
			return
		}

		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var variantID *uuid.UUID
		if payload.VariantID != "" {
			id := uuid.MustParse(payload.VariantID)
			variantID = &id
		}
		snap, err := lookup.GetProduct(ctx, uuid.MustParse(payload.ProductID), variantID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if !snap.IsAvailable || snap.MaxQuantity <= 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeOutOfStock, "product is not available").
				WithDetails(map[string]string{"product_id": payload.ProductID}))
			return
		}

		details := guestcart.Details{
			ProductID:      snap.ProductID.String(),
			ShopID:         snap.ShopID.String(),
			ShopName:       snap.ShopName,
			Name:           snap.Name,
			UnitPriceCents: snap.PriceCents,
			Quantity:       payload.Quantity,
			MaxQuantity:    snap.MaxQuantity,
			IsAvailable:    &snap.IsAvailable,
		}
		if snap.VariantID != nil {
			details.VariantID = snap.VariantID.String()
		}
		lines := storeFor(r, sessions).AddWithDetails(ctx, details)
		responses.WriteSuccess(w, newGuestCartView(lines))
	}
}

// GuestCartUpdate sets a line's quantity; zero or less removes it.
func GuestCartUpdate(sessions *guestcart.Sessions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload updateItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := storeFor(r, sessions).Update(r.Context(), itemID(r), *payload.Quantity)
		responses.WriteSuccess(w, newGuestCartView(lines))
	}
}

// GuestCartRemove drops a line by id.
func GuestCartRemove(sessions *guestcart.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lines := storeFor(r, sessions).Remove(r.Context(), itemID(r))
		responses.WriteSuccess(w, newGuestCartView(lines))
	}
}

// GuestCartClear empties the guest cart.
func GuestCartClear(sessions *guestcart.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeFor(r, sessions).Clear(r.Context())
		responses.WriteSuccess(w, newGuestCartView(nil))
	}
}

// GuestCartCount returns the summed quantity.
func GuestCartCount(sessions *guestcart.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, types.CartCount{Count: storeFor(r, sessions).ItemCount(r.Context())})
	}
}

func itemID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "itemId"))
}
