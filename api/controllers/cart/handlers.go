package cart

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	cartsvc "github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/guestcart"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// call is what a cart route has resolved before it reaches the service.
type call struct {
	r       *http.Request
	owner   uuid.UUID
	version *int64
}

type route func(svc cartsvc.Service, c call) (any, error)

// readOnly and mutating differ only in whether If-Match is read.
func readOnly(svc cartsvc.Service, logg *logger.Logger, fn route) http.HandlerFunc {
	return endpoint(svc, logg, false, fn)
}

func mutating(svc cartsvc.Service, logg *logger.Logger, fn route) http.HandlerFunc {
	return endpoint(svc, logg, true, fn)
}

func endpoint(svc cartsvc.Service, logg *logger.Logger, readVersion bool, fn route) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := resolve(svc, r, readVersion, fn)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		switch out := result.(type) {
		case *types.Cart:
			writeCart(w, out)
			return
		case *cartsvc.MergeResult:
			if out != nil && out.Cart != nil {
				setVersion(w, out.Cart)
			}
		}
		responses.WriteSuccess(w, result)
	}
}

func resolve(svc cartsvc.Service, r *http.Request, readVersion bool, fn route) (any, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable")
	}
	owner, err := ownerFromContext(r)
	if err != nil {
		return nil, err
	}
	c := call{r: r, owner: owner}
	if readVersion {
		if c.version, err = ifMatch(r); err != nil {
			return nil, err
		}
	}
	return fn(svc, c)
}

// CartFetch returns the caller's cart with freshly computed totals.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return readOnly(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		return svc.Get(c.r.Context(), c.owner)
	})
}

// CartAddItem adds a product, or one of its variants, at the live price.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		var body addItemRequest
		if err := validators.DecodeJSONBody(c.r, &body); err != nil {
			return nil, err
		}
		return svc.AddItem(c.r.Context(), c.owner, cartsvc.AddItemInput{
			ProductID: uuid.MustParse(body.ProductID),
			VariantID: optionalUUID(body.VariantID),
			Quantity:  body.Quantity,
			IfMatch:   c.version,
		})
	})
}

// CartUpdateItem sets a line's quantity; zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		lineID, err := lineIDParam(c.r)
		if err != nil {
			return nil, err
		}
		var body updateItemRequest
		if err := validators.DecodeJSONBody(c.r, &body); err != nil {
			return nil, err
		}
		return svc.UpdateItem(c.r.Context(), c.owner, lineID, cartsvc.UpdateItemInput{
			Quantity: *body.Quantity,
			IfMatch:  c.version,
		})
	})
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		lineID, err := lineIDParam(c.r)
		if err != nil {
			return nil, err
		}
		return svc.RemoveItem(c.r.Context(), c.owner, lineID, c.version)
	})
}

// CartClear empties the cart and detaches any coupon.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		return svc.Clear(c.r.Context(), c.owner, c.version)
	})
}

// CartApplyCoupon attaches a coupon. A rejected code leaves the cart as it was.
func CartApplyCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		var body applyCouponRequest
		if err := validators.DecodeJSONBody(c.r, &body); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(c.r.Context(), c.owner, validators.CouponCode(body.Code), c.version)
	})
}

func CartRemoveCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		return svc.RemoveCoupon(c.r.Context(), c.owner, c.version)
	})
}

// CartCount answers the badge count without computing totals.
func CartCount(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return readOnly(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		n, err := svc.GetItemCount(c.r.Context(), c.owner)
		if err != nil {
			return nil, err
		}
		return types.CartCount{Count: n}, nil
	})
}

// CartValidate runs the pre-checkout gate. It never mutates the cart.
func CartValidate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return readOnly(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		return svc.Validate(c.r.Context(), c.owner)
	})
}

// CartMerge folds a guest cart into the caller's cart. Without
// guest_cart_items in the body the cart stored for the guest session is
// merged, then cleared once the merge succeeds. A stale If-Match leaves both
// carts untouched.
func CartMerge(svc cartsvc.Service, guests *guestcart.Sessions, checkoutMetrics *metrics.CheckoutMetrics, logg *logger.Logger) http.HandlerFunc {
	return mutating(svc, logg, func(svc cartsvc.Service, c call) (any, error) {
		ctx := c.r.Context()
		var body mergeRequest
		if c.r.Body != nil && c.r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(c.r, &body); err != nil {
				return nil, err
			}
		}

		var stored *guestcart.Store
		var lines []types.CartLine
		if body.GuestCartItems != nil {
			lines = *body.GuestCartItems
		} else {
			stored = guests.For(middleware.GuestSessionFromContext(ctx))
			lines = stored.Get(ctx)
		}

		result, err := svc.MergeGuestCart(ctx, c.owner, lines, c.version)
		if err != nil {
			return nil, err
		}
		if stored != nil {
			stored.Clear(ctx)
		}
		skipped := len(result.Skipped)
		if len(lines) > 0 {
			checkoutMetrics.ObserveGuestMerge(skipped > 0)
		}
		if skipped > 0 && logg != nil {
			logg.Warn(logg.WithField(ctx, "skipped", skipped), "guest cart lines skipped during merge")
		}
		return result, nil
	})
}
