package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
	"github.com/angelmondragon/storefront-checkout/api/validators"
	"github.com/angelmondragon/storefront-checkout/internal/addresses"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

const maxOrderNotes = 1000

// buyerAction is the shape shared by the authenticated checkout routes: the
// decoded body in, a payload for the success envelope out.
type buyerAction[In, Out any] func(ctx context.Context, buyer uuid.UUID, in *In) (Out, error)

// noBody marks routes that take no request body.
type noBody struct{}

func asBuyer[In, Out any](dependency string, ready bool, status int, logg *logger.Logger, act buyerAction[In, Out]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		out, err := func() (Out, error) {
			var zero Out
			if !ready {
				return zero, pkgerrors.Newf(pkgerrors.CodeInternal, "%s unavailable", dependency)
			}
			buyer := middleware.BuyerID(ctx)
			if buyer == uuid.Nil {
				return zero, pkgerrors.New(pkgerrors.CodeUnauthorized, "authenticated user required")
			}
			in := new(In)
			if _, empty := any(in).(*noBody); !empty {
				if err := validators.DecodeJSONBody(r, in); err != nil {
					return zero, err
				}
			}
			return act(ctx, buyer, in)
		}()
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, status, out)
	}
}

// CheckoutCreateOrders commits one order per shop for the submitted groups.
// Replays of the same Idempotency-Key are answered by the middleware.
func CheckoutCreateOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return asBuyer("order service", svc != nil, http.StatusCreated, logg,
		func(ctx context.Context, buyer uuid.UUID, req *types.CreateOrdersRequest) (*types.CreateOrdersResponse, error) {
			req.Notes = validators.CleanText(req.Notes, maxOrderNotes)
			return svc.CreateOrders(ctx, buyer, *req)
		})
}

// CheckoutVerifyPayment settles a gateway payment against its pending orders.
func CheckoutVerifyPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return asBuyer("order service", svc != nil, http.StatusOK, logg,
		func(ctx context.Context, buyer uuid.UUID, req *types.VerifyPaymentRequest) (*types.VerifyPaymentResponse, error) {
			return svc.VerifyPayment(ctx, buyer, *req)
		})
}

// CheckoutQuoteCoupon evaluates a shop coupon for the review step.
func CheckoutQuoteCoupon(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return asBuyer("order service", svc != nil, http.StatusOK, logg,
		func(ctx context.Context, buyer uuid.UUID, req *types.CouponQuoteRequest) (*types.CouponQuote, error) {
			return svc.QuoteShopCoupon(ctx, buyer, *req)
		})
}

func AddressList(svc addresses.Service, logg *logger.Logger) http.HandlerFunc {
	return asBuyer("address service", svc != nil, http.StatusOK, logg,
		func(ctx context.Context, buyer uuid.UUID, _ *noBody) (map[string]any, error) {
			list, err := svc.ListAddresses(ctx, buyer)
			if err != nil {
				return nil, err
			}
			return map[string]any{"addresses": list}, nil
		})
}
