package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

type couponFinder interface {
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// Evaluation is a coupon checked against a set of shop subtotals.
type Evaluation struct {
	Code             string
	ShopID           *uuid.UUID
	EligibleSubtotal int
	DiscountCents    int
}

// Service applies coupon rules.
type Service struct {
	repo couponFinder
	now  func() time.Time
}

// NewService builds the coupon service.
func NewService(repo couponFinder) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &Service{repo: repo, now: time.Now}, nil
}

var hundred = decimal.NewFromInt(100)

// Evaluate checks code against the per-shop subtotals of a cart and returns
// the discount it grants. Failures carry INVALID_COUPON, COUPON_EXPIRED or
// ORDER_VALUE_BELOW_MINIMUM.
func (s *Service) Evaluate(ctx context.Context, code string, shopSubtotals map[uuid.UUID]int) (*Evaluation, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon code is required")
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalid(code, "coupon does not exist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if !coupon.Active {
		return nil, invalid(code, "coupon is no longer active")
	}

	now := s.now()
	if coupon.StartsAt != nil && now.Before(*coupon.StartsAt) {
		return nil, invalid(code, "coupon is not active yet")
	}
	if coupon.ExpiresAt != nil && !now.Before(*coupon.ExpiresAt) {
		return nil, pkgerrors.New(pkgerrors.CodeCouponExpired, "coupon has expired").
			WithDetails(map[string]any{"code": coupon.Code, "expired_at": coupon.ExpiresAt.UTC()})
	}

	eligible := 0
	if coupon.ShopID != nil {
		subtotal, ok := shopSubtotals[*coupon.ShopID]
		if !ok {
			return nil, invalid(code, "coupon does not apply to any item in the cart")
		}
		eligible = subtotal
	} else {
		for _, subtotal := range shopSubtotals {
			eligible += subtotal
		}
	}

	if eligible < coupon.MinOrderCents || eligible <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeOrderValueBelowMinimum, "order value is below the coupon minimum").
			WithDetails(map[string]any{
				"code":            coupon.Code,
				"min_order_cents": coupon.MinOrderCents,
				"eligible_cents":  eligible,
			})
	}

	return &Evaluation{
		Code:             coupon.Code,
		ShopID:           coupon.ShopID,
		EligibleSubtotal: eligible,
		DiscountCents:    discountFor(coupon, eligible),
	}, nil
}

// QuoteShop evaluates code against a single shop's subtotal.
func (s *Service) QuoteShop(ctx context.Context, code string, shopID uuid.UUID, subtotal int) (*Evaluation, error) {
	return s.Evaluate(ctx, code, map[uuid.UUID]int{shopID: subtotal})
}

// discountFor computes the discount in minor units. Percentage values are
// percents; fixed values are in major currency units.
func discountFor(coupon *models.Coupon, eligible int) int {
	base := decimal.NewFromInt(int64(eligible))
	var amount decimal.Decimal
	switch coupon.DiscountType {
	case enums.CouponDiscountPercentage:
		amount = base.Mul(coupon.Value).Div(hundred)
	case enums.CouponDiscountFixed:
		amount = coupon.Value.Mul(hundred)
	default:
		return 0
	}
	discount := int(amount.Round(0).IntPart())
	if coupon.MaxDiscountCents != nil && discount > *coupon.MaxDiscountCents {
		discount = *coupon.MaxDiscountCents
	}
	if discount > eligible {
		discount = eligible
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

func invalid(code, reason string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidCoupon, reason).WithDetails(map[string]any{"code": code})
}
