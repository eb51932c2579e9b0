package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/internal/coupons"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// ComputeTax applies the flat rate to the taxable amount, rounding half away
// from zero to whole minor units.
func ComputeTax(taxable int, rate decimal.Decimal) int {
	if taxable <= 0 || rate.IsZero() {
		return 0
	}
	return int(decimal.NewFromInt(int64(taxable)).Mul(rate).Round(0).IntPart())
}

func toViewLines(lines []models.CartLine) []types.CartLine {
	out := make([]types.CartLine, 0, len(lines))
	for _, line := range lines {
		view := types.CartLine{
			ID:             line.ID.String(),
			ProductID:      line.ProductID.String(),
			VariantID:      line.VariantString(),
			ShopID:         line.ShopID.String(),
			ShopName:       line.ShopName,
			ProductName:    line.ProductName,
			ProductSlug:    line.ProductSlug,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			MaxQuantity:    line.MaxQuantity,
			IsAvailable:    line.IsAvailable,
		}
		view.Recompute()
		out = append(out, view)
	}
	return out
}

func shopSubtotals(lines []types.CartLine) map[uuid.UUID]int {
	out := map[uuid.UUID]int{}
	for shop, subtotal := range helpers.ShopSubtotals(lines) {
		id, err := uuid.Parse(shop)
		if err != nil {
			continue
		}
		out[id] = subtotal
	}
	return out
}

// buildView derives every total of the cart from its lines and the
// evaluated coupon, if any.
func buildView(cart *models.Cart, lines []types.CartLine, eval *coupons.Evaluation, rate decimal.Decimal) *types.Cart {
	view := &types.Cart{
		ID:        cart.ID.String(),
		OwnerID:   cart.OwnerID.String(),
		Version:   cart.Version,
		ExpiresAt: cart.ExpiresAt,
	}
	if eval != nil {
		view.CouponCode = eval.Code
		if eval.ShopID != nil {
			view.CouponShopID = eval.ShopID.String()
		}
		helpers.AllocateCartDiscount(lines, eval.DiscountCents, view.CouponShopID)
	}
	view.Lines = lines

	for _, line := range lines {
		view.SubtotalCents += line.SubtotalCents
		view.DiscountCents += line.LineDiscountCents
		view.ItemCount += line.Quantity
	}
	view.TaxCents = ComputeTax(view.SubtotalCents-view.DiscountCents, rate)
	view.TotalCents = view.SubtotalCents - view.DiscountCents + view.TaxCents
	return view
}
