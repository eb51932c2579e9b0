package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/checkout/helpers"
	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

type pricedLine struct {
	product  *catalog.Snapshot
	quantity int
	subtotal int
	discount int
}

type pricedOrder struct {
	shopID     uuid.UUID
	shopName   string
	couponCode string
	lines      []pricedLine
	subtotal   int
	discount   int
	tax        int
	amount     int
}

// priceOrders re-prices every requested item from the catalog. Client
// supplied prices and names are never trusted.
func (s *service) priceOrders(ctx context.Context, requested []types.CreateShopOrder) ([]pricedOrder, error) {
	orders := make([]pricedOrder, 0, len(requested))
	stock := map[string]*checkout.StockCheck{}
	stockOrder := []string{}

	for _, req := range requested {
		shopID := uuid.MustParse(req.ShopID)
		order := pricedOrder{
			shopID:     shopID,
			shopName:   req.ShopName,
			couponCode: strings.TrimSpace(req.CouponCode),
		}
		for _, item := range req.Items {
			productID := uuid.MustParse(item.ProductID)
			var variantID *uuid.UUID
			if item.VariantID != "" {
				id := uuid.MustParse(item.VariantID)
				variantID = &id
			}
			snap, err := s.catalog.GetProduct(ctx, productID, variantID)
			if err != nil {
				return nil, err
			}
			if snap.ShopID != shopID {
				return nil, pkgerrors.New(pkgerrors.CodeOrderCreationFailed, "product does not belong to shop").
					WithDetails(map[string]any{"product_id": item.ProductID, "shop_id": req.ShopID})
			}
			order.shopName = snap.ShopName

			key := types.LineIdentity(item.ProductID, item.VariantID)
			check, ok := stock[key]
			if !ok {
				check = &checkout.StockCheck{
					ProductID:   productID,
					VariantID:   variantID,
					ProductName: snap.Name,
					Available:   snap.MaxQuantity,
					IsAvailable: snap.IsAvailable,
				}
				stock[key] = check
				stockOrder = append(stockOrder, key)
			}
			check.Requested += item.Quantity

			line := pricedLine{product: snap, quantity: item.Quantity, subtotal: snap.PriceCents * item.Quantity}
			order.lines = append(order.lines, line)
			order.subtotal += line.subtotal
		}
		orders = append(orders, order)
	}

	checks := make([]checkout.StockCheck, 0, len(stockOrder))
	for _, key := range stockOrder {
		checks = append(checks, *stock[key])
	}
	if err := checkout.ValidateStock(checks); err != nil {
		return nil, err
	}

	if err := s.applyCoupons(ctx, orders); err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].finish(s.taxRate)
	}
	return orders, nil
}

// applyCoupons evaluates each distinct code once, against the subtotals of
// the orders that carry it. A shop coupon discounts its own shop only. A
// cart-wide coupon is split across those orders by subtotal with the same
// largest remainder allocation the cart uses, so the order discounts add up
// to the discount the cart showed.
func (s *service) applyCoupons(ctx context.Context, orders []pricedOrder) error {
	carriers := map[string][]int{}
	codes := []string{}
	for i := range orders {
		key := strings.ToUpper(orders[i].couponCode)
		if key == "" {
			continue
		}
		if _, seen := carriers[key]; !seen {
			codes = append(codes, key)
		}
		carriers[key] = append(carriers[key], i)
	}

	for _, key := range codes {
		idx := carriers[key]
		subtotals := make(map[uuid.UUID]int, len(idx))
		for _, i := range idx {
			subtotals[orders[i].shopID] += orders[i].subtotal
		}
		eval, err := s.coupons.Evaluate(ctx, orders[idx[0]].couponCode, subtotals)
		if err != nil {
			return err
		}

		if eval.ShopID != nil {
			for _, i := range idx {
				if orders[i].shopID != *eval.ShopID {
					return pkgerrors.New(pkgerrors.CodeInvalidCoupon, "coupon does not apply to this shop").
						WithDetails(map[string]any{"code": eval.Code, "shop_id": orders[i].shopID.String()})
				}
				orders[i].couponCode = eval.Code
				orders[i].discount = eval.DiscountCents
			}
			continue
		}

		weights := make([]int, len(idx))
		for k, i := range idx {
			weights[k] = orders[i].subtotal
		}
		for k, share := range helpers.AllocateProportional(eval.DiscountCents, weights) {
			order := &orders[idx[k]]
			order.discount = share
			order.couponCode = ""
			if share > 0 {
				order.couponCode = eval.Code
			}
		}
	}
	return nil
}

// finish spreads the order discount over its lines and prices tax.
func (o *pricedOrder) finish(taxRate decimal.Decimal) {
	if o.discount > 0 {
		weights := make([]int, len(o.lines))
		for i, line := range o.lines {
			weights[i] = line.subtotal
		}
		for i, share := range helpers.AllocateProportional(o.discount, weights) {
			o.lines[i].discount = share
		}
	}
	o.tax = cart.ComputeTax(o.subtotal-o.discount, taxRate)
	o.amount = o.subtotal - o.discount + o.tax
}

func (o pricedOrder) model(groupID, buyerID, shipping, billing uuid.UUID, req types.CreateOrdersRequest) *models.Order {
	order := &models.Order{
		CheckoutGroupID:   groupID,
		ShopID:            o.shopID,
		ShopName:          o.shopName,
		BuyerID:           buyerID,
		ShippingAddressID: shipping,
		BillingAddressID:  billing,
		PaymentMethod:     req.PaymentMethod,
		SubtotalCents:     o.subtotal,
		DiscountCents:     o.discount,
		TaxCents:          o.tax,
		AmountCents:       o.amount,
		Status:            enums.InitialOrderStatus(req.PaymentMethod),
		Notes:             optionalString(req.Notes),
		Lines:             make([]models.OrderLine, 0, len(o.lines)),
	}
	if o.couponCode != "" {
		code := o.couponCode
		order.CouponCode = &code
	}
	for _, line := range o.lines {
		order.Lines = append(order.Lines, models.OrderLine{
			ProductID:      line.product.ProductID,
			VariantID:      line.product.VariantID,
			ProductName:    line.product.Name,
			UnitPriceCents: line.product.PriceCents,
			Quantity:       line.quantity,
			DiscountCents:  line.discount,
			TotalCents:     line.subtotal - line.discount,
		})
	}
	return order
}

// purchased keys the ordered quantities by cart line identity.
func purchased(orders []pricedOrder) map[string]int {
	out := map[string]int{}
	for _, order := range orders {
		for _, line := range order.lines {
			variant := ""
			if line.product.VariantID != nil {
				variant = line.product.VariantID.String()
			}
			out[types.LineIdentity(line.product.ProductID.String(), variant)] += line.quantity
		}
	}
	return out
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
