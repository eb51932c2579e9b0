package helpers

import (
	"sort"

	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Partition splits a cart into one group per shop. Groups appear in the order
// their shop is first seen and keep the cart's line order. Group discounts are
// the sum of the line discounts already allocated to their lines. A shop
// coupon is carried by its shop's group; a cart-wide coupon by every group,
// so order placement evaluates it over the same shops the cart did.
func Partition(cart types.Cart) []types.ShopOrderGroup {
	index := make(map[string]int)
	groups := make([]types.ShopOrderGroup, 0)
	for _, line := range cart.Lines {
		i, ok := index[line.ShopID]
		if !ok {
			i = len(groups)
			index[line.ShopID] = i
			groups = append(groups, types.ShopOrderGroup{
				ShopID:   line.ShopID,
				ShopName: line.ShopName,
			})
		}
		groups[i].Lines = append(groups[i].Lines, line)
	}
	for i := range groups {
		recomputeGroup(&groups[i])
		if cart.CouponCode == "" {
			continue
		}
		if cart.CouponShopID == "" || cart.CouponShopID == groups[i].ShopID {
			groups[i].CouponCode = cart.CouponCode
		}
	}
	return groups
}

// ShopSubtotals returns each shop's pre-discount subtotal.
func ShopSubtotals(lines []types.CartLine) map[string]int {
	totals := make(map[string]int)
	for _, line := range lines {
		totals[line.ShopID] += line.UnitPriceCents * line.Quantity
	}
	return totals
}

// AllocateCartDiscount spreads a cart-level discount over lines in place.
// With couponShopID set only that shop's lines share the discount; otherwise
// every shop takes a share proportional to its subtotal. Within a shop the
// share is split across lines by line subtotal. Any previous line discounts
// are cleared first.
func AllocateCartDiscount(lines []types.CartLine, discount int, couponShopID string) {
	for i := range lines {
		lines[i].LineDiscountCents = 0
	}
	defer func() {
		for i := range lines {
			lines[i].Recompute()
		}
	}()
	if discount <= 0 || len(lines) == 0 {
		return
	}

	shopOrder := make([]string, 0)
	shopLines := make(map[string][]int)
	for i, line := range lines {
		if couponShopID != "" && line.ShopID != couponShopID {
			continue
		}
		if _, seen := shopLines[line.ShopID]; !seen {
			shopOrder = append(shopOrder, line.ShopID)
		}
		shopLines[line.ShopID] = append(shopLines[line.ShopID], i)
	}

	weights := make([]int, len(shopOrder))
	eligible := 0
	for gi, shopID := range shopOrder {
		for _, li := range shopLines[shopID] {
			weights[gi] += lines[li].UnitPriceCents * lines[li].Quantity
		}
		eligible += weights[gi]
	}
	if discount > eligible {
		discount = eligible
	}

	shares := AllocateProportional(discount, weights)
	for gi, shopID := range shopOrder {
		idx := shopLines[shopID]
		lineWeights := make([]int, len(idx))
		for k, li := range idx {
			lineWeights[k] = lines[li].UnitPriceCents * lines[li].Quantity
		}
		for k, amount := range AllocateProportional(shares[gi], lineWeights) {
			lines[idx[k]].LineDiscountCents = amount
		}
	}
}

// ApplyGroupDiscount sets a group's coupon and discount, spreading the
// discount over its lines, and refreshes the group totals. Other groups are
// untouched.
func ApplyGroupDiscount(group *types.ShopOrderGroup, code string, discount int) {
	lines := make([]types.CartLine, len(group.Lines))
	copy(lines, group.Lines)
	weights := make([]int, len(lines))
	subtotal := 0
	for i, line := range lines {
		weights[i] = line.UnitPriceCents * line.Quantity
		subtotal += weights[i]
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	for i, amount := range AllocateProportional(discount, weights) {
		lines[i].LineDiscountCents = amount
		lines[i].Recompute()
	}
	group.Lines = lines
	group.CouponCode = code
	if discount == 0 {
		group.CouponCode = ""
	}
	recomputeGroup(group)
}

// AllocateProportional splits total across weights using the largest
// remainder method so the parts always sum to total. Ties go to the earlier
// index. Zero total weight yields all zeros.
func AllocateProportional(total int, weights []int) []int {
	parts := make([]int, len(weights))
	sum := 0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if total <= 0 || sum == 0 {
		return parts
	}

	type remainder struct {
		index int
		rest  int
	}
	rests := make([]remainder, 0, len(weights))
	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		product := total * w
		parts[i] = product / sum
		assigned += parts[i]
		rests = append(rests, remainder{index: i, rest: product % sum})
	}
	sort.SliceStable(rests, func(a, b int) bool {
		return rests[a].rest > rests[b].rest
	})
	for k := 0; assigned < total; k++ {
		parts[rests[k%len(rests)].index]++
		assigned++
	}
	return parts
}

// GrandTotal sums group totals.
func GrandTotal(groups []types.ShopOrderGroup) int {
	total := 0
	for _, g := range groups {
		total += g.TotalCents
	}
	return total
}

func recomputeGroup(group *types.ShopOrderGroup) {
	group.SubtotalCents = 0
	group.DiscountCents = 0
	for _, line := range group.Lines {
		group.SubtotalCents += line.UnitPriceCents * line.Quantity
		group.DiscountCents += line.LineDiscountCents
	}
	group.TotalCents = group.SubtotalCents - group.DiscountCents
}
