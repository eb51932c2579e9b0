package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// SkippedLine is a guest line that could not be merged.
type SkippedLine struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Reason    string `json:"reason"`
}

// MergeResult is the cart after a guest merge plus anything left behind.
type MergeResult struct {
	Cart    *types.Cart   `json:"cart"`
	Skipped []SkippedLine `json:"skipped"`
}

type guestEntry struct {
	identity  string
	productID string
	variantID string
	quantity  int
}

// MergeGuestCart folds a guest snapshot into the owner's cart. Each line
// remembers how much guest quantity it already absorbed, so merging the
// same snapshot again adds nothing. Guest prices are ignored; new lines are
// priced from the catalog.
func (s *service) MergeGuestCart(ctx context.Context, ownerID uuid.UUID, guest []types.CartLine, ifMatch *int64) (*MergeResult, error) {
	entries := collapseGuest(guest)
	if len(entries) == 0 {
		cart, err := s.Get(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		if ifMatch != nil && *ifMatch != cart.Version {
			return nil, staleVersion(*ifMatch, cart.Version)
		}
		return &MergeResult{Cart: cart, Skipped: []SkippedLine{}}, nil
	}

	skipped := []SkippedLine{}
	skip := func(entry guestEntry, reason string) {
		skipped = append(skipped, SkippedLine{ProductID: entry.productID, VariantID: entry.variantID, Reason: reason})
	}

	view, err := s.mutate(ctx, ownerID, ifMatch, func(ctx context.Context, cart *models.Cart) error {
		for _, entry := range entries {
			productID, err := uuid.Parse(entry.productID)
			if err != nil {
				skip(entry, types.LineIssueNotFound)
				continue
			}
			var variantID *uuid.UUID
			if entry.variantID != "" {
				parsed, err := uuid.Parse(entry.variantID)
				if err != nil {
					skip(entry, types.LineIssueNotFound)
					continue
				}
				variantID = &parsed
			}

			idx := findByIdentity(cart.Lines, identityOf(productID, variantID))
			delta := entry.quantity
			if idx >= 0 {
				delta = entry.quantity - cart.Lines[idx].MergedGuestQty
				if delta <= 0 {
					continue
				}
			}

			snap, err := s.catalog.GetProduct(ctx, productID, variantID)
			if err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
					skip(entry, types.LineIssueNotFound)
					continue
				}
				return err
			}
			if !snap.IsAvailable {
				skip(entry, types.LineIssueUnavailable)
				continue
			}

			if idx >= 0 {
				line := &cart.Lines[idx]
				line.Quantity = min(line.Quantity+delta, snap.MaxQuantity)
				line.MergedGuestQty = entry.quantity
				refreshLine(line, snap)
				continue
			}
			line := newLine(cart.ID, snap, min(entry.quantity, snap.MaxQuantity))
			line.MergedGuestQty = entry.quantity
			cart.Lines = append(cart.Lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &MergeResult{Cart: view, Skipped: skipped}, nil
}

// collapseGuest sums duplicate identities and drops non-positive quantities,
// keeping first-seen order.
func collapseGuest(lines []types.CartLine) []guestEntry {
	var entries []guestEntry
	index := map[string]int{}
	for _, line := range lines {
		if line.Quantity <= 0 || line.ProductID == "" {
			continue
		}
		identity := line.Identity()
		if i, ok := index[identity]; ok {
			entries[i].quantity += line.Quantity
			continue
		}
		index[identity] = len(entries)
		entries = append(entries, guestEntry{
			identity:  identity,
			productID: line.ProductID,
			variantID: line.VariantID,
			quantity:  line.Quantity,
		})
	}
	return entries
}
