package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
	"github.com/angelmondragon/storefront-checkout/pkg/types"
)

// Validate re-checks every line against the live catalog without changing
// the cart. It is the last read before orders are created.
func (s *service) Validate(ctx context.Context, ownerID uuid.UUID) (*types.CartValidation, error) {
	result := &types.CartValidation{Errors: []types.CartValidationError{}}

	cart, err := s.repo.FindByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if cart == nil || cart.IsExpired(s.now().UTC()) || len(cart.Lines) == 0 {
		result.Errors = append(result.Errors, types.CartValidationError{
			Error:   types.LineIssueCartEmpty,
			Message: "cart is empty",
		})
		return result, nil
	}

	for _, line := range cart.Lines {
		issue := types.CartValidationError{
			ItemID:    line.ID.String(),
			ProductID: line.ProductID.String(),
		}
		snap, err := s.catalog.GetProduct(ctx, line.ProductID, line.VariantID)
		switch {
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			issue.Error, issue.Message = types.LineIssueNotFound, "product no longer exists"
		case err != nil:
			return nil, err
		case !snap.IsAvailable:
			issue.Error, issue.Message = types.LineIssueUnavailable, "product is unavailable"
		case line.Quantity > snap.MaxQuantity:
			issue.Error, issue.Message = types.LineIssueOutOfStock, "not enough stock for the requested quantity"
		case line.UnitPriceCents != snap.PriceCents:
			issue.Error, issue.Message = types.LineIssuePriceChanged, "price changed since the item was added"
		default:
			continue
		}
		result.Errors = append(result.Errors, issue)
	}
	result.Valid = len(result.Errors) == 0
	return result, nil
}
