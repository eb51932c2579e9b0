package checkout

import (
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// StockCheck is one requested product line measured against live stock.
type StockCheck struct {
	ProductID   uuid.UUID
	VariantID   *uuid.UUID
	ProductName string
	Requested   int
	Available   int
	IsAvailable bool
}

// StockViolation is reported to callers for each line that cannot be filled.
type StockViolation struct {
	ProductID    uuid.UUID  `json:"product_id"`
	VariantID    *uuid.UUID `json:"variant_id,omitempty"`
	ProductName  string     `json:"product_name,omitempty"`
	RequestedQty int        `json:"requested"`
	AvailableQty int        `json:"available"`
}

// ValidateStock returns OUT_OF_STOCK listing every line whose product is
// unavailable or whose requested quantity exceeds what is available.
func ValidateStock(items []StockCheck) error {
	var violations []StockViolation
	for _, item := range items {
		available := item.Available
		if !item.IsAvailable {
			available = 0
		}
		if item.Requested <= available {
			continue
		}
		violations = append(violations, StockViolation{
			ProductID:    item.ProductID,
			VariantID:    item.VariantID,
			ProductName:  item.ProductName,
			RequestedQty: item.Requested,
			AvailableQty: available,
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeOutOfStock, fmt.Sprintf("requested quantity not available for %d item(s)", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}
