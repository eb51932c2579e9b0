package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/coupons"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, id uuid.UUID) error
	BumpVersion(ctx context.Context, cart *models.Cart, expected int64) error
	SaveLine(ctx context.Context, line *models.CartLine) error
	DeleteLines(ctx context.Context, cartID uuid.UUID, ids []uuid.UUID) error
	CountItems(ctx context.Context, ownerID uuid.UUID, now time.Time) (int, error)
	RemovePurchased(ctx context.Context, ownerID uuid.UUID, purchased map[string]int) error
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type couponEvaluator interface {
	Evaluate(ctx context.Context, code string, shopSubtotals map[uuid.UUID]int) (*coupons.Evaluation, error)
}
