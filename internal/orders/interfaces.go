package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/cart"
	"github.com/angelmondragon/storefront-checkout/internal/coupons"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
)

// Repository defines persistence operations for checkout groups and orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCheckoutGroup(ctx context.Context, group *models.CheckoutGroup) error
	CreateOrder(ctx context.Context, order *models.Order) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.CheckoutGroup, error)
	FindGroupByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.CheckoutGroup, error)
	MarkGroupPaid(ctx context.Context, groupID uuid.UUID, paymentID string, paidAt time.Time) error
	MarkGroupFailed(ctx context.Context, groupID uuid.UUID, paymentID, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type addressChecker interface {
	EnsureOwned(ctx context.Context, userID uuid.UUID, ids ...uuid.UUID) error
}

type couponQuoter interface {
	Evaluate(ctx context.Context, code string, shopSubtotals map[uuid.UUID]int) (*coupons.Evaluation, error)
	QuoteShop(ctx context.Context, code string, shopID uuid.UUID, subtotal int) (*coupons.Evaluation, error)
}

type cartStore interface {
	WithTx(tx *gorm.DB) cart.CartRepository
}
