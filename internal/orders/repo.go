package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// ErrAlreadySettled is returned when a paid group is marked again.
var ErrAlreadySettled = errors.New("checkout group already settled")

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCheckoutGroup(ctx context.Context, group *models.CheckoutGroup) error {
	return r.db.WithContext(ctx).Omit("Orders").Create(group).Error
}

// CreateOrder inserts the order together with its lines.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.CheckoutGroup, error) {
	return r.findGroup(ctx, "id = ?", id)
}

func (r *repository) FindGroupByGatewayOrder(ctx context.Context, gatewayOrderID string) (*models.CheckoutGroup, error) {
	return r.findGroup(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *repository) findGroup(ctx context.Context, query string, arg any) (*models.CheckoutGroup, error) {
	var group models.CheckoutGroup
	err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Preload("Orders.Lines").
		Where(query, arg).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// MarkGroupPaid settles the group and moves its pending orders to paid.
func (r *repository) MarkGroupPaid(ctx context.Context, groupID uuid.UUID, paymentID string, paidAt time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutGroup{}).
		Where("id = ? AND payment_status IN ?", groupID, []enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusFailed}).
		Updates(map[string]any{
			"payment_status":     enums.PaymentStatusPaid,
			"gateway_payment_id": paymentID,
			"failure_reason":     nil,
			"updated_at":         paidAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("checkout_group_id = ? AND status = ?", groupID, enums.OrderStatusPendingPayment).
		Updates(map[string]any{
			"status":     enums.OrderStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		}).Error
}

// MarkGroupFailed records a failed verification. Orders stay pending so the
// buyer can retry; a paid group is never downgraded.
func (r *repository) MarkGroupFailed(ctx context.Context, groupID uuid.UUID, paymentID, reason string) error {
	updates := map[string]any{
		"payment_status": enums.PaymentStatusFailed,
		"failure_reason": reason,
	}
	if paymentID != "" {
		updates["gateway_payment_id"] = paymentID
	}
	res := r.db.WithContext(ctx).
		Model(&models.CheckoutGroup{}).
		Where("id = ? AND payment_status <> ?", groupID, enums.PaymentStatusPaid).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return nil
}
