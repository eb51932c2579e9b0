package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// CheckoutGroup links the sibling shop orders of one submission so payment
// verification can settle them together.
type CheckoutGroup struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BuyerID          uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	AmountCents      int                 `gorm:"column:amount_cents;not null"`
	GatewayOrderID   *string             `gorm:"column:gateway_order_id;uniqueIndex"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	Notes            *string             `gorm:"column:notes"`
	Orders           []Order             `gorm:"foreignKey:CheckoutGroupID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key.
func (g *CheckoutGroup) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
