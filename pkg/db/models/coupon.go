package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Coupon is a discount code. A nil ShopID makes it valid across shops.
type Coupon struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Code             string                   `gorm:"column:code;not null;uniqueIndex"`
	ShopID           *uuid.UUID               `gorm:"column:shop_id;type:uuid"`
	DiscountType     enums.CouponDiscountType `gorm:"column:discount_type;not null"`
	Value            decimal.Decimal          `gorm:"column:value;type:numeric(12,4);not null"`
	MaxDiscountCents *int                     `gorm:"column:max_discount_cents"`
	MinOrderCents    int                      `gorm:"column:min_order_cents;not null;default:0"`
	StartsAt         *time.Time               `gorm:"column:starts_at"`
	ExpiresAt        *time.Time               `gorm:"column:expires_at"`
	Active           bool                     `gorm:"column:active;not null"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key.
func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
