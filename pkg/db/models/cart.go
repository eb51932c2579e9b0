package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart is the server-owned cart of one authenticated user.
type Cart struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID    uuid.UUID  `gorm:"column:owner_id;type:uuid;not null;uniqueIndex"`
	CouponCode *string    `gorm:"column:coupon_code"`
	Version    int64      `gorm:"column:version;not null"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	Lines      []CartLine `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key.
func (c *Cart) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// IsExpired reports whether the cart outlived its TTL at now.
func (c *Cart) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// CartLine persists one product/variant entry. Price, shop and availability
// are the values observed at the last catalog read.
type CartLine struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CartID         uuid.UUID  `gorm:"column:cart_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ShopID         uuid.UUID  `gorm:"column:shop_id;type:uuid;not null"`
	ShopName       string     `gorm:"column:shop_name;not null"`
	ProductName    string     `gorm:"column:product_name;not null"`
	ProductSlug    string     `gorm:"column:product_slug;not null;default:''"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	MaxQuantity    int        `gorm:"column:max_quantity;not null"`
	IsAvailable    bool       `gorm:"column:is_available;not null"`
	MergedGuestQty int        `gorm:"column:merged_guest_qty;not null;default:0"`
	Position       int        `gorm:"column:position;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key.
func (l *CartLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// VariantString renders the optional variant id, empty when absent.
func (l CartLine) VariantString() string {
	if l.VariantID == nil {
		return ""
	}
	return l.VariantID.String()
}
