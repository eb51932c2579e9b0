package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Order is the per-shop order produced from a checkout group.
type Order struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutGroupID   uuid.UUID           `gorm:"column:checkout_group_id;type:uuid;not null;index"`
	ShopID            uuid.UUID           `gorm:"column:shop_id;type:uuid;not null"`
	ShopName          string              `gorm:"column:shop_name;not null"`
	BuyerID           uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null;index"`
	ShippingAddressID uuid.UUID           `gorm:"column:shipping_address_id;type:uuid;not null"`
	BillingAddressID  uuid.UUID           `gorm:"column:billing_address_id;type:uuid;not null"`
	PaymentMethod     enums.PaymentMethod `gorm:"column:payment_method;not null"`
	CouponCode        *string             `gorm:"column:coupon_code"`
	SubtotalCents     int                 `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int                 `gorm:"column:discount_cents;not null;default:0"`
	TaxCents          int                 `gorm:"column:tax_cents;not null;default:0"`
	AmountCents       int                 `gorm:"column:amount_cents;not null"`
	Status            enums.OrderStatus   `gorm:"column:status;not null"`
	Notes             *string             `gorm:"column:notes"`
	Lines             []OrderLine         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// BeforeCreate assigns the primary key.
func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// OrderLine snapshots one purchased product at placement time.
type OrderLine struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	ProductName    string     `gorm:"column:product_name;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	DiscountCents  int        `gorm:"column:discount_cents;not null;default:0"`
	TotalCents     int        `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// BeforeCreate assigns the primary key.
func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}
