package enums

// AddressType separates shipping from billing entries in the address book.
type AddressType string

const (
	AddressTypeShipping AddressType = "shipping"
	AddressTypeBilling  AddressType = "billing"
)

var addressTypes = newSet("address type", AddressTypeShipping, AddressTypeBilling)

func (a AddressType) IsValid() bool { return addressTypes.has(a) }

func ParseAddressType(raw string) (AddressType, error) { return addressTypes.parse(raw) }

// CouponDiscountType selects how a coupon's value is read: a percentage of
// the shop subtotal or a fixed amount in minor units.
type CouponDiscountType string

const (
	CouponDiscountPercentage CouponDiscountType = "percentage"
	CouponDiscountFixed      CouponDiscountType = "fixed"
)

var couponDiscountTypes = newSet("coupon discount type", CouponDiscountPercentage, CouponDiscountFixed)

func (c CouponDiscountType) IsValid() bool { return couponDiscountTypes.has(c) }

func ParseCouponDiscountType(raw string) (CouponDiscountType, error) {
	return couponDiscountTypes.parse(raw)
}
