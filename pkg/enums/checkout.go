package enums

import "strings"

// PaymentMethod is how a buyer settles a checkout.
type PaymentMethod string

const (
	PaymentMethodRazorpay PaymentMethod = "razorpay"
	PaymentMethodCOD      PaymentMethod = "cod"
)

// DefaultPaymentMethod is preselected by the checkout wizard.
const DefaultPaymentMethod = PaymentMethodRazorpay

var paymentMethods = newSet("payment method", PaymentMethodRazorpay, PaymentMethodCOD)

func (p PaymentMethod) String() string { return string(p) }
func (p PaymentMethod) IsValid() bool  { return paymentMethods.has(p) }

// UsesGateway reports whether settlement happens through the hosted gateway.
func (p PaymentMethod) UsesGateway() bool { return p == PaymentMethodRazorpay }

func ParsePaymentMethod(raw string) (PaymentMethod, error) { return paymentMethods.parse(raw) }

// PaymentStatus tracks the settlement of a checkout group.
type PaymentStatus string

const (
	PaymentStatusPending     PaymentStatus = "pending"
	PaymentStatusPaid        PaymentStatus = "paid"
	PaymentStatusFailed      PaymentStatus = "failed"
	PaymentStatusNotRequired PaymentStatus = "not_required"
)

var paymentStatuses = newSet("payment status",
	PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusNotRequired)

func (s PaymentStatus) String() string { return string(s) }
func (s PaymentStatus) IsValid() bool  { return paymentStatuses.has(s) }

func ParsePaymentStatus(raw string) (PaymentStatus, error) { return paymentStatuses.parse(raw) }

// OrderStatus tracks one shop's order through settlement and fulfilment.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusFulfilled      OrderStatus = "fulfilled"
)

var orderStatuses = newSet("order status",
	OrderStatusPendingPayment, OrderStatusConfirmed, OrderStatusPaid,
	OrderStatusFailed, OrderStatusCancelled, OrderStatusFulfilled)

func (s OrderStatus) String() string { return string(s) }
func (s OrderStatus) IsValid() bool  { return orderStatuses.has(s) }

func ParseOrderStatus(raw string) (OrderStatus, error) { return orderStatuses.parse(raw) }

// InitialOrderStatus is the status an order is created with: gateway
// orders wait for payment, cash on delivery is confirmed at once.
func InitialOrderStatus(method PaymentMethod) OrderStatus {
	if method.UsesGateway() {
		return OrderStatusPendingPayment
	}
	return OrderStatusConfirmed
}

// Currency is the ISO 4217 code amounts are denominated in.
type Currency string

const (
	CurrencyINR Currency = "INR"
	CurrencyUSD Currency = "USD"
)

// DefaultCurrency is what the razorpay account settles in.
const DefaultCurrency = CurrencyINR

var currencies = func() set[Currency] {
	s := newSet("currency", CurrencyINR, CurrencyUSD)
	s.fold = strings.ToUpper
	return s
}()

func (c Currency) String() string { return string(c) }
func (c Currency) IsValid() bool  { return currencies.has(c) }

// ParseCurrency accepts the code in any case.
func ParseCurrency(raw string) (Currency, error) { return currencies.parse(raw) }
