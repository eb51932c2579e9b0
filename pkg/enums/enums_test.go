package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNormalizesInput(t *testing.T) {
	method, err := ParsePaymentMethod(" COD ")
	require.NoError(t, err)
	assert.Equal(t, PaymentMethodCOD, method)

	currency, err := ParseCurrency("inr")
	require.NoError(t, err)
	assert.Equal(t, CurrencyINR, currency)

	status, err := ParseOrderStatus("Pending_Payment")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingPayment, status)
}

func TestParseRejectsUnknownValues(t *testing.T) {
	_, err := ParsePaymentMethod("paypal")
	assert.EqualError(t, err, `invalid payment method "paypal"`)

	_, err = ParseCurrency("EUR")
	assert.Error(t, err)

	_, err = ParseOutboxAggregateType("")
	assert.Error(t, err)
}

func TestIsValidIsExact(t *testing.T) {
	assert.True(t, AddressTypeBilling.IsValid())
	assert.False(t, AddressType("Billing").IsValid())
	assert.False(t, Currency("inr").IsValid())
	assert.True(t, OutboxDLQReasonMaxAttempts.IsValid())
	assert.False(t, OutboxEventType("order_shipped").IsValid())
}

func TestInitialOrderStatus(t *testing.T) {
	assert.Equal(t, OrderStatusPendingPayment, InitialOrderStatus(PaymentMethodRazorpay))
	assert.Equal(t, OrderStatusConfirmed, InitialOrderStatus(PaymentMethodCOD))
	assert.True(t, DefaultPaymentMethod.UsesGateway())
}
