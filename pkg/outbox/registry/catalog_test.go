package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return c
}

func row(t *testing.T, eventType enums.OutboxEventType, data any) models.OutboxEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.Envelope{
		SchemaVersion: 1,
		EventID:       uuid.NewString(),
		OccurredAt:    time.Now().UTC(),
		Data:          raw,
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateCheckoutGroup,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestCatalogDecodesOrderCreated(t *testing.T) {
	orderID := uuid.New()
	r := row(t, enums.EventOrderCreated, payloads.OrderCreatedEvent{
		CheckoutGroupID: uuid.New(),
		PaymentMethod:   enums.PaymentMethodCOD,
		Orders:          []payloads.ShopOrderRef{{OrderID: orderID, ShopID: uuid.New(), AmountCents: 500}},
	})

	msg, err := testCatalog(t).Decode(r)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", msg.Topic)
	assert.Equal(t, 1, msg.Envelope.SchemaVersion)

	payload, ok := msg.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok, "payload type %T", msg.Payload)
	require.Len(t, payload.Orders, 1)
	assert.Equal(t, orderID, payload.Orders[0].OrderID)
	assert.Equal(t, enums.PaymentMethodCOD, payload.PaymentMethod)
}

func TestCatalogRoutesPaymentEvents(t *testing.T) {
	c := testCatalog(t)
	group := uuid.New()
	for _, r := range []models.OutboxEvent{
		row(t, enums.EventOrderPaid, payloads.OrderPaidEvent{CheckoutGroupID: group, GatewayOrderID: "order_1"}),
		row(t, enums.EventPaymentFailed, payloads.PaymentFailedEvent{CheckoutGroupID: group, Reason: "signature_mismatch"}),
	} {
		msg, err := c.Decode(r)
		require.NoError(t, err, r.EventType)
		assert.Equal(t, "orders-topic", msg.Topic)
	}
}

func TestCatalogRejectsBadRowsPermanently(t *testing.T) {
	c := testCatalog(t)
	valid := payloads.OrderCreatedEvent{
		CheckoutGroupID: uuid.New(),
		Orders:          []payloads.ShopOrderRef{{OrderID: uuid.New()}},
	}
	cases := map[string]func(*models.OutboxEvent){
		"unknown type":       func(r *models.OutboxEvent) { r.EventType = "reservation_released" },
		"aggregate mismatch": func(r *models.OutboxEvent) { r.AggregateType = enums.AggregateOrder },
		"nil aggregate id":   func(r *models.OutboxEvent) { r.AggregateID = uuid.Nil },
		"broken envelope":    func(r *models.OutboxEvent) { r.Payload = []byte(`{"data":`) },
		"bad event id":       func(r *models.OutboxEvent) { r.Payload = []byte(`{"event_id":"x","data":{}}`) },
		"null data": func(r *models.OutboxEvent) {
			r.Payload = []byte(fmt.Sprintf(`{"event_id":%q,"data":null}`, uuid.NewString()))
		},
		"missing group": func(r *models.OutboxEvent) {
			r.Payload = []byte(fmt.Sprintf(`{"event_id":%q,"data":{"orders":[{}]}}`, uuid.NewString()))
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := row(t, enums.EventOrderCreated, valid)
			mutate(&r)
			_, err := c.Decode(r)
			require.Error(t, err)
			assert.True(t, IsPermanent(err), "expected permanent error, got %v", err)
		})
	}
}

func TestCatalogTopicsAreDistinct(t *testing.T) {
	assert.Equal(t, []string{"orders-topic"}, testCatalog(t).Topics())
}

func TestNewCatalogRequiresOrdersTopic(t *testing.T) {
	_, err := NewCatalog(config.PubSubConfig{OrdersTopic: "  "})
	require.Error(t, err)
}

func TestPermanentWrapping(t *testing.T) {
	base := errors.New("boom")
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))

	wrapped := fmt.Errorf("publish: %w", Permanent(base))
	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, base)
}
