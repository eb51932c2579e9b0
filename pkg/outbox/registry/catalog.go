// Package registry routes outbox rows to Pub/Sub topics and decodes their
// payloads into the typed event structs consumers rely on.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/payloads"
)

// Message is a decoded outbox row ready to publish.
type Message struct {
	Topic    string
	Envelope outbox.Envelope
	Payload  any
}

type route struct {
	aggregate enums.OutboxAggregateType
	topic     string
	decode    func(json.RawMessage) (any, error)
}

// Catalog knows every event type the relay may publish.
type Catalog struct {
	routes map[enums.OutboxEventType]route
}

func NewCatalog(cfg config.PubSubConfig) (*Catalog, error) {
	orders := strings.TrimSpace(cfg.OrdersTopic)
	if orders == "" {
		return nil, errors.New("orders topic is required")
	}
	return &Catalog{routes: map[enums.OutboxEventType]route{
		enums.EventOrderCreated:  {enums.AggregateCheckoutGroup, orders, decodeAs[payloads.OrderCreatedEvent]},
		enums.EventOrderPaid:     {enums.AggregateCheckoutGroup, orders, decodeAs[payloads.OrderPaidEvent]},
		enums.EventPaymentFailed: {enums.AggregateCheckoutGroup, orders, decodeAs[payloads.PaymentFailedEvent]},
	}}, nil
}

// Topics lists the distinct topics the catalog publishes to.
func (c *Catalog) Topics() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range c.routes {
		if _, ok := seen[r.topic]; ok {
			continue
		}
		seen[r.topic] = struct{}{}
		out = append(out, r.topic)
	}
	sort.Strings(out)
	return out
}

// Decode checks row against its route and decodes the payload. Every error
// it returns is permanent: retrying cannot fix a malformed row.
func (c *Catalog) Decode(row models.OutboxEvent) (*Message, error) {
	r, ok := c.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if r.aggregate != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row says %s", row.EventType, r.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate id missing"))
	}
	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(err)
	}
	if _, err := uuid.Parse(env.EventID); err != nil {
		return nil, Permanent(fmt.Errorf("envelope event id %q: %w", env.EventID, err))
	}
	payload, err := r.decode(env.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%s: %w", row.EventType, err))
	}
	return &Message{Topic: r.topic, Envelope: env, Payload: payload}, nil
}

func decodeAs[T any](data json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, errors.New("payload is empty")
	}
	v := new(T)
	if err := json.Unmarshal(trimmed, v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if c, ok := any(v).(interface{ Check() error }); ok {
		if err := c.Check(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that no retry will fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
