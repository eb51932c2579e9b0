package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// CurrentSchemaVersion is stamped on envelopes whose event leaves it unset.
const CurrentSchemaVersion = 1

// Event is a state change to be published once the surrounding
// transaction commits.
type Event struct {
	Type          enums.OutboxEventType
	Aggregate     enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	SchemaVersion int
	OccurredAt    time.Time
}

// Actor names who caused the event.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role,omitempty"`
}

// BuyerActor is the actor for changes made by a shopper.
func BuyerActor(id uuid.UUID) *Actor {
	return &Actor{UserID: id, Role: "buyer"}
}

// Envelope is the JSON document stored in outbox_events.payload and sent
// verbatim as the Pub/Sub message body.
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	EventID       string          `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Actor         *Actor          `json:"actor,omitempty"`
	Data          json.RawMessage `json:"data"`
}

var (
	ErrTxRequired       = errors.New("outbox: transaction required")
	ErrUnknownType      = errors.New("outbox: unknown event type")
	ErrUnknownAggregate = errors.New("outbox: unknown aggregate type")
	ErrMissingAggregate = errors.New("outbox: aggregate id required")
)

func (e Event) validate() error {
	switch {
	case !e.Type.IsValid():
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	case !e.Aggregate.IsValid():
		return fmt.Errorf("%w: %q", ErrUnknownAggregate, e.Aggregate)
	case e.AggregateID == uuid.Nil:
		return ErrMissingAggregate
	}
	return nil
}

func (e Event) envelope(eventID uuid.UUID, now time.Time) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", e.Type, err)
	}
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := e.SchemaVersion
	if version <= 0 {
		version = CurrentSchemaVersion
	}
	return json.Marshal(Envelope{
		SchemaVersion: version,
		EventID:       eventID.String(),
		OccurredAt:    occurred.UTC(),
		Actor:         e.Actor,
		Data:          data,
	})
}

// DecodeEnvelope parses a stored payload.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
