package enums

// OutboxAggregateType is the aggregate_type column of outbox_events; events
// sharing an aggregate are published in order.
type OutboxAggregateType string

const (
	AggregateCheckoutGroup OutboxAggregateType = "checkout_group"
	AggregateOrder         OutboxAggregateType = "order"
)

var aggregateTypes = newSet("aggregate type", AggregateCheckoutGroup, AggregateOrder)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(raw)
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated  OutboxEventType = "order_created"
	EventOrderPaid     OutboxEventType = "order_paid"
	EventPaymentFailed OutboxEventType = "payment_failed"
)

var eventTypes = newSet("event type", EventOrderCreated, EventOrderPaid, EventPaymentFailed)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) { return eventTypes.parse(raw) }

// OutboxDLQErrorReason records why the relay gave up on a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = newSet("dead letter reason", OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable)

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
