package enums

import "fmt"

// OutboxAggregateType identifies the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateReservation        OutboxAggregateType = "reservation"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateReservation,
	AggregatePaymentTransaction,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names the domain events written to outbox_events.
type OutboxEventType string

const (
	EventReservationPaymentConfirmed  OutboxEventType = "reservation_payment_confirmed"
	EventReservationPaymentProcessing OutboxEventType = "reservation_payment_processing"
	EventPaymentTransactionInitiated  OutboxEventType = "payment_transaction_initiated"
	EventPaymentTransactionFailed     OutboxEventType = "payment_transaction_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventReservationPaymentConfirmed,
	EventReservationPaymentProcessing,
	EventPaymentTransactionInitiated,
	EventPaymentTransactionFailed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
