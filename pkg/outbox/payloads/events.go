package payloads

import "time"

// ReservationPaymentConfirmedEvent is emitted when a reservation moves to COMPLETE.
type ReservationPaymentConfirmedEvent struct {
	ReservationID   string    `json:"reservationId"`
	PurchasableType string    `json:"purchasableType"`
	PurchasableID   string    `json:"purchasableId"`
	PaymentMethod   string    `json:"paymentMethod"`
	Provider        string    `json:"provider"`
	GatewayID       string    `json:"gatewayId,omitempty"`
	PreviousStatus  string    `json:"previousStatus"`
	Source          string    `json:"source"`
	ConfirmedAt     time.Time `json:"confirmedAt"`
}

// ReservationPaymentProcessingEvent is emitted when the provider reports the payment as in flight.
type ReservationPaymentProcessingEvent struct {
	ReservationID string `json:"reservationId"`
	Provider      string `json:"provider"`
	GatewayID     string `json:"gatewayId,omitempty"`
}

// PaymentTransactionInitiatedEvent is emitted once per successful initialization.
type PaymentTransactionInitiatedEvent struct {
	TransactionID string `json:"transactionId"`
	ReservationID string `json:"reservationId"`
	PaymentMethod string `json:"paymentMethod"`
	Provider      string `json:"provider"`
}

// PaymentTransactionFailedEvent is emitted when the provider reports a definitive failure.
type PaymentTransactionFailedEvent struct {
	TransactionID string `json:"transactionId"`
	ReservationID string `json:"reservationId"`
	Provider      string `json:"provider"`
	Reason        string `json:"reason,omitempty"`
}
