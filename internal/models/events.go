package models

import (
	"time"

	"github.com/google/uuid"
)

// NATS Event Types
const (
	EventTicketIssued     = "ticket.issued"
	EventCheckoutCreated  = "checkout.created"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCompleted = "payment.completed"
)

// TicketIssuedEvent carries everything the confirmation mail needs
type TicketIssuedEvent struct {
	TicketID        uuid.UUID `json:"ticket_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	EventID         int64     `json:"event_id"`
	EventName       string    `json:"event_name"`
	UserID          int64     `json:"user_id"`
	UserEmail       string    `json:"user_email"`
	NameOfAttendee  string    `json:"name_of_attendee"`
	Timestamp       time.Time `json:"timestamp"`
}

// CheckoutCreatedEvent represents a freshly created payment intent
type CheckoutCreatedEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	EventID         int64     `json:"event_id"`
	UserID          int64     `json:"user_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	TicketCount     int       `json:"ticket_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentCompletedEvent represents a fulfilled payment
type PaymentCompletedEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	TicketCount     int       `json:"ticket_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentFailedEvent represents a failed payment attempt reported by the gateway
type PaymentFailedEvent struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}
