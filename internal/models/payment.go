package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Gateway-side payment intent statuses
const (
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresConfirmation  = "requires_confirmation"
	IntentRequiresAction        = "requires_action"
	IntentProcessing            = "processing"
	IntentSucceeded             = "succeeded"
	IntentCanceled              = "canceled"
)

// Metadata keys stored on every payment intent
const (
	MetaEventID        = "eventId"
	MetaUserID         = "userId"
	MetaAttendees      = "attendees"
	MetaTicketCount    = "ticketCount"
	MetaEventName      = "eventName"
	MetaUserEmail      = "userEmail"
	MetaIdempotencyKey = "idempotencyKey"
)

// MaxMetadataValueLen is the gateway limit for a single metadata value.
const MaxMetadataValueLen = 500

// MaxAttendeeNameLen matches tickets.name_of_attendee, counted in characters.
const MaxAttendeeNameLen = 255

// PaymentIntent is the gateway intent as seen by the pipeline
type PaymentIntent struct {
	ID           string
	Status       string
	Amount       int64
	Currency     string
	ClientSecret string
	CustomerID   string
	Metadata     map[string]string
}

// IntentMetadata is the only durable record of what a payment is for until
// tickets exist.
type IntentMetadata struct {
	EventID        int64
	UserID         int64
	Attendees      []string
	EventName      string
	UserEmail      string
	IdempotencyKey string
}

// Encode flattens the metadata into gateway key/value pairs.
func (m IntentMetadata) Encode() (map[string]string, error) {
	attendees, err := json.Marshal(m.Attendees)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attendees: %w", err)
	}
	if len(attendees) > MaxMetadataValueLen {
		return nil, fmt.Errorf("encoded attendees exceed %d characters", MaxMetadataValueLen)
	}

	return map[string]string{
		MetaEventID:        strconv.FormatInt(m.EventID, 10),
		MetaUserID:         strconv.FormatInt(m.UserID, 10),
		MetaAttendees:      string(attendees),
		MetaTicketCount:    strconv.Itoa(len(m.Attendees)),
		MetaEventName:      m.EventName,
		MetaUserEmail:      m.UserEmail,
		MetaIdempotencyKey: m.IdempotencyKey,
	}, nil
}

// ParseIntentMetadata restores metadata written by Encode.
func ParseIntentMetadata(meta map[string]string) (IntentMetadata, error) {
	var m IntentMetadata

	eventID, err := strconv.ParseInt(meta[MetaEventID], 10, 64)
	if err != nil {
		return m, fmt.Errorf("invalid %s metadata: %w", MetaEventID, err)
	}
	userID, err := strconv.ParseInt(meta[MetaUserID], 10, 64)
	if err != nil {
		return m, fmt.Errorf("invalid %s metadata: %w", MetaUserID, err)
	}

	var attendees []string
	if err := json.Unmarshal([]byte(meta[MetaAttendees]), &attendees); err != nil {
		return m, fmt.Errorf("invalid %s metadata: %w", MetaAttendees, err)
	}

	if raw, ok := meta[MetaTicketCount]; ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return m, fmt.Errorf("invalid %s metadata: %w", MetaTicketCount, err)
		}
		if count != len(attendees) {
			return m, fmt.Errorf("ticket count %d does not match %d attendees", count, len(attendees))
		}
	}

	m.EventID = eventID
	m.UserID = userID
	m.Attendees = attendees
	m.EventName = meta[MetaEventName]
	m.UserEmail = meta[MetaUserEmail]
	m.IdempotencyKey = meta[MetaIdempotencyKey]
	return m, nil
}

// ExpectedTicketCount reads the ticket count recorded on an intent, falling
// back to the attendee list. Returns 0 when neither is usable.
func ExpectedTicketCount(meta map[string]string) int {
	if raw, ok := meta[MetaTicketCount]; ok {
		if count, err := strconv.Atoi(raw); err == nil {
			return count
		}
	}
	var attendees []string
	if err := json.Unmarshal([]byte(meta[MetaAttendees]), &attendees); err == nil {
		return len(attendees)
	}
	return 0
}

// Gateway webhook event types the pipeline reacts to
const (
	WebhookPaymentSucceeded = "payment_intent.succeeded"
	WebhookPaymentFailed    = "payment_intent.payment_failed"
)

// WebhookEvent is a verified gateway notification. PaymentIntent is set only
// for payment_intent.* events.
type WebhookEvent struct {
	ID            string
	Type          string
	PaymentIntent *PaymentIntent
	FailureReason string
}
