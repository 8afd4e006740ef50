package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckoutRequest - модель запроса на оформление покупки
type CheckoutRequest struct {
	EventID        int64    `json:"eventId" binding:"required"`
	UserID         int64    `json:"userId"`
	Attendees      []string `json:"attendees"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

// CheckoutResponse - данные, необходимые клиенту для оплаты
type CheckoutResponse struct {
	ClientSecret       string `json:"clientSecret"`
	PaymentIntentID    string `json:"paymentIntentId"`
	Amount             int64  `json:"amount"`
	Currency           string `json:"currency"`
	EventName          string `json:"eventName"`
	TicketCount        int    `json:"ticketCount"`
	PricePerTicket     string `json:"pricePerTicket"`
	EphemeralKeySecret string `json:"ephemeralKeySecret,omitempty"`
	CustomerID         string `json:"customerId,omitempty"`
	Status             string `json:"status"`
	Reused             bool   `json:"reused,omitempty"`
}

// ConfirmCheckoutRequest - подтверждение оплаты клиентом
type ConfirmCheckoutRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
}

// ConfirmCheckoutResponse - выданные билеты
type ConfirmCheckoutResponse struct {
	Tickets []TicketSummary `json:"tickets"`
}

// TicketSummary - краткое представление билета для клиента
type TicketSummary struct {
	ID             uuid.UUID `json:"id"`
	NameOfAttendee string    `json:"nameOfAttendee"`
	EventID        int64     `json:"eventId"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// NewTicketSummaries converts tickets to their client-facing form.
func NewTicketSummaries(tickets []Ticket) []TicketSummary {
	result := make([]TicketSummary, len(tickets))
	for i, t := range tickets {
		result[i] = TicketSummary{
			ID:             t.ID,
			NameOfAttendee: t.NameOfAttendee,
			EventID:        t.EventID,
			IsActive:       t.IsActive,
			CreatedAt:      t.CreatedAt,
		}
	}
	return result
}

// Client-facing checkout statuses
const (
	StatusPending        = "pending"
	StatusProcessing     = "processing"
	StatusSucceeded      = "succeeded"
	StatusFailed         = "failed"
	StatusRequiresAction = "requires_action"
)

// StatusResponse - проекция статуса оплаты для опроса клиентом
type StatusResponse struct {
	PaymentIntentID string          `json:"paymentIntentId"`
	Status          string          `json:"status"`
	Message         string          `json:"message"`
	Tickets         []TicketSummary `json:"tickets"`
	ExpectedCount   int             `json:"expectedCount"`
	CreatedCount    int             `json:"createdCount"`
}

// Terminal reports whether the client should stop polling.
func (s *StatusResponse) Terminal() bool {
	switch s.Status {
	case StatusSucceeded, StatusFailed, StatusRequiresAction:
		return true
	}
	return false
}

// WebhookResult - ответ на доставку webhook
type WebhookResult struct {
	Received bool `json:"received"`
	Skipped  bool `json:"skipped,omitempty"`
}

// ListTicketsResponse - билеты пользователя
type ListTicketsResponse []TicketSummary
