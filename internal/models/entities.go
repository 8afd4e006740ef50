package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User represents a user in the system
type User struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	FirstName    string    `json:"first_name" db:"first_name"`
	Surname      string    `json:"surname" db:"surname"`
	RegisteredAt time.Time `json:"registered_at" db:"registered_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

// FullName joins first name and surname for display and gateway customers.
func (u *User) FullName() string {
	if u.Surname == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.Surname
}

// Event represents a sellable event in the catalog
type Event struct {
	ID            int64           `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   *string         `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	DatetimeStart time.Time       `json:"datetime_start" db:"datetime_start"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Sellable reports whether tickets for the event can currently be bought.
func (e *Event) Sellable(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.DatetimeStart.IsZero() || e.DatetimeStart.After(now)
}

// Ticket is one admission issued for a succeeded payment intent
type Ticket struct {
	ID              uuid.UUID `json:"id" db:"id"`
	NameOfAttendee  string    `json:"name_of_attendee" db:"name_of_attendee"`
	EventID         int64     `json:"event_id" db:"event_id"`
	UserID          int64     `json:"user_id" db:"user_id"`
	PaymentIntentID string    `json:"payment_intent_id" db:"payment_intent_id"`
	Position        int       `json:"position" db:"position"`
	IdempotencyKey  string    `json:"idempotency_key" db:"idempotency_key"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// TicketBatch is the full set of tickets created for one payment intent.
type TicketBatch struct {
	PaymentIntentID string
	EventID         int64
	UserID          int64
	Tickets         []Ticket
}
