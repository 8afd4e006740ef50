package service

import (
	"context"
	"time"

	"taquilla/internal/external"
	"taquilla/internal/models"
)

// PaymentGateway is implemented by external.StripeGateway.
type PaymentGateway interface {
	Currency() string
	CreateIntent(ctx context.Context, p external.CreateIntentParams) (*models.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error)
	EnsureCustomer(ctx context.Context, email, name string) (string, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (string, error)
	ListSucceededSince(ctx context.Context, since time.Time) ([]models.PaymentIntent, error)
	VerifyWebhook(payload []byte, signature string) (*models.WebhookEvent, error)
}

// EventStore returns nil, nil for unknown events.
type EventStore interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

// UserStore returns nil, nil for unknown users.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type TicketStore interface {
	CreateBatch(ctx context.Context, batch *models.TicketBatch) ([]models.Ticket, bool, error)
	ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]models.Ticket, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error)
}

// RequestGuard remembers which payment intent a checkout fingerprint
// produced. Implemented by cache.MemoryGuard and cache.RedisGuard.
type RequestGuard interface {
	Reserve(ctx context.Context, fingerprint string) (string, bool, error)
	Record(ctx context.Context, fingerprint, intentID string) error
	Forget(ctx context.Context, fingerprint string) error
}

// EventLedger remembers processed webhook event ids. Implemented by
// cache.MemoryLedger and cache.RedisLedger.
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}
