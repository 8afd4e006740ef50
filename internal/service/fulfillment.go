package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/logger"
	"taquilla/internal/messaging"
	"taquilla/internal/metrics"
	"taquilla/internal/models"

	"github.com/google/uuid"
)

// Fulfillment sources, used as a metrics label
const (
	SourceConfirm = "confirm"
	SourceWebhook = "webhook"
	SourceSweep   = "sweep"
)

const notifyTimeout = 10 * time.Second

// FulfillmentEngine turns a succeeded payment intent into tickets exactly
// once, however many times and from however many places it is invoked.
type FulfillmentEngine struct {
	gateway   PaymentGateway
	tickets   TicketStore
	publisher messaging.Publisher
	now       func() time.Time

	notifications sync.WaitGroup
}

func NewFulfillmentEngine(gateway PaymentGateway, tickets TicketStore, publisher messaging.Publisher) *FulfillmentEngine {
	return &FulfillmentEngine{
		gateway:   gateway,
		tickets:   tickets,
		publisher: publisher,
		now:       time.Now,
	}
}

// FulfillIfSucceeded returns the intent's tickets, creating them if the
// payment has succeeded and none exist yet.
func (e *FulfillmentEngine) FulfillIfSucceeded(ctx context.Context, intentID, source string) (tickets []models.Ticket, err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		metrics.FulfillmentDuration.WithLabelValues(source, outcome).Observe(time.Since(start).Seconds())
	}()

	log := logger.WithContext(ctx).With("payment_intent_id", intentID, "source", source)

	intent, err := e.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != models.IntentSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", apperrors.ErrPaymentNotCompleted, intentID, intent.Status)
	}

	existing, err := e.tickets.ListByPaymentIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tickets: %v", apperrors.ErrPersistence, err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	meta, err := models.ParseIntentMetadata(intent.Metadata)
	if err != nil {
		log.Error("Payment intent carries unusable metadata", "error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if len(meta.Attendees) == 0 {
		return nil, fmt.Errorf("%w: payment intent %s has no attendees", apperrors.ErrValidation, intentID)
	}

	batch := buildBatch(intent, meta)
	created, isNew, err := e.tickets.CreateBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create tickets: %v", apperrors.ErrPersistence, err)
	}
	if !isNew {
		log.Info("Tickets already issued by a concurrent fulfillment", "tickets", len(created))
		return created, nil
	}

	metrics.TicketsIssued.Add(float64(len(created)))
	log.Info("Tickets issued", "tickets", len(created), "event_id", meta.EventID, "user_id", meta.UserID)

	e.notify(ctx, intentID, meta, created)
	return created, nil
}

// Drain waits for in-flight notifications or until ctx is done.
func (e *FulfillmentEngine) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.notifications.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify publishes one ticket.issued message per ticket off the request
// path. Failures are logged; the tickets are already committed.
func (e *FulfillmentEngine) notify(ctx context.Context, intentID string, meta models.IntentMetadata, tickets []models.Ticket) {
	log := logger.WithContext(ctx).With("payment_intent_id", intentID)
	bg := context.WithoutCancel(ctx)

	e.notifications.Add(1)
	go func() {
		defer e.notifications.Done()

		ctx, cancel := context.WithTimeout(bg, notifyTimeout)
		defer cancel()

		for _, t := range tickets {
			err := e.publisher.Publish(ctx, models.EventTicketIssued, models.TicketIssuedEvent{
				TicketID:        t.ID,
				PaymentIntentID: intentID,
				EventID:         t.EventID,
				EventName:       meta.EventName,
				UserID:          t.UserID,
				UserEmail:       meta.UserEmail,
				NameOfAttendee:  t.NameOfAttendee,
				Timestamp:       e.now(),
			})
			if err != nil {
				metrics.NotificationsFailed.Inc()
				log.Error("Failed to publish ticket notification", "error", err, "ticket_id", t.ID)
			}
		}

		if err := e.publisher.Publish(ctx, models.EventPaymentCompleted, models.PaymentCompletedEvent{
			PaymentIntentID: intentID,
			TicketCount:     len(tickets),
			Timestamp:       e.now(),
		}); err != nil {
			log.Warn("Failed to publish payment completed event", "error", err)
		}
	}()
}

func buildBatch(intent *models.PaymentIntent, meta models.IntentMetadata) *models.TicketBatch {
	baseKey := meta.IdempotencyKey
	if baseKey == "" {
		baseKey = intent.ID
	}

	batch := &models.TicketBatch{
		PaymentIntentID: intent.ID,
		EventID:         meta.EventID,
		UserID:          meta.UserID,
		Tickets:         make([]models.Ticket, len(meta.Attendees)),
	}
	for i, name := range meta.Attendees {
		batch.Tickets[i] = models.Ticket{
			ID:              uuid.New(),
			NameOfAttendee:  name,
			EventID:         meta.EventID,
			UserID:          meta.UserID,
			PaymentIntentID: intent.ID,
			Position:        i,
			IdempotencyKey:  TicketIdempotencyKey(baseKey, i, name),
			IsActive:        true,
		}
	}
	return batch
}

// TicketIdempotencyKey derives the unique key of the ticket at index for an
// intent's idempotency key.
func TicketIdempotencyKey(intentKey string, index int, attendee string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", intentKey, index, attendee)))
	return hex.EncodeToString(sum[:])
}
