package service

import (
	"context"
	"fmt"
	"time"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/logger"
	"taquilla/internal/messaging"
	"taquilla/internal/metrics"
	"taquilla/internal/models"
)

type WebhookReconciler struct {
	gateway   PaymentGateway
	engine    *FulfillmentEngine
	ledger    EventLedger
	publisher messaging.Publisher
}

func NewWebhookReconciler(gateway PaymentGateway, engine *FulfillmentEngine, ledger EventLedger, publisher messaging.Publisher) *WebhookReconciler {
	return &WebhookReconciler{
		gateway:   gateway,
		engine:    engine,
		ledger:    ledger,
		publisher: publisher,
	}
}

// Handle verifies and applies one gateway delivery. An event is recorded as
// processed only after it was handled, so a failed delivery is retried in
// full when the gateway redelivers it.
func (r *WebhookReconciler) Handle(ctx context.Context, payload []byte, signature string) (*models.WebhookResult, error) {
	event, err := r.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("unknown", "invalid").Inc()
		return nil, err
	}

	log := logger.WithContext(ctx).With("webhook_event_id", event.ID, "type", event.Type)

	seen, err := r.ledger.Seen(ctx, event.ID)
	if err != nil {
		// the ledger is an optimization; fulfillment itself is idempotent
		log.Warn("Webhook ledger lookup failed", "error", err)
	}
	if seen {
		metrics.WebhooksTotal.WithLabelValues(event.Type, "skipped").Inc()
		log.Info("Duplicate webhook delivery skipped")
		return &models.WebhookResult{Received: true, Skipped: true}, nil
	}

	outcome := "processed"
	switch event.Type {
	case models.WebhookPaymentSucceeded:
		if event.PaymentIntent == nil {
			metrics.WebhooksTotal.WithLabelValues(event.Type, "error").Inc()
			return nil, fmt.Errorf("%w: event %s carries no payment intent", apperrors.ErrValidation, event.ID)
		}
		tickets, err := r.engine.FulfillIfSucceeded(ctx, event.PaymentIntent.ID, SourceWebhook)
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues(event.Type, "error").Inc()
			log.Error("Webhook fulfillment failed", "error", err, "payment_intent_id", event.PaymentIntent.ID)
			return nil, err
		}
		log.Info("Webhook fulfilled payment", "payment_intent_id", event.PaymentIntent.ID, "tickets", len(tickets))

	case models.WebhookPaymentFailed:
		intentID := ""
		if event.PaymentIntent != nil {
			intentID = event.PaymentIntent.ID
		}
		log.Warn("Payment failed", "payment_intent_id", intentID, "reason", event.FailureReason)
		if err := r.publisher.Publish(ctx, models.EventPaymentFailed, models.PaymentFailedEvent{
			PaymentIntentID: intentID,
			Reason:          event.FailureReason,
			Timestamp:       time.Now(),
		}); err != nil {
			log.Warn("Failed to publish payment failed event", "error", err)
		}

	default:
		outcome = "ignored"
		log.Debug("Ignoring webhook event type")
	}

	if err := r.ledger.MarkProcessed(ctx, event.ID); err != nil {
		log.Warn("Failed to record processed webhook", "error", err)
	}
	metrics.WebhooksTotal.WithLabelValues(event.Type, outcome).Inc()

	return &models.WebhookResult{Received: true}, nil
}
