package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taquilla/internal/metrics"
	"taquilla/internal/models"

	"github.com/nats-io/stan.go"
)

// errMalformed marks messages that will never decode; they are acked so the
// bus stops redelivering them.
var errMalformed = errors.New("malformed message")

// Mailer sends the attendee confirmation for an issued ticket
type Mailer interface {
	SendTicket(ctx context.Context, ticket models.TicketIssuedEvent) error
}

// LogMailer пишет письмо в лог вместо отправки
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) SendTicket(_ context.Context, t models.TicketIssuedEvent) error {
	log := m.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("Ticket confirmation",
		"to", t.UserEmail,
		"subject", fmt.Sprintf("Tu boleto para %s", t.EventName),
		"ticket_id", t.TicketID,
		"attendee", t.NameOfAttendee,
		"payment_intent_id", t.PaymentIntentID)
	return nil
}

type Handlers struct {
	mailer  Mailer
	timeout time.Duration
}

func NewHandlers(mailer Mailer) *Handlers {
	return &Handlers{
		mailer:  mailer,
		timeout: 15 * time.Second,
	}
}

func (h *Handlers) HandleTicketIssued(m *stan.Msg) {
	h.consume(m, h.ticketIssued)
}

func (h *Handlers) HandlePaymentCompleted(m *stan.Msg) {
	h.consume(m, h.paymentCompleted)
}

func (h *Handlers) HandlePaymentFailed(m *stan.Msg) {
	h.consume(m, h.paymentFailed)
}

// consume acks on success and on malformed payloads; other failures are left
// unacked for redelivery.
func (h *Handlers) consume(m *stan.Msg, handle func(ctx context.Context, data []byte) error) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	err := handle(ctx, m.Data)
	switch {
	case err == nil:
		metrics.MessagesConsumed.WithLabelValues(m.Subject, "success").Inc()
	case errors.Is(err, errMalformed):
		metrics.MessagesConsumed.WithLabelValues(m.Subject, "malformed").Inc()
		slog.Error("Dropping malformed message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	default:
		metrics.MessagesConsumed.WithLabelValues(m.Subject, "error").Inc()
		slog.Error("Failed to handle message, leaving for redelivery", "subject", m.Subject, "sequence", m.Sequence, "error", err)
		return
	}

	if err := m.Ack(); err != nil {
		slog.Error("Failed to ack message", "subject", m.Subject, "sequence", m.Sequence, "error", err)
	}
}

func (h *Handlers) ticketIssued(ctx context.Context, data []byte) error {
	var event models.TicketIssuedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if event.UserEmail == "" {
		return fmt.Errorf("%w: ticket %s has no recipient", errMalformed, event.TicketID)
	}

	if err := h.mailer.SendTicket(ctx, event); err != nil {
		return fmt.Errorf("failed to send ticket %s: %w", event.TicketID, err)
	}
	return nil
}

func (h *Handlers) paymentCompleted(_ context.Context, data []byte) error {
	var event models.PaymentCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	slog.Info("Payment completed", "payment_intent_id", event.PaymentIntentID, "tickets", event.TicketCount)
	return nil
}

func (h *Handlers) paymentFailed(_ context.Context, data []byte) error {
	var event models.PaymentFailedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	slog.Warn("Payment failed", "payment_intent_id", event.PaymentIntentID, "reason", event.Reason)
	return nil
}
