package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"taquilla/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []models.TicketIssuedEvent
	err  error
}

func (m *recordingMailer) SendTicket(_ context.Context, t models.TicketIssuedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, t)
	return nil
}

func issuedPayload(t *testing.T, email string) []byte {
	t.Helper()
	data, err := json.Marshal(models.TicketIssuedEvent{
		TicketID:        uuid.New(),
		PaymentIntentID: "pi_1",
		EventID:         7,
		EventName:       "Concierto de Primavera",
		UserID:          42,
		UserEmail:       email,
		NameOfAttendee:  "Juan Pérez",
		Timestamp:       time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestTicketIssuedSendsConfirmation(t *testing.T) {
	mailer := &recordingMailer{}
	h := NewHandlers(mailer)

	require.NoError(t, h.ticketIssued(context.Background(), issuedPayload(t, "juan@example.com")))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "juan@example.com", mailer.sent[0].UserEmail)
	assert.Equal(t, "Juan Pérez", mailer.sent[0].NameOfAttendee)
}

func TestTicketIssuedErrors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		h := NewHandlers(&recordingMailer{})
		err := h.ticketIssued(context.Background(), []byte("{"))
		assert.ErrorIs(t, err, errMalformed)
	})

	t.Run("no recipient", func(t *testing.T) {
		h := NewHandlers(&recordingMailer{})
		err := h.ticketIssued(context.Background(), issuedPayload(t, ""))
		assert.ErrorIs(t, err, errMalformed)
	})

	t.Run("mailer failure is retryable", func(t *testing.T) {
		h := NewHandlers(&recordingMailer{err: errors.New("smtp timeout")})
		err := h.ticketIssued(context.Background(), issuedPayload(t, "juan@example.com"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, errMalformed)
	})
}

func TestPaymentEvents(t *testing.T) {
	h := NewHandlers(LogMailer{})

	completed, _ := json.Marshal(models.PaymentCompletedEvent{PaymentIntentID: "pi_1", TicketCount: 2})
	assert.NoError(t, h.paymentCompleted(context.Background(), completed))

	failed, _ := json.Marshal(models.PaymentFailedEvent{PaymentIntentID: "pi_1", Reason: "card_declined"})
	assert.NoError(t, h.paymentFailed(context.Background(), failed))

	assert.ErrorIs(t, h.paymentFailed(context.Background(), []byte("nope")), errMalformed)
}

func TestLogMailer(t *testing.T) {
	var m Mailer = LogMailer{}
	assert.NoError(t, m.SendTicket(context.Background(), models.TicketIssuedEvent{UserEmail: "juan@example.com"}))
}
