package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, e *FulfillmentEngine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Drain(ctx))
}

func TestFulfillCreatesOneTicketPerAttendeeInOrder(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana", "Luis", "Sofía")

	tickets, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	for i, name := range []string{"Ana", "Luis", "Sofía"} {
		assert.Equal(t, name, tickets[i].NameOfAttendee)
		assert.Equal(t, i, tickets[i].Position)
		assert.Equal(t, "pi_1", tickets[i].PaymentIntentID)
		assert.Equal(t, int64(7), tickets[i].EventID)
		assert.Equal(t, int64(42), tickets[i].UserID)
		assert.True(t, tickets[i].IsActive)
		assert.Equal(t, TicketIdempotencyKey("key-pi_1", i, name), tickets[i].IdempotencyKey)
	}

	drain(t, f.engine)
	issued := f.publisher.bySubject(models.EventTicketIssued)
	require.Len(t, issued, 3)
	msg := issued[0].data.(models.TicketIssuedEvent)
	assert.Equal(t, "juan@example.com", msg.UserEmail)
	assert.Equal(t, "Concierto de Primavera", msg.EventName)
	assert.Len(t, f.publisher.bySubject(models.EventPaymentCompleted), 1)
}

func TestFulfillIsIdempotentSequentially(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana", "Luis")
	ctx := context.Background()

	first, err := f.engine.FulfillIfSucceeded(ctx, "pi_1", SourceConfirm)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := f.engine.FulfillIfSucceeded(ctx, "pi_1", SourceWebhook)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	drain(t, f.engine)
	assert.Equal(t, 2, f.tickets.count("pi_1"))
	assert.Equal(t, 1, f.tickets.creates)
	assert.Len(t, f.publisher.bySubject(models.EventTicketIssued), 2, "notifications only for the first fulfillment")
}

func TestFulfillIsIdempotentConcurrently(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana", "Luis", "Sofía")

	const callers = 20
	var wg sync.WaitGroup
	results := make([][]models.Ticket, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceWebhook)
		}(i)
	}
	wg.Wait()
	drain(t, f.engine)

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Len(t, results[i], 3)
		assert.Equal(t, results[0][0].ID, results[i][0].ID)
	}
	assert.Equal(t, 3, f.tickets.count("pi_1"))
	assert.Equal(t, 1, f.tickets.creates)
	assert.Len(t, f.publisher.bySubject(models.EventTicketIssued), 3)
}

func TestFulfillRejectsUnpaidIntent(t *testing.T) {
	for _, status := range []string{
		models.IntentRequiresPaymentMethod,
		models.IntentRequiresAction,
		models.IntentProcessing,
		models.IntentCanceled,
	} {
		t.Run(status, func(t *testing.T) {
			f := newFixture()
			pi := f.succeededIntent("pi_1", "Ana")
			pi.Status = status

			_, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
			assert.ErrorIs(t, err, apperrors.ErrPaymentNotCompleted)
			assert.Equal(t, 0, f.tickets.count("pi_1"))
		})
	}
}

func TestFulfillReturnsExistingWithoutNotifying(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana")
	f.tickets.seed("pi_1", []models.Ticket{{NameOfAttendee: "Ana", PaymentIntentID: "pi_1"}})

	tickets, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)

	drain(t, f.engine)
	assert.Empty(t, f.publisher.msgs)
}

func TestFulfillErrors(t *testing.T) {
	t.Run("gateway unavailable", func(t *testing.T) {
		f := newFixture()
		f.gateway.retrieveErr = apperrors.ErrGatewayUnavailable
		_, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
		assert.ErrorIs(t, err, apperrors.ErrGatewayUnavailable)
	})

	t.Run("unknown intent", func(t *testing.T) {
		f := newFixture()
		_, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_missing", SourceConfirm)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture()
		f.succeededIntent("pi_1", "Ana")
		f.tickets.createErr = errors.New("connection reset")
		_, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
		assert.ErrorIs(t, err, apperrors.ErrPersistence)
		assert.True(t, apperrors.Retryable(err))
	})

	t.Run("corrupt metadata", func(t *testing.T) {
		f := newFixture()
		pi := f.succeededIntent("pi_1", "Ana")
		pi.Metadata[models.MetaAttendees] = "not json"
		_, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestNotificationFailureDoesNotFailFulfillment(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana")
	f.publisher.err = errors.New("nats down")

	tickets, err := f.engine.FulfillIfSucceeded(context.Background(), "pi_1", SourceConfirm)
	require.NoError(t, err)
	assert.Len(t, tickets, 1)
	drain(t, f.engine)
}

func TestNotificationsOutliveRequestContext(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana", "Luis")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := f.engine.FulfillIfSucceeded(ctx, "pi_1", SourceConfirm)
	require.NoError(t, err)
	cancel()

	drain(t, f.engine)
	assert.Len(t, f.publisher.bySubject(models.EventTicketIssued), 2)
}

func TestTicketIdempotencyKeyIsDeterministic(t *testing.T) {
	a := TicketIdempotencyKey("key", 0, "Ana")
	assert.Equal(t, a, TicketIdempotencyKey("key", 0, "Ana"))
	assert.NotEqual(t, a, TicketIdempotencyKey("key", 1, "Ana"))
	assert.NotEqual(t, a, TicketIdempotencyKey("key", 0, "Luis"))
	assert.NotEqual(t, a, TicketIdempotencyKey("other", 0, "Ana"))
	assert.Len(t, a, 64)
}

func TestSweepFulfillsMissedPayments(t *testing.T) {
	f := newFixture()
	f.succeededIntent("pi_1", "Ana")
	f.succeededIntent("pi_2", "Luis", "Sofía")
	ctx := context.Background()

	_, err := f.engine.FulfillIfSucceeded(ctx, "pi_1", SourceWebhook)
	require.NoError(t, err)

	result, err := f.engine.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, 0, result.Failed)

	assert.Equal(t, 1, f.tickets.count("pi_1"))
	assert.Equal(t, 2, f.tickets.count("pi_2"))
	drain(t, f.engine)
}
