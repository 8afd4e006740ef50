package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/external"
	"taquilla/internal/logger"
	"taquilla/internal/messaging"
	"taquilla/internal/metrics"
	"taquilla/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var minorUnits = decimal.NewFromInt(100)

type CheckoutService struct {
	gateway   PaymentGateway
	events    EventStore
	users     UserStore
	guard     RequestGuard
	publisher messaging.Publisher
	now       func() time.Time
}

func NewCheckoutService(gateway PaymentGateway, events EventStore, users UserStore, guard RequestGuard, publisher messaging.Publisher) *CheckoutService {
	return &CheckoutService{
		gateway:   gateway,
		events:    events,
		users:     users,
		guard:     guard,
		publisher: publisher,
		now:       time.Now,
	}
}

// Create validates the request and returns a payment intent for it. A
// request identical to a recent one gets the intent created back then.
func (s *CheckoutService) Create(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	log := logger.WithContext(ctx)

	attendees, err := normalizeAttendees(req.Attendees)
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	event, user, err := s.loadParticipants(ctx, req.EventID, req.UserID)
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	meta := models.IntentMetadata{
		EventID:        event.ID,
		UserID:         user.UserID,
		Attendees:      attendees,
		EventName:      event.Name,
		UserEmail:      user.Email,
		IdempotencyKey: req.IdempotencyKey,
	}
	if meta.IdempotencyKey == "" {
		meta.IdempotencyKey = uuid.New().String()
	}
	encoded, err := meta.Encode()
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	fingerprint := Fingerprint(user.UserID, event.ID, attendees)
	if resp, ok := s.reuse(ctx, fingerprint, event, len(attendees)); ok {
		metrics.GuardHits.Inc()
		metrics.CheckoutsTotal.WithLabelValues("reused").Inc()
		return resp, nil
	}

	amount := ComputeAmount(event.Price, len(attendees))

	customerID, err := s.gateway.EnsureCustomer(ctx, user.Email, user.FullName())
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	ephemeralKey, err := s.gateway.CreateEphemeralKey(ctx, customerID)
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	intent, err := s.gateway.CreateIntent(ctx, external.CreateIntentParams{
		Amount:         amount,
		Currency:       s.gateway.Currency(),
		CustomerID:     customerID,
		Description:    fmt.Sprintf("%d x %s", len(attendees), event.Name),
		IdempotencyKey: meta.IdempotencyKey,
		Metadata:       encoded,
	})
	if err != nil {
		metrics.CheckoutsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if err := s.guard.Record(ctx, fingerprint, intent.ID); err != nil {
		log.Warn("Failed to record checkout in guard", "error", err, "payment_intent_id", intent.ID)
	}

	if err := s.publisher.Publish(ctx, models.EventCheckoutCreated, models.CheckoutCreatedEvent{
		PaymentIntentID: intent.ID,
		EventID:         event.ID,
		UserID:          user.UserID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		TicketCount:     len(attendees),
		Timestamp:       s.now(),
	}); err != nil {
		log.Warn("Failed to publish checkout created event", "error", err, "payment_intent_id", intent.ID)
	}

	metrics.CheckoutsTotal.WithLabelValues("created").Inc()
	log.Info("Checkout created",
		"payment_intent_id", intent.ID, "event_id", event.ID, "tickets", len(attendees), "amount", amount)

	return &models.CheckoutResponse{
		ClientSecret:       intent.ClientSecret,
		PaymentIntentID:    intent.ID,
		Amount:             intent.Amount,
		Currency:           intent.Currency,
		EventName:          event.Name,
		TicketCount:        len(attendees),
		PricePerTicket:     event.Price.StringFixed(2),
		EphemeralKeySecret: ephemeralKey,
		CustomerID:         customerID,
		Status:             intent.Status,
	}, nil
}

func (s *CheckoutService) loadParticipants(ctx context.Context, eventID, userID int64) (*models.Event, *models.User, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to get event: %v", apperrors.ErrPersistence, err)
	}
	if event == nil || !event.Sellable(s.now()) {
		return nil, nil, fmt.Errorf("%w: event %d is not available", apperrors.ErrNotFound, eventID)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to get user: %v", apperrors.ErrPersistence, err)
	}
	if user == nil || !user.IsActive {
		return nil, nil, fmt.Errorf("%w: user %d is not available", apperrors.ErrNotFound, userID)
	}

	return event, user, nil
}

// reuse answers from the guard when possible. Any failure falls through to
// creating a new intent; the gateway idempotency key still protects retries.
func (s *CheckoutService) reuse(ctx context.Context, fingerprint string, event *models.Event, ticketCount int) (*models.CheckoutResponse, bool) {
	log := logger.WithContext(ctx)

	intentID, ok, err := s.guard.Reserve(ctx, fingerprint)
	if err != nil {
		log.Warn("Checkout guard lookup failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		log.Warn("Failed to refresh guarded payment intent", "error", err, "payment_intent_id", intentID)
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = s.guard.Forget(ctx, fingerprint)
		}
		return nil, false
	}
	// a finished intent no longer blocks a new purchase of the same tickets
	if intent.Status == models.IntentCanceled || intent.Status == models.IntentSucceeded {
		_ = s.guard.Forget(ctx, fingerprint)
		return nil, false
	}

	resp := &models.CheckoutResponse{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		EventName:       event.Name,
		TicketCount:     ticketCount,
		PricePerTicket:  event.Price.StringFixed(2),
		CustomerID:      intent.CustomerID,
		Status:          intent.Status,
		Reused:          true,
	}
	if intent.CustomerID != "" {
		if key, err := s.gateway.CreateEphemeralKey(ctx, intent.CustomerID); err == nil {
			resp.EphemeralKeySecret = key
		} else {
			log.Warn("Failed to issue ephemeral key for reused intent", "error", err)
		}
	}

	log.Info("Checkout answered from guard", "payment_intent_id", intent.ID, "status", intent.Status)
	return resp, true
}

// ComputeAmount returns price * count in minor units, rounded once on the
// total (half away from zero).
func ComputeAmount(unitPrice decimal.Decimal, count int) int64 {
	return unitPrice.Mul(decimal.NewFromInt(int64(count))).Mul(minorUnits).Round(0).IntPart()
}

// Fingerprint identifies a checkout by who buys what, ignoring attendee order.
func Fingerprint(userID, eventID int64, attendees []string) string {
	sorted := append([]string(nil), attendees...)
	sort.Strings(sorted)

	payload, _ := json.Marshal(struct {
		UserID    int64    `json:"userId"`
		EventID   int64    `json:"eventId"`
		Attendees []string `json:"attendees"`
	}{userID, eventID, sorted})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func normalizeAttendees(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: at least one attendee is required", apperrors.ErrValidation)
	}
	attendees := make([]string, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%w: attendee %d has an empty name", apperrors.ErrValidation, i+1)
		}
		if utf8.RuneCountInString(name) > models.MaxAttendeeNameLen {
			return nil, fmt.Errorf("%w: attendee %d name exceeds %d characters",
				apperrors.ErrValidation, i+1, models.MaxAttendeeNameLen)
		}
		attendees[i] = name
	}
	return attendees, nil
}
