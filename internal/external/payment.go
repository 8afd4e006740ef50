package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/logger"
	"taquilla/internal/metrics"
	"taquilla/internal/models"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	Currency          string
	Timeout           time.Duration
	MaxNetworkRetries int64

	// BaseURL and HTTPClient override the API endpoint and transport; tests
	// point them at a mock.
	BaseURL    string
	HTTPClient *http.Client
}

// CreateIntentParams describes one checkout's payment intent.
type CreateIntentParams struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// StripeGateway wraps the Stripe API calls the pipeline needs. Every call
// goes through a circuit breaker; outages surface as ErrGatewayUnavailable.
type StripeGateway struct {
	client        *client.API
	webhookSecret string
	currency      string
	cb            *gobreaker.CircuitBreaker[any]
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		LeveledLogger:     logger.StripeLogger{Logger: logger.WithFields("component", "stripe")},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}

	sc := &client.API{}
	sc.Init(cfg.SecretKey, stripe.NewBackendsWithConfig(backendCfg))

	return &StripeGateway{
		client:        sc,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
		cb:            newBreaker("stripe-api"),
	}
}

// Currency is the currency intents are created in.
func (g *StripeGateway) Currency() string {
	return g.currency
}

func (g *StripeGateway) execute(operation string, fn func() (any, error)) (any, error) {
	start := time.Now()
	result, err := g.cb.Execute(func() (any, error) {
		res, err := fn()
		if err != nil {
			return nil, mapStripeError(operation, err)
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%w: %s: %v", apperrors.ErrGatewayUnavailable, operation, err)
	}
	metrics.RecordGatewayCall(operation, err, time.Since(start))
	return result, err
}

func (g *StripeGateway) CreateIntent(ctx context.Context, p CreateIntentParams) (*models.PaymentIntent, error) {
	currency := p.Currency
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := castResult[stripe.PaymentIntent](g.execute("create_intent", func() (any, error) {
		return g.client.PaymentIntents.New(params)
	}))
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := castResult[stripe.PaymentIntent](g.execute("retrieve_intent", func() (any, error) {
		return g.client.PaymentIntents.Get(intentID, params)
	}))
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

// EnsureCustomer finds a customer by email or creates one. Two concurrent
// first checkouts may both create a customer; either one is usable.
func (g *StripeGateway) EnsureCustomer(ctx context.Context, email, name string) (string, error) {
	listParams := &stripe.CustomerListParams{Email: stripe.String(email)}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	existing, err := castResult[stripe.Customer](g.execute("find_customer", func() (any, error) {
		iter := g.client.Customers.List(listParams)
		if iter.Next() {
			return iter.Customer(), nil
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return (*stripe.Customer)(nil), nil
	}))
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx

	created, err := castResult[stripe.Customer](g.execute("create_customer", func() (any, error) {
		return g.client.Customers.New(params)
	}))
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// CreateEphemeralKey lets the mobile client act on the customer's behalf.
func (g *StripeGateway) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	params := &stripe.EphemeralKeyParams{
		Customer:      stripe.String(customerID),
		StripeVersion: stripe.String(stripe.APIVersion),
	}
	params.Context = ctx

	key, err := castResult[stripe.EphemeralKey](g.execute("create_ephemeral_key", func() (any, error) {
		return g.client.EphemeralKeys.New(params)
	}))
	if err != nil {
		return "", err
	}
	return key.Secret, nil
}

// ListSucceededSince returns intents created after since that have succeeded.
func (g *StripeGateway) ListSucceededSince(ctx context.Context, since time.Time) ([]models.PaymentIntent, error) {
	params := &stripe.PaymentIntentListParams{
		CreatedRange: &stripe.RangeQueryParams{GreaterThanOrEqual: since.Unix()},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	result, err := castResult[[]models.PaymentIntent](g.execute("list_intents", func() (any, error) {
		var intents []models.PaymentIntent
		iter := g.client.PaymentIntents.List(params)
		for iter.Next() {
			pi := iter.PaymentIntent()
			if pi.Status == stripe.PaymentIntentStatusSucceeded {
				intents = append(intents, *toPaymentIntent(pi))
			}
		}
		if err := iter.Err(); err != nil {
			return nil, err
		}
		return &intents, nil
	}))
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw payload
// and decodes the event. It makes no network calls.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidSignature, err)
	}

	result := &models.WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if event.Data == nil {
			return nil, fmt.Errorf("%w: event %s has no data", apperrors.ErrValidation, event.ID)
		}
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: failed to decode payment intent: %v", apperrors.ErrValidation, err)
		}
		result.PaymentIntent = toPaymentIntent(&pi)
		if pi.LastPaymentError != nil {
			result.FailureReason = pi.LastPaymentError.Msg
		}
	}

	return result, nil
}

func toPaymentIntent(pi *stripe.PaymentIntent) *models.PaymentIntent {
	out := &models.PaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}
	if pi.Customer != nil {
		out.CustomerID = pi.Customer.ID
	}
	return out
}

// mapStripeError classifies a Stripe failure into the pipeline's error kinds.
func mapStripeError(operation string, err error) error {
	// the caller went away; not the gateway's fault
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrGatewayUnavailable, operation, err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", apperrors.ErrNotFound, operation, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusBadRequest,
		stripeErr.HTTPStatusCode == http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s: %s", apperrors.ErrValidation, operation, stripeErr.Msg)
	// 409: a request with the same idempotency key is still in flight
	case stripeErr.HTTPStatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s: %s", apperrors.ErrGatewayUnavailable, operation, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s: %s (status %d)", apperrors.ErrGatewayUnavailable,
			operation, stripeErr.Msg, stripeErr.HTTPStatusCode)
	}
}
