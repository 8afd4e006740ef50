package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"taquilla/internal/cache"
	apperrors "taquilla/internal/errors"
	"taquilla/internal/external"
	"taquilla/internal/models"
)

type fakeGateway struct {
	mu          sync.Mutex
	intents     map[string]*models.PaymentIntent
	created     []external.CreateIntentParams
	retrieveErr error
	createErr   error
	events      map[string]*models.WebhookEvent
	nextID      int
	retrievals  int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		intents: map[string]*models.PaymentIntent{},
		events:  map[string]*models.WebhookEvent{},
	}
}

func (g *fakeGateway) Currency() string { return "mxn" }

func (g *fakeGateway) CreateIntent(_ context.Context, p external.CreateIntentParams) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, p)
	g.nextID++
	pi := &models.PaymentIntent{
		ID:           fmt.Sprintf("pi_%d", g.nextID),
		Status:       models.IntentRequiresPaymentMethod,
		Amount:       p.Amount,
		Currency:     p.Currency,
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.nextID),
		CustomerID:   p.CustomerID,
		Metadata:     p.Metadata,
	}
	g.intents[pi.ID] = pi
	copied := *pi
	return &copied, nil
}

func (g *fakeGateway) RetrieveIntent(_ context.Context, intentID string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retrievals++
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	pi, ok := g.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: no such intent %s", apperrors.ErrNotFound, intentID)
	}
	copied := *pi
	return &copied, nil
}

func (g *fakeGateway) EnsureCustomer(_ context.Context, email, _ string) (string, error) {
	return "cus_" + email, nil
}

func (g *fakeGateway) CreateEphemeralKey(_ context.Context, customerID string) (string, error) {
	return "ek_" + customerID, nil
}

func (g *fakeGateway) ListSucceededSince(_ context.Context, _ time.Time) ([]models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.PaymentIntent
	for _, pi := range g.intents {
		if pi.Status == models.IntentSucceeded {
			out = append(out, *pi)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// VerifyWebhook treats the payload as an event id and the signature as
// "valid" or anything else.
func (g *fakeGateway) VerifyWebhook(payload []byte, signature string) (*models.WebhookEvent, error) {
	if signature != "valid" {
		return nil, fmt.Errorf("%w: bad signature", apperrors.ErrInvalidSignature)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.events[string(payload)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event", apperrors.ErrInvalidSignature)
	}
	return ev, nil
}

func (g *fakeGateway) setStatus(intentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = status
}

func (g *fakeGateway) addIntent(pi *models.PaymentIntent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[pi.ID] = pi
}

func (g *fakeGateway) addEvent(ev *models.WebhookEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events[ev.ID] = ev
}

type fakeEvents map[int64]*models.Event

func (f fakeEvents) GetByID(_ context.Context, id int64) (*models.Event, error) {
	return f[id], nil
}

type fakeUsers map[int64]*models.User

func (f fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	return f[id], nil
}

// fakeTickets mirrors the batch-lock semantics of the Postgres store.
type fakeTickets struct {
	mu        sync.Mutex
	byIntent  map[string][]models.Ticket
	keys      map[string]bool
	createErr error
	creates   int
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{byIntent: map[string][]models.Ticket{}, keys: map[string]bool{}}
}

func (f *fakeTickets) CreateBatch(_ context.Context, batch *models.TicketBatch) ([]models.Ticket, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, false, f.createErr
	}
	if existing, ok := f.byIntent[batch.PaymentIntentID]; ok {
		return append([]models.Ticket(nil), existing...), false, nil
	}
	for _, t := range batch.Tickets {
		if f.keys[t.IdempotencyKey] {
			return nil, false, fmt.Errorf("duplicate idempotency key %s", t.IdempotencyKey)
		}
	}
	f.creates++
	tickets := make([]models.Ticket, len(batch.Tickets))
	for i, t := range batch.Tickets {
		t.CreatedAt = time.Now()
		tickets[i] = t
		f.keys[t.IdempotencyKey] = true
	}
	f.byIntent[batch.PaymentIntentID] = tickets
	return append([]models.Ticket(nil), tickets...), true, nil
}

func (f *fakeTickets) ListByPaymentIntent(_ context.Context, id string) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Ticket(nil), f.byIntent[id]...), nil
}

func (f *fakeTickets) ListByUser(_ context.Context, userID int64) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Ticket
	for _, tickets := range f.byIntent {
		for _, t := range tickets {
			if t.UserID == userID && t.IsActive {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (f *fakeTickets) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byIntent[id])
}

// seed stores tickets directly, bypassing the batch semantics.
func (f *fakeTickets) seed(id string, tickets []models.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIntent[id] = tickets
}

type published struct {
	subject string
	data    interface{}
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{subject, data})
	return p.err
}

func (p *fakePublisher) bySubject(subject string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// fixture wires the services against fakes with one event and one user.
type fixture struct {
	gateway   *fakeGateway
	events    fakeEvents
	users     fakeUsers
	tickets   *fakeTickets
	publisher *fakePublisher
	guard     *cache.MemoryGuard
	ledger    *cache.MemoryLedger
	checkout  *CheckoutService
	engine    *FulfillmentEngine
	webhooks  *WebhookReconciler
	status    *StatusProjector
}

func newFixture() *fixture {
	f := &fixture{
		gateway:   newFakeGateway(),
		events:    fakeEvents{},
		users:     fakeUsers{},
		tickets:   newFakeTickets(),
		publisher: &fakePublisher{},
		guard:     cache.NewMemoryGuard(),
		ledger:    cache.NewMemoryLedger(),
	}
	f.checkout = NewCheckoutService(f.gateway, f.events, f.users, f.guard, f.publisher)
	f.engine = NewFulfillmentEngine(f.gateway, f.tickets, f.publisher)
	f.webhooks = NewWebhookReconciler(f.gateway, f.engine, f.ledger, f.publisher)
	f.status = NewStatusProjector(f.gateway, f.tickets)
	return f
}

// succeededIntent registers a paid intent for the given attendees.
func (f *fixture) succeededIntent(id string, attendees ...string) *models.PaymentIntent {
	meta, err := models.IntentMetadata{
		EventID:        7,
		UserID:         42,
		Attendees:      attendees,
		EventName:      "Concierto de Primavera",
		UserEmail:      "juan@example.com",
		IdempotencyKey: "key-" + id,
	}.Encode()
	if err != nil {
		panic(err)
	}
	pi := &models.PaymentIntent{ID: id, Status: models.IntentSucceeded, Amount: 85000, Currency: "mxn", Metadata: meta}
	f.gateway.addIntent(pi)
	return pi
}
