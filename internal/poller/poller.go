// Package poller drives the client side of checkout: it polls the status
// endpoint until the payment reaches a state the user can act on, then
// sends the user to the matching view.
package poller

import (
	"context"
	"sync"
	"time"

	"taquilla/internal/logger"
	"taquilla/internal/models"
)

type State string

const (
	StateLoading        State = "loading"
	StateChecking       State = "checking"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	StateRequiresAction State = "requires_action"
	StateTimeout        State = "timeout"
)

// View is a screen the poller can redirect to.
type View string

const (
	ViewSuccess        View = "success"
	ViewError          View = "error"
	ViewRequiresAction View = "requires_action"
)

const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
	DefaultNoticeDelay = 3 * time.Second

	MissingIntentMessage = "No encontramos un pago para verificar."
	DelayedNoticeMessage = "La verificación de tu pago está tardando más de lo normal."
	TimeoutMessage       = "No pudimos confirmar tu pago todavía. Es posible que aún se complete; revisa Mis Boletos en unos minutos."
)

type StatusFetcher interface {
	FetchStatus(ctx context.Context, intentID string) (*models.StatusResponse, error)
}

// Navigator is the UI side: a transient notice and a final redirect.
type Navigator interface {
	ShowNotice(message string)
	Redirect(view View, message string)
}

type Config struct {
	Interval    time.Duration
	MaxAttempts int
	// NoticeDelay is how long the delayed-verification notice stays up before
	// the timeout redirect.
	NoticeDelay time.Duration
	// RequestTimeout bounds a single status request. Zero means no bound.
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		MaxAttempts: DefaultMaxAttempts,
		NoticeDelay: DefaultNoticeDelay,
	}
}

// Outcome describes how a run ended.
type Outcome struct {
	State    State
	View     View
	Message  string
	Attempts int
}

type Poller struct {
	fetcher StatusFetcher
	nav     Navigator
	cfg     Config

	mu    sync.Mutex
	state State
}

func New(fetcher StatusFetcher, nav Navigator, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.NoticeDelay < 0 {
		cfg.NoticeDelay = 0
	}
	return &Poller{fetcher: fetcher, nav: nav, cfg: cfg, state: StateLoading}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run polls until a terminal status, the attempt limit, or ctx is done.
// Cancelling ctx stops all timers; no redirect happens in that case and
// ctx.Err() is returned.
func (p *Poller) Run(ctx context.Context, intentID string) (Outcome, error) {
	log := logger.WithFields("component", "poller", "payment_intent_id", intentID)

	if intentID == "" {
		p.setState(StateFailed)
		p.nav.Redirect(ViewError, MissingIntentMessage)
		return Outcome{State: StateFailed, View: ViewError, Message: MissingIntentMessage}, nil
	}

	p.setState(StateChecking)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{State: p.State(), Attempts: attempts}, err
		}
		attempts++
		status, err := p.fetch(ctx, intentID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{State: p.State(), Attempts: attempts}, ctx.Err()
			}
			// a failed request still counts toward the limit
			log.Warn("Status request failed", "attempt", attempts, "error", err)
		} else if out, ok := terminal(status); ok {
			out.Attempts = attempts
			p.setState(out.State)
			p.nav.Redirect(out.View, out.Message)
			log.Info("Payment reached terminal status", "status", status.Status, "attempts", attempts)
			return out, nil
		}

		if attempts >= p.cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return Outcome{State: p.State(), Attempts: attempts}, ctx.Err()
		case <-ticker.C:
		}
	}
	ticker.Stop()

	p.setState(StateTimeout)
	log.Warn("Payment status still not terminal", "attempts", attempts)
	p.nav.ShowNotice(DelayedNoticeMessage)

	timer := time.NewTimer(p.cfg.NoticeDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Outcome{State: StateTimeout, Attempts: attempts}, ctx.Err()
	case <-timer.C:
	}

	p.nav.Redirect(ViewError, TimeoutMessage)
	return Outcome{State: StateTimeout, View: ViewError, Message: TimeoutMessage, Attempts: attempts}, nil
}

func (p *Poller) fetch(ctx context.Context, intentID string) (*models.StatusResponse, error) {
	if p.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RequestTimeout)
		defer cancel()
	}
	return p.fetcher.FetchStatus(ctx, intentID)
}

func terminal(status *models.StatusResponse) (Outcome, bool) {
	if !status.Terminal() {
		return Outcome{}, false
	}
	out := Outcome{State: StateRequiresAction, View: ViewRequiresAction, Message: status.Message}
	switch status.Status {
	case models.StatusSucceeded:
		out.State, out.View = StateSucceeded, ViewSuccess
	case models.StatusFailed:
		out.State, out.View = StateFailed, ViewError
	}
	return out, true
}
