package consumers

import (
	"context"
	"fmt"
	"log/slog"

	"taquilla/internal/config"
	"taquilla/internal/database"
	"taquilla/internal/external"
	"taquilla/internal/messaging"
	"taquilla/internal/models"
	"taquilla/internal/repository"
	"taquilla/internal/service"

	"github.com/nats-io/stan.go"
)

const queueGroup = "consumers"

type ConsumerService struct {
	db          *database.DB
	nats        *messaging.NATSClient
	handlers    *Handlers
	fulfillment *service.FulfillmentEngine
	subs        []stan.Subscription
}

func NewConsumerService(cfg *config.Config, mailer Mailer) (*ConsumerService, error) {
	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	// Connect to NATS
	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Sweep repairs missed webhooks through the same fulfillment engine as the API
	repos := repository.NewRepositories(db)
	gateway := external.NewStripeGateway(cfg.Stripe)
	engine := service.NewFulfillmentEngine(gateway, repos.Tickets, natsClient)

	return &ConsumerService{
		db:          db,
		nats:        natsClient,
		handlers:    NewHandlers(mailer),
		fulfillment: engine,
	}, nil
}

// Fulfillment exposes the engine for the sweep job
func (cs *ConsumerService) Fulfillment() *service.FulfillmentEngine {
	return cs.fulfillment
}

func (cs *ConsumerService) Start() error {
	slog.Info("Starting NATS consumers...")

	subscriptions := []struct {
		subject string
		handler stan.MsgHandler
	}{
		{models.EventTicketIssued, cs.handlers.HandleTicketIssued},
		{models.EventPaymentCompleted, cs.handlers.HandlePaymentCompleted},
		{models.EventPaymentFailed, cs.handlers.HandlePaymentFailed},
	}

	for _, s := range subscriptions {
		sub, err := cs.nats.SubscribeQueue(s.subject, queueGroup, s.handler)
		if err != nil {
			return fmt.Errorf("failed to start consumer for %s: %w", s.subject, err)
		}
		cs.subs = append(cs.subs, sub)
	}

	slog.Info("All consumers started successfully", "subscriptions", len(cs.subs))
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down consumer service...")

	// Close keeps durable subscriptions registered so restarts resume where they stopped
	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			slog.Error("Error closing subscription", "error", err)
		}
	}

	if err := cs.fulfillment.Drain(ctx); err != nil {
		slog.Warn("Pending notifications were not delivered before shutdown", "error", err)
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			slog.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			slog.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
