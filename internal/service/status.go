package service

import (
	"context"
	"fmt"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/models"
)

type StatusProjector struct {
	gateway PaymentGateway
	tickets TicketStore
}

func NewStatusProjector(gateway PaymentGateway, tickets TicketStore) *StatusProjector {
	return &StatusProjector{gateway: gateway, tickets: tickets}
}

// Project reports what the client should show for a payment intent.
func (p *StatusProjector) Project(ctx context.Context, intentID string) (*models.StatusResponse, error) {
	intent, err := p.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}

	expected := models.ExpectedTicketCount(intent.Metadata)

	var tickets []models.Ticket
	if intent.Status == models.IntentSucceeded {
		tickets, err = p.tickets.ListByPaymentIntent(ctx, intentID)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to list tickets: %v", apperrors.ErrPersistence, err)
		}
	}

	status, message := ProjectStatus(intent.Status, len(tickets), expected)

	return &models.StatusResponse{
		PaymentIntentID: intent.ID,
		Status:          status,
		Message:         message,
		Tickets:         models.NewTicketSummaries(tickets),
		ExpectedCount:   expected,
		CreatedCount:    len(tickets),
	}, nil
}

// ProjectStatus maps a gateway status and fulfillment progress to a client
// status. A paid intent stays "processing" until every ticket exists.
func ProjectStatus(intentStatus string, created, expected int) (string, string) {
	switch intentStatus {
	case models.IntentSucceeded:
		if created > 0 && created >= expected {
			return models.StatusSucceeded, "Pago confirmado. Tus boletos están listos."
		}
		return models.StatusProcessing, "Pago recibido. Estamos emitiendo tus boletos."
	case models.IntentProcessing:
		return models.StatusProcessing, "Tu pago se está procesando."
	case models.IntentRequiresPaymentMethod, models.IntentRequiresConfirmation, models.IntentRequiresAction:
		return models.StatusRequiresAction, "Se requiere una acción adicional para completar el pago."
	case models.IntentCanceled:
		return models.StatusFailed, "El pago fue cancelado."
	default:
		return models.StatusPending, "Esperando el pago."
	}
}
