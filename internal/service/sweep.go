package service

import (
	"context"
	"fmt"
	"time"

	"taquilla/internal/logger"
)

// SweepResult summarizes one reconciliation pass.
type SweepResult struct {
	Checked int
	Failed  int
}

// Sweep runs fulfillment for every intent that succeeded since the given
// time. It repairs payments whose webhook never arrived or failed; already
// fulfilled intents are no-ops.
func (e *FulfillmentEngine) Sweep(ctx context.Context, since time.Time) (SweepResult, error) {
	var result SweepResult
	log := logger.WithContext(ctx)

	intents, err := e.gateway.ListSucceededSince(ctx, since)
	if err != nil {
		return result, fmt.Errorf("failed to list succeeded intents: %w", err)
	}

	for _, intent := range intents {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Checked++
		if _, err := e.FulfillIfSucceeded(ctx, intent.ID, SourceSweep); err != nil {
			result.Failed++
			log.Error("Sweep failed to fulfill payment", "error", err, "payment_intent_id", intent.ID)
		}
	}

	return result, nil
}
