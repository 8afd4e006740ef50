package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taquilla/internal/database"
	"taquilla/internal/models"

	"github.com/lib/pq"
)

// pq error code for unique_violation
const uniqueViolation = "23505"

type TicketRepository struct {
	db *database.DB
}

func NewTicketRepository(db *database.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, name_of_attendee, event_id, user_id, payment_intent_id, position, idempotency_key, is_active, created_at`

// CreateBatch inserts all tickets of one payment intent in a single
// transaction. The ticket_batches row acts as the per-intent lock: if another
// caller already created it, nothing is inserted and the existing tickets
// are returned with created=false.
func (r *TicketRepository) CreateBatch(ctx context.Context, batch *models.TicketBatch) (tickets []models.Ticket, created bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !created {
			_ = tx.Rollback()
		}
	}()

	var marker string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ticket_batches (payment_intent_id, ticket_count)
		VALUES ($1, $2)
		ON CONFLICT (payment_intent_id) DO NOTHING
		RETURNING payment_intent_id`,
		batch.PaymentIntentID, len(batch.Tickets),
	).Scan(&marker)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		existing, err := r.ListByPaymentIntent(ctx, batch.PaymentIntentID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock ticket batch: %w", err)
	}

	insert := `
		INSERT INTO tickets (id, name_of_attendee, event_id, user_id, payment_intent_id, position, idempotency_key, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING created_at`

	result := make([]models.Ticket, len(batch.Tickets))
	for i, t := range batch.Tickets {
		t.IsActive = true
		err = tx.QueryRowContext(ctx, insert,
			t.ID,
			t.NameOfAttendee,
			t.EventID,
			t.UserID,
			t.PaymentIntentID,
			t.Position,
			t.IdempotencyKey,
		).Scan(&t.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				// the same idempotency key was already issued; treat the batch as done
				_ = tx.Rollback()
				existing, listErr := r.ListByPaymentIntent(ctx, batch.PaymentIntentID)
				return existing, false, listErr
			}
			return nil, false, fmt.Errorf("failed to insert ticket %d: %w", i, err)
		}
		result[i] = t
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit ticket batch: %w", err)
	}
	created = true

	return result, true, nil
}

// ListByPaymentIntent returns the intent's tickets in attendee order.
func (r *TicketRepository) ListByPaymentIntent(ctx context.Context, paymentIntentID string) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE payment_intent_id = $1 ORDER BY position ASC`
	return r.list(ctx, query, paymentIntentID)
}

// ListByUser returns the user's active tickets, newest first.
func (r *TicketRepository) ListByUser(ctx context.Context, userID int64) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE user_id = $1 AND is_active = TRUE ORDER BY created_at DESC, position ASC`
	return r.list(ctx, query, userID)
}

func (r *TicketRepository) CountByPaymentIntent(ctx context.Context, paymentIntentID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets WHERE payment_intent_id = $1`, paymentIntentID).Scan(&count)
	return count, err
}

// SetActive toggles the admin soft-delete flag.
func (r *TicketRepository) SetActive(ctx context.Context, ticketID string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET is_active = $1 WHERE id = $2`, active, ticketID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *TicketRepository) list(ctx context.Context, query string, args ...any) ([]models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		var t models.Ticket
		err := rows.Scan(
			&t.ID,
			&t.NameOfAttendee,
			&t.EventID,
			&t.UserID,
			&t.PaymentIntentID,
			&t.Position,
			&t.IdempotencyKey,
			&t.IsActive,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}

	return tickets, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
