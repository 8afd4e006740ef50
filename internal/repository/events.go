package repository

import (
	"context"
	"database/sql"

	"taquilla/internal/database"
	"taquilla/internal/models"
)

type EventRepository struct {
	db *database.DB
}

func NewEventRepository(db *database.DB) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, name, description, price, is_active, datetime_start, created_at, updated_at`

func scanEvent(row interface{ Scan(dest ...any) error }, event *models.Event) error {
	var start sql.NullTime
	err := row.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.Price,
		&event.IsActive,
		&start,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if start.Valid {
		event.DatetimeStart = start.Time
	}
	return err
}

func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (name, description, price, is_active, datetime_start)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	var start sql.NullTime
	if !event.DatetimeStart.IsZero() {
		start = sql.NullTime{Time: event.DatetimeStart, Valid: true}
	}

	return r.db.QueryRowContext(ctx, query,
		event.Name,
		event.Description,
		event.Price,
		event.IsActive,
		start,
	).Scan(&event.ID, &event.CreatedAt, &event.UpdatedAt)
}

// GetByID returns nil when the event does not exist.
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	event := &models.Event{}
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	err := scanEvent(r.db.QueryRowContext(ctx, query, id), event)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return event, nil
}

// ListActive returns every active event, used to rebuild the search index.
func (r *EventRepository) ListActive(ctx context.Context) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE is_active = TRUE ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var event models.Event
		if err := scanEvent(rows, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, rows.Err()
}
