package repository

import (
	"context"

	"taquilla/internal/database"
	"taquilla/internal/models"
	"taquilla/internal/search"
)

// EventReader is the slice of the catalog the payment pipeline needs.
type EventReader interface {
	GetByID(ctx context.Context, id int64) (*models.Event, error)
}

type Repositories struct {
	Events  EventReader
	Users   *UserRepository
	Tickets *TicketRepository
}

func NewRepositories(db *database.DB) *Repositories {
	return &Repositories{
		Events:  NewEventRepository(db),
		Users:   NewUserRepository(db),
		Tickets: NewTicketRepository(db),
	}
}

func NewRepositoriesWithElasticsearch(db *database.DB, es *search.ElasticsearchClient) *Repositories {
	repos := NewRepositories(db)
	repos.Events = NewEventElasticsearchRepository(es)
	return repos
}
