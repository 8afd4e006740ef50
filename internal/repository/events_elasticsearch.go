package repository

import (
	"context"

	"taquilla/internal/models"
	"taquilla/internal/search"
)

// EventElasticsearchRepository reads the event catalog from the search index.
type EventElasticsearchRepository struct {
	es *search.ElasticsearchClient
}

func NewEventElasticsearchRepository(es *search.ElasticsearchClient) *EventElasticsearchRepository {
	return &EventElasticsearchRepository{es: es}
}

func (r *EventElasticsearchRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	return r.es.GetByID(ctx, id)
}
