package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"time"

	"taquilla/internal/config"
	"taquilla/internal/database"
	"taquilla/internal/logger"
	"taquilla/internal/models"
	"taquilla/internal/repository"
	"taquilla/internal/search"
)

// catalogIndex is the part of the search client the sync needs
type catalogIndex interface {
	IndexEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id int64) error
}

func main() {
	var deleteID int64
	flag.Int64Var(&deleteID, "delete", 0, "Remove a single event from the index instead of syncing")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting catalog synchronization", "index", cfg.Catalog.Elasticsearch.Index)

	es, err := search.NewElasticsearchClient(cfg.Catalog.Elasticsearch)
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if deleteID > 0 {
		if err := es.DeleteEvent(ctx, deleteID); err != nil {
			logger.Fatal("Failed to delete event from index", "event_id", deleteID, "error", err)
		}
		slog.Info("Event removed from index", "event_id", deleteID)
		return
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := syncCatalog(ctx, repository.NewEventRepository(db), es); err != nil {
		logger.Fatal("Catalog synchronization failed", "error", err)
	}

	slog.Info("Catalog synchronization completed successfully")
}

func syncCatalog(ctx context.Context, events *repository.EventRepository, index catalogIndex) error {
	start := time.Now()

	active, err := events.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active events: %w", err)
	}
	slog.Info("Loaded active events", "count", len(active))

	failed := 0
	for i := range active {
		if err := index.IndexEvent(ctx, &active[i]); err != nil {
			failed++
			slog.Error("Failed to index event", "event_id", active[i].ID, "error", err)
		}
	}

	slog.Info("Catalog synchronization finished",
		"indexed", len(active)-failed,
		"failed", failed,
		"duration", time.Since(start).String())

	if failed > 0 {
		return fmt.Errorf("%d of %d events failed to index", failed, len(active))
	}
	return nil
}
