package api

import (
	"context"
	"fmt"
	"net/http"

	"taquilla/internal/cache"
	"taquilla/internal/config"
	"taquilla/internal/database"
	"taquilla/internal/external"
	"taquilla/internal/handlers"
	"taquilla/internal/logger"
	"taquilla/internal/messaging"
	"taquilla/internal/middleware"
	"taquilla/internal/repository"
	"taquilla/internal/search"
	"taquilla/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	services *service.Services
	repos    *repository.Repositories
}

// NewServer подключает зависимости и создает экземпляр сервера
func NewServer(cfg *config.Config) (*Server, error) {
	// Устанавливаем режим Gin
	gin.SetMode(cfg.GinMode)

	if err := cfg.ValidateAPI(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	server := &Server{config: cfg}

	// Подключаемся к базе данных
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	server.db = db

	// Запускаем миграции
	if err := db.RunMigrations(); err != nil {
		server.Cleanup(context.Background())
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// Создаем репозитории
	repos, err := newRepositories(cfg, db)
	if err != nil {
		server.Cleanup(context.Background())
		return nil, err
	}
	server.repos = repos

	guard, ledger, err := server.newGuards()
	if err != nil {
		server.Cleanup(context.Background())
		return nil, err
	}

	publisher, err := server.newPublisher()
	if err != nil {
		server.Cleanup(context.Background())
		return nil, err
	}

	// Создаем клиент платежного шлюза
	gateway := external.NewStripeGateway(cfg.Stripe)

	// Создаем сервисы
	server.services = service.NewServices(repos, gateway, guard, ledger, publisher)

	// Создаем роутер
	router := gin.New()

	// Применяем middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS())

	server.router = router

	// Настраиваем роуты
	server.setupRoutes()

	return server, nil
}

// newRepositories выбирает источник каталога событий
func newRepositories(cfg *config.Config, db *database.DB) (*repository.Repositories, error) {
	switch cfg.Catalog.Backend {
	case "elasticsearch":
		es, err := search.NewElasticsearchClient(cfg.Catalog.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
		}
		logger.Get().Info("Event catalog served from Elasticsearch", "index", cfg.Catalog.Elasticsearch.Index)
		return repository.NewRepositoriesWithElasticsearch(db, es), nil
	case "", "postgres":
		return repository.NewRepositories(db), nil
	default:
		return nil, fmt.Errorf("unknown catalog backend %q", cfg.Catalog.Backend)
	}
}

// newGuards создает кеши дедупликации: в памяти процесса или общий в Valkey
func (s *Server) newGuards() (service.RequestGuard, service.EventLedger, error) {
	gc := s.config.Guard
	switch gc.Backend {
	case "redis", "valkey":
		client, err := cache.NewValkeyClient(s.config.Redis, gc.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Valkey: %w", err)
		}
		s.valkey = client
		return client.Guard(), client.Ledger(), nil
	case "", "memory":
		opts := []cache.Option{cache.WithCapacity(gc.Capacity, gc.Retain), cache.WithTTL(gc.TTL)}
		return cache.NewMemoryGuard(opts...), cache.NewMemoryLedger(opts...), nil
	default:
		return nil, nil, fmt.Errorf("unknown guard backend %q", gc.Backend)
	}
}

func (s *Server) newPublisher() (messaging.Publisher, error) {
	if !s.config.NATS.Enabled {
		logger.Get().Warn("NATS disabled, notifications are only logged")
		return messaging.LogPublisher{Logger: logger.Get()}, nil
	}

	// Подключаемся к NATS
	natsClient, err := messaging.NewNATSClient(s.config.NATS)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	s.nats = natsClient
	return natsClient, nil
}

// setupRoutes настраивает все API роуты
func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.services)

	api := s.router.Group("/api")

	// Webhook приходит от платежного шлюза, а не от пользователя: Basic Auth к нему не применяется
	api.POST("/webhooks/stripe", h.StripeWebhook)

	protected := api.Group("")
	if s.config.Auth.Enabled {
		protected.Use(middleware.BasicAuth(s.repos.Users))
	}
	{
		// Checkout endpoints
		checkout := protected.Group("/checkout")
		{
			checkout.POST("", h.CreateCheckout)
			checkout.POST("/confirm", h.ConfirmCheckout)
			checkout.GET("/status/:intentId", h.GetCheckoutStatus)
		}

		// Tickets endpoints
		protected.GET("/tickets", h.ListTickets)
	}

	// Health check endpoint
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	health := s.db.HealthCheck(c.Request.Context())

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":   health.Status,
		"service":  "taquilla-api",
		"version":  "1.0.0",
		"database": health,
	})
}

// Run запускает HTTP сервер
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.config.Port)
	return s.router.Run(addr)
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup дожидается отправки уведомлений и закрывает соединения
func (s *Server) Cleanup(ctx context.Context) error {
	log := logger.Get()

	if s.services != nil {
		if err := s.services.Fulfillment.Drain(ctx); err != nil {
			log.Warn("Pending ticket notifications were not delivered before shutdown", "error", err)
		}
	}

	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			log.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
