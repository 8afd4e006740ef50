package handlers

import (
	"net/http"
	"strconv"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/logger"
	"taquilla/internal/middleware"
	"taquilla/internal/models"
	"taquilla/internal/service"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds the raw webhook payload read into memory
const maxWebhookBody = 64 << 10

type Handlers struct {
	services *service.Services
}

func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		services: services,
	}
}

// Checkout handlers

// CreateCheckout - POST /api/checkout
// Создать платежное намерение для покупки билетов
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Аутентифицированный пользователь важнее userId из тела запроса
	if userID, ok := middleware.UserIDFromContext(c.Request.Context()); ok {
		req.UserID = userID
	}

	response, err := h.services.Checkout.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to create checkout", "event_id", req.EventID, "user_id", req.UserID)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ConfirmCheckout - POST /api/checkout/confirm
// Подтвердить оплату и выпустить билеты
func (h *Handlers) ConfirmCheckout(c *gin.Context) {
	var req models.ConfirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tickets, err := h.services.Fulfillment.FulfillIfSucceeded(c.Request.Context(), req.PaymentIntentID, service.SourceConfirm)
	if err != nil {
		respondError(c, err, "Failed to confirm checkout", "payment_intent_id", req.PaymentIntentID)
		return
	}

	c.JSON(http.StatusOK, models.ConfirmCheckoutResponse{Tickets: models.NewTicketSummaries(tickets)})
}

// GetCheckoutStatus - GET /api/checkout/status/:intentId
// Получить статус оплаты и выпуска билетов
func (h *Handlers) GetCheckoutStatus(c *gin.Context) {
	intentID := c.Param("intentId")
	if intentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "intentId is required"})
		return
	}

	status, err := h.services.Status.Project(c.Request.Context(), intentID)
	if err != nil {
		respondError(c, err, "Failed to get checkout status", "payment_intent_id", intentID)
		return
	}

	c.JSON(http.StatusOK, status)
}

// StripeWebhook - POST /api/webhooks/stripe
// Принять уведомление платежного шлюза. Подпись проверяется по сырому телу
func (h *Handlers) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	result, err := h.services.Webhooks.Handle(c.Request.Context(), payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		respondError(c, err, "Failed to handle webhook")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Tickets handlers

// ListTickets - GET /api/tickets
// Получить активные билеты пользователя
func (h *Handlers) ListTickets(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c.Request.Context())
	if !ok {
		var err error
		userID, err = strconv.ParseInt(c.Query("userId"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}
	}

	tickets, err := h.services.Tickets.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to list tickets", "user_id", userID)
		return
	}

	c.JSON(http.StatusOK, models.ListTicketsResponse(models.NewTicketSummaries(tickets)))
}

// respondError логирует ошибку и отвечает статусом, соответствующим ее виду
func respondError(c *gin.Context, err error, msg string, fields ...any) {
	status := apperrors.HTTPStatus(err)
	log := logger.WithContext(c.Request.Context())

	args := append([]any{"error", err, "status_code", status}, fields...)
	if status >= http.StatusInternalServerError {
		log.Error(msg, args...)
	} else {
		log.Warn(msg, args...)
	}

	_ = c.Error(err)

	if apperrors.Retryable(err) {
		c.Header("Retry-After", strconv.Itoa(apperrors.RetryAfterSeconds))
	}

	// детали ошибок хранилища клиенту не отдаем
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	c.JSON(status, gin.H{"error": message})
}
