package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "taquilla/internal/errors"
	"taquilla/internal/logger"
	"taquilla/internal/metrics"
	"taquilla/internal/models"

	"github.com/gin-gonic/gin"
)

// Ctx key and helpers for authenticated user id
// Using unexported type to avoid collisions

type ctxKey string

const userIDKey ctxKey = "user_id"

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	ctx = logger.ContextWithUserID(ctx, userID)
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// UserLookup находит пользователя по email. Реализуется repository.UserRepository
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// CORS middleware для обработки CORS запросов
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Stripe-Signature, "+RequestIDHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	}
}

// RequestID присваивает запросу идентификатор и кладет его в контекст логгера
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = logger.NewRequestID()
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// Logger middleware для структурированного логирования запросов
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Записываем время начала
		start := time.Now()

		// Выполняем запрос
		c.Next()

		// Логируем результат
		latency := time.Since(start)
		userID, exists := c.Get("user_id")

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}

		if exists {
			logFields = append(logFields, "user_id", userID)
		}

		if c.Writer.Status() >= 400 {
			if len(c.Errors) > 0 {
				logFields = append(logFields, "error", c.Errors.String())
			}
			logger.WithContext(c.Request.Context()).Error("Request completed with error", logFields...)
		}
	}
}

// Metrics записывает количество и длительность запросов в Prometheus
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// шаблон маршрута вместо пути, чтобы не плодить метки на каждый intentId
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

// Recovery middleware для восстановления после паники с детальным логированием
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		// Логируем панику с максимумом информации
		slog.Error("PANIC recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", c.Request.URL.RawQuery,
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		)

		// Отправляем правильный HTTP ответ клиенту
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
		}
		c.Abort()
	})
}

// BasicAuth аутентифицирует пользователя по HTTP Basic Auth (email и SHA-256 хеш пароля в БД)
func BasicAuth(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", "Basic realm=\"Restricted\"")
			abortWithError(c, fmt.Errorf("%w: missing credentials", apperrors.ErrUnauthorized))
			return
		}

		user, err := users.GetByEmail(c.Request.Context(), username)
		if err != nil {
			logger.WithContext(c.Request.Context()).Error("Failed to look up user", "error", err)
			abortWithError(c, fmt.Errorf("%w: %v", apperrors.ErrPersistence, err))
			return
		}
		if user == nil || user.PasswordHash == "" {
			abortWithError(c, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized))
			return
		}

		hash := sha256.Sum256([]byte(password))
		passwordHash := hex.EncodeToString(hash[:])
		if subtle.ConstantTimeCompare([]byte(passwordHash), []byte(user.PasswordHash)) != 1 {
			abortWithError(c, fmt.Errorf("%w: invalid credentials", apperrors.ErrUnauthorized))
			return
		}

		// пароль верный, но учетная запись отключена
		if !user.IsActive {
			abortWithError(c, fmt.Errorf("%w: account is disabled", apperrors.ErrForbidden))
			return
		}

		c.Set("user_id", user.UserID)
		c.Request = c.Request.WithContext(ContextWithUserID(c.Request.Context(), user.UserID))

		c.Next()
	}
}

// abortWithError отвечает статусом вида ошибки, не раскрывая деталей
func abortWithError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	message := http.StatusText(status)
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
