package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/transport/http/middleware"
	"github.com/wastewise/taskcore/internal/usecase"
)

type NotificationHandler struct {
	notifications *usecase.NotificationUsecase
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *usecase.NotificationUsecase, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger.With("component", "notification_handler"),
	}
}

type enqueueNotificationRequest struct {
	Channel      string         `json:"channel"       binding:"required"`
	RecipientKey string         `json:"recipient_key" binding:"required"`
	Payload      payloadRequest `json:"payload"       binding:"required"`
	ScheduledAt  *time.Time     `json:"scheduled_at"`
}

type payloadRequest struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   *string           `json:"url"`
	Meta  map[string]string `json:"meta"`
}

type notificationResponse struct {
	ID           string         `json:"id"`
	Channel      string         `json:"channel"`
	Status       string         `json:"status"`
	RecipientKey string         `json:"recipient_key"`
	Payload      domain.Payload `json:"payload"`
	ScheduledAt  *time.Time     `json:"scheduled_at,omitempty"`
	RetryCount   int            `json:"retry_count"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	LastError    *string        `json:"last_error,omitempty"`
	FailureType  *string        `json:"failure_type,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
}

func toNotificationResponse(item *domain.OutboxItem) notificationResponse {
	var failureType *string
	if item.FailureType != nil {
		s := string(*item.FailureType)
		failureType = &s
	}
	return notificationResponse{
		ID:           item.ID,
		Channel:      string(item.Channel),
		Status:       string(item.Status),
		RecipientKey: item.RecipientKey,
		Payload:      item.Payload,
		ScheduledAt:  item.ScheduledAt,
		RetryCount:   item.RetryCount,
		NextRetryAt:  item.NextRetryAt,
		LastError:    item.LastError,
		FailureType:  failureType,
		CreatedAt:    item.CreatedAt,
		SentAt:       item.SentAt,
	}
}

// Enqueue accepts a JSON array so one fan-out lands in a single outbox
// transaction: either every notification of the batch is queued or none is.
func (h *NotificationHandler) Enqueue(ctx *gin.Context) {
	var reqs []enqueueNotificationRequest
	if err := ctx.ShouldBindJSON(&reqs); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(reqs) == 0 {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "at least one notification is required"})
		return
	}

	inputs := make([]usecase.EnqueueNotificationInput, 0, len(reqs))
	for _, req := range reqs {
		inputs = append(inputs, usecase.EnqueueNotificationInput{
			Channel:      req.Channel,
			RecipientKey: req.RecipientKey,
			Payload: domain.Payload{
				Title: req.Payload.Title,
				Body:  req.Payload.Body,
				URL:   req.Payload.URL,
				Meta:  req.Payload.Meta,
			},
			ScheduledAt: req.ScheduledAt,
		})
	}

	items, err := h.notifications.Enqueue(ctx.Request.Context(), inputs)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidChannel) || errors.Is(err, domain.ErrInvalidNotification) {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("enqueue notifications", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	h.logger.Info("notifications enqueued",
		"count", len(items),
		"caller", ctx.GetString(middleware.CallerKey),
	)

	responses := make([]notificationResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, toNotificationResponse(item))
	}
	ctx.JSON(http.StatusCreated, responses)
}

func (h *NotificationHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	item, err := h.notifications.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotificationNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errNotificationMissing})
			return
		}
		h.logger.Error("get notification by id", "notification_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toNotificationResponse(item))
}
