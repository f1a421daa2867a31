package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
	"github.com/wastewise/taskcore/internal/transport/http/handler"
	"github.com/wastewise/taskcore/internal/transport/http/middleware"
)

func NewRouter(
	logger *slog.Logger,
	jobHandler *handler.JobHandler,
	notificationHandler *handler.NotificationHandler,
	hmacKey []byte,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(hmacKey)

	jobs := r.Group("/forecast-jobs", authMW)
	jobs.POST("", jobHandler.Submit)
	jobs.GET("/:id", jobHandler.GetByID)
	jobs.POST("/:id/requeue", jobHandler.Requeue)

	notifications := r.Group("/notifications", authMW)
	notifications.POST("", notificationHandler.Enqueue)
	notifications.GET("/:id", notificationHandler.GetByID)

	return r
}
