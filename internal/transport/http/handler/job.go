package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/transport/http/middleware"
	"github.com/wastewise/taskcore/internal/usecase"
)

type JobHandler struct {
	jobs   *usecase.JobUsecase
	logger *slog.Logger
}

func NewJobHandler(jobs *usecase.JobUsecase, logger *slog.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger.With("component", "job_handler")}
}

type submitJobRequest struct {
	JobType       string          `json:"job_type"       binding:"required"`
	TargetDate    string          `json:"target_date"    binding:"required,datetime=2006-01-02"`
	RunAfter      *time.Time      `json:"run_after"`
	InputSnapshot json.RawMessage `json:"input_snapshot"`
	MaxAttempt    int             `json:"max_attempt"    binding:"omitempty,min=1,max=10"`
}

type jobResponse struct {
	ID         string     `json:"id"`
	JobType    string     `json:"job_type"`
	TargetDate string     `json:"target_date"`
	Status     string     `json:"status"`
	RunAfter   *time.Time `json:"run_after,omitempty"`
	Attempt    int        `json:"attempt"`
	MaxAttempt int        `json:"max_attempt"`
	LastError  *string    `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func toJobResponse(job *domain.ForecastJob) jobResponse {
	return jobResponse{
		ID:         job.ID,
		JobType:    job.JobType,
		TargetDate: job.TargetDate.Format("2006-01-02"),
		Status:     string(job.Status),
		RunAfter:   job.RunAfter,
		Attempt:    job.Attempt,
		MaxAttempt: job.MaxAttempt,
		LastError:  job.LastError,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
	}
}

// Submit responds 201 for a freshly created job and 200 with the existing
// job when the submission was an idempotent duplicate.
func (h *JobHandler) Submit(ctx *gin.Context) {
	var req submitJobRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	targetDate, err := time.Parse("2006-01-02", req.TargetDate)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "target_date must be YYYY-MM-DD"})
		return
	}

	result, err := h.jobs.Submit(ctx.Request.Context(), usecase.SubmitJobInput{
		JobType:       req.JobType,
		TargetDate:    targetDate,
		RunAfter:      req.RunAfter,
		InputSnapshot: req.InputSnapshot,
		MaxAttempt:    req.MaxAttempt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateJob})
			return
		}
		h.logger.Error("submit job", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	h.logger.Info("forecast job submitted",
		"job_id", result.Job.ID,
		"job_type", result.Job.JobType,
		"created", result.Created,
		"caller", ctx.GetString(middleware.CallerKey),
	)

	status := http.StatusCreated
	if !result.Created {
		status = http.StatusOK
	}
	ctx.JSON(status, toJobResponse(result.Job))
}

func (h *JobHandler) GetByID(ctx *gin.Context) {
	jobID := ctx.Param("id")

	job, err := h.jobs.GetByID(ctx.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
			return
		}
		h.logger.Error("get job by id", "job_id", jobID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, toJobResponse(job))
}

// Requeue is the operator path for retrying a failed job that still has
// attempts left.
func (h *JobHandler) Requeue(ctx *gin.Context) {
	jobID := ctx.Param("id")

	if err := h.jobs.Requeue(ctx.Request.Context(), jobID); err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errJobNotFound})
		case errors.Is(err, domain.ErrNotRetryable), errors.Is(err, domain.ErrInvalidStatus):
			ctx.JSON(http.StatusConflict, gin.H{"error": errJobNotRequeueable})
		default:
			h.logger.Error("requeue job", "job_id", jobID, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	h.logger.Info("forecast job requeued",
		"job_id", jobID,
		"caller", ctx.GetString(middleware.CallerKey),
	)

	job, err := h.jobs.GetByID(ctx.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("reload requeued job", "job_id", jobID, "error", err)
		ctx.Status(http.StatusNoContent)
		return
	}
	ctx.JSON(http.StatusOK, toJobResponse(job))
}
