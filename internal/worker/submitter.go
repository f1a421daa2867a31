package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/usecase"
)

// Submitter creates the daily T+1 forecast job on a cron schedule. The
// duplicate guard makes it safe to run on every worker replica: whichever
// replica fires first wins, the rest see the existing job.
type Submitter struct {
	jobs     *usecase.JobUsecase
	logger   *slog.Logger
	cronExpr string
	jobType  string
}

func NewSubmitter(jobs *usecase.JobUsecase, logger *slog.Logger, cronExpr, jobType string) (*Submitter, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return &Submitter{
		jobs:     jobs,
		logger:   logger.With("component", "submitter"),
		cronExpr: cronExpr,
		jobType:  jobType,
	}, nil
}

// Start runs the cron scheduler until ctx is cancelled.
func (s *Submitter) Start(ctx context.Context) {
	c := cron.New()
	// Expression was validated in the constructor.
	_, _ = c.AddFunc(s.cronExpr, func() { s.submit(ctx) })
	c.Start()

	s.logger.Info("submitter started", "cron", s.cronExpr, "job_type", s.jobType)

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	s.logger.Info("submitter shut down")
}

func (s *Submitter) submit(ctx context.Context) {
	targetDate := time.Now().UTC().AddDate(0, 0, 1)

	result, err := s.jobs.Submit(ctx, usecase.SubmitJobInput{
		JobType:    s.jobType,
		TargetDate: targetDate,
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateJob) {
			s.logger.Info("forecast job already scheduled", "target_date", targetDate.Format("2006-01-02"))
			return
		}
		s.logger.Error("submit daily forecast job", "target_date", targetDate.Format("2006-01-02"), "error", err)
		return
	}

	if result.Created {
		s.logger.Info("daily forecast job submitted",
			"job_id", result.Job.ID,
			"target_date", targetDate.Format("2006-01-02"),
		)
	} else {
		s.logger.Info("daily forecast job already active", "job_id", result.Job.ID)
	}
}
