package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
)

// Executor asks the forecasting service to compute one job. The service is
// an external collaborator; this side only cares about success or failure.
type Executor struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

func NewExecutor(baseURL string, timeout time.Duration) *Executor {
	return &Executor{
		client:  &http.Client{},
		baseURL: baseURL,
		timeout: timeout,
	}
}

type ExecutionResult struct {
	Err      error
	Duration time.Duration
}

type forecastRequest struct {
	JobID         string          `json:"job_id"`
	JobType       string          `json:"job_type"`
	TargetDate    string          `json:"target_date"`
	InputSnapshot json.RawMessage `json:"input_snapshot,omitempty"`
}

func (e *Executor) Run(ctx context.Context, job *domain.ForecastJob) ExecutionResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	body, err := json.Marshal(forecastRequest{
		JobID:         job.ID,
		JobType:       job.JobType,
		TargetDate:    job.TargetDate.Format("2006-01-02"),
		InputSnapshot: job.InputSnapshot,
	})
	if err != nil {
		return ExecutionResult{Err: fmt.Errorf("marshal forecast request: %w", err), Duration: time.Since(start)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/forecast/run", bytes.NewReader(body))
	if err != nil {
		return ExecutionResult{Err: fmt.Errorf("build request: %w", err), Duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return ExecutionResult{Err: fmt.Errorf("do request: %w", err), Duration: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool

	if resp.StatusCode != http.StatusOK {
		return ExecutionResult{
			Err:      fmt.Errorf("forecast service returned %d", resp.StatusCode),
			Duration: time.Since(start),
		}
	}
	return ExecutionResult{Duration: time.Since(start)}
}
