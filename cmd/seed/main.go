// seed inserts forecast jobs and outbox notifications into the local dev
// database. Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/infrastructure/postgres"
	"github.com/wastewise/taskcore/internal/retry"
	"github.com/wastewise/taskcore/internal/usecase"
)

type jobSpec struct {
	jobType    string
	daysAhead  int
	maxAttempt int
}

var jobs = []jobSpec{
	// The standard daily chain a cron submitter would produce
	{"daily_tplus1", 1, 3},
	{"daily_tplus1", 2, 3},
	{"daily_tplus1", 3, 3},

	// Weekly aggregate with a bigger retry budget
	{"weekly_summary", 7, 5},

	// Backfill for yesterday, claimable immediately
	{"daily_tplus1", -1, 3},
}

type notificationSpec struct {
	channel      string
	recipientKey string
	title        string
	body         string
}

var notifications = []notificationSpec{
	{"email", "driver:seed-1", "Route updated", "Tomorrow's route starts at depot B."},
	{"email", "resident:seed-2", "Collection reminder", "Burnable waste pickup is tomorrow morning."},
	{"webhook", "partner:seed-3", "Forecast ready", "The T+1 overflow forecast has been published."},
	{"line", "resident:seed-4", "Collection reminder", "Put bins out by 07:00."},
	{"push", "driver:seed-5", "Shift notice", "Early start tomorrow, 05:30."},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set — run: direnv allow")
	}

	pool, err := postgres.NewPool(ctx, dbURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	jobUsecase := usecase.NewJobUsecase(postgres.NewJobRepository(pool))
	notificationUsecase := usecase.NewNotificationUsecase(postgres.NewOutboxRepository(pool, retry.NewPolicy()))

	var created, existing int
	var jobIDs []string
	for _, spec := range jobs {
		result, err := jobUsecase.Submit(ctx, usecase.SubmitJobInput{
			JobType:    spec.jobType,
			TargetDate: time.Now().UTC().AddDate(0, 0, spec.daysAhead),
			MaxAttempt: spec.maxAttempt,
		})
		if err != nil {
			// A terminal job for the same date blocks nothing; only a racing
			// active duplicate lands here.
			if errors.Is(err, domain.ErrDuplicateJob) {
				existing++
				continue
			}
			log.Fatalf("submit job %s: %v", spec.jobType, err)
		}
		if result.Created {
			created++
			jobIDs = append(jobIDs, result.Job.ID)
		} else {
			existing++
		}
	}

	inputs := make([]usecase.EnqueueNotificationInput, 0, len(notifications))
	for _, spec := range notifications {
		inputs = append(inputs, usecase.EnqueueNotificationInput{
			Channel:      spec.channel,
			RecipientKey: spec.recipientKey,
			Payload:      domain.Payload{Title: spec.title, Body: spec.body},
		})
	}
	items, err := notificationUsecase.Enqueue(ctx, inputs)
	if err != nil {
		log.Fatalf("enqueue notifications: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Jobs created:          %d  (%d already active)\n", created, existing)
	fmt.Printf("  Notifications queued:  %d  (re-runs enqueue again; the outbox has no natural key)\n", len(items))
	fmt.Println()

	if len(jobIDs) > 0 {
		fmt.Println("  Sample job IDs:")
		limit := min(len(jobIDs), 3)
		for _, id := range jobIDs[:limit] {
			fmt.Printf("    %s\n", id)
		}
	}

	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  export JWT=...   # any HS256 token signed with JWT_SECRET, sub=service name")
	fmt.Println("  curl -s http://localhost:8080/forecast-jobs/JOB_ID -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  Start ./cmd/worker and watch the claim loop pick the backfill job up")
	fmt.Println("  immediately; the dispatcher drains the outbox on its next tick.")
}
