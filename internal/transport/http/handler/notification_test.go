package handler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wastewise/taskcore/internal/infrastructure/memory"
	"github.com/wastewise/taskcore/internal/retry"
	"github.com/wastewise/taskcore/internal/transport/http/handler"
	"github.com/wastewise/taskcore/internal/usecase"
)

func newNotificationRouter() (*gin.Engine, *memory.OutboxRepository) {
	outbox := memory.NewOutboxRepository(retry.NewPolicy())
	notifications := usecase.NewNotificationUsecase(outbox)
	h := handler.NewNotificationHandler(notifications, slog.Default())

	r := gin.New()
	r.POST("/notifications", h.Enqueue)
	r.GET("/notifications/:id", h.GetByID)
	return r, outbox
}

func TestEnqueueNotifications_BatchCreated(t *testing.T) {
	r, _ := newNotificationRouter()

	w := doJSON(t, r, http.MethodPost, "/notifications", `[
		{"channel":"email","recipient_key":"driver:42","payload":{"title":"route changed","body":"pickup moved to 07:00"}},
		{"channel":"line","recipient_key":"resident:7","payload":{"title":"collection reminder","body":"bins out by 07:00"}}
	]`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp []struct {
		ID      string `json:"id"`
		Channel string `json:"channel"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 {
		t.Fatalf("got %d items, want 2", len(resp))
	}
	for _, item := range resp {
		if item.ID == "" || item.Status != "pending" {
			t.Errorf("item = %+v, want pending with an id", item)
		}
	}

	got := doJSON(t, r, http.MethodGet, "/notifications/"+resp[0].ID, "")
	if got.Code != http.StatusOK {
		t.Errorf("get by id status = %d, want 200", got.Code)
	}
}

func TestEnqueueNotifications_InvalidElementRejectsWholeBatch(t *testing.T) {
	r, outbox := newNotificationRouter()

	w := doJSON(t, r, http.MethodPost, "/notifications", `[
		{"channel":"email","recipient_key":"driver:42","payload":{"title":"ok","body":"ok"}},
		{"channel":"pigeon","recipient_key":"driver:43","payload":{"title":"bad","body":"bad"}}
	]`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}

	pending, err := outbox.ListPending(context.Background(), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("partial batch stored: %d items queued, want 0", len(pending))
	}
}

func TestEnqueueNotifications_BadPayload_Returns400(t *testing.T) {
	r, _ := newNotificationRouter()

	cases := []struct {
		name string
		body string
	}{
		{"empty batch", `[]`},
		{"single object not array", `{"channel":"email","recipient_key":"driver:42","payload":{"title":"x","body":"y"}}`},
		{"missing recipient", `[{"channel":"email","payload":{"title":"x","body":"y"}}]`},
		{"empty payload", `[{"channel":"email","recipient_key":"driver:42","payload":{}}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/notifications", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestGetNotification_Unknown_Returns404(t *testing.T) {
	r, _ := newNotificationRouter()

	w := doJSON(t, r, http.MethodGet, "/notifications/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
