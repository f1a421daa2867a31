package handler_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/wastewise/taskcore/internal/infrastructure/memory"
	"github.com/wastewise/taskcore/internal/transport/http/handler"
	"github.com/wastewise/taskcore/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newJobRouter() *gin.Engine {
	jobs := usecase.NewJobUsecase(memory.NewJobRepository())
	h := handler.NewJobHandler(jobs, slog.Default())

	r := gin.New()
	r.POST("/forecast-jobs", h.Submit)
	r.GET("/forecast-jobs/:id", h.GetByID)
	r.POST("/forecast-jobs/:id/requeue", h.Requeue)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitJob_Created(t *testing.T) {
	r := newJobRouter()

	w := doJSON(t, r, http.MethodPost, "/forecast-jobs",
		`{"job_type":"daily_tplus1","target_date":"2025-01-22"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		TargetDate string `json:"target_date"`
		MaxAttempt int    `json:"max_attempt"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" || resp.Status != "queued" {
		t.Errorf("response id=%q status=%q, want non-empty id and queued", resp.ID, resp.Status)
	}
	if resp.TargetDate != "2025-01-22" {
		t.Errorf("target_date = %q, want 2025-01-22", resp.TargetDate)
	}
	if resp.MaxAttempt != 3 {
		t.Errorf("max_attempt = %d, want default 3", resp.MaxAttempt)
	}
}

func TestSubmitJob_DuplicateReturnsExisting(t *testing.T) {
	r := newJobRouter()
	body := `{"job_type":"daily_tplus1","target_date":"2025-01-22"}`

	first := doJSON(t, r, http.MethodPost, "/forecast-jobs", body)
	if first.Code != http.StatusCreated {
		t.Fatalf("first submit status = %d, want 201", first.Code)
	}
	var a struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(first.Body.Bytes(), &a)

	second := doJSON(t, r, http.MethodPost, "/forecast-jobs", body)
	if second.Code != http.StatusOK {
		t.Fatalf("duplicate submit status = %d, want 200: %s", second.Code, second.Body.String())
	}
	var b struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(second.Body.Bytes(), &b)

	if a.ID != b.ID {
		t.Errorf("duplicate submit returned a different job: %s vs %s", a.ID, b.ID)
	}
}

func TestSubmitJob_BadPayload_Returns400(t *testing.T) {
	r := newJobRouter()

	cases := []struct {
		name string
		body string
	}{
		{"missing job_type", `{"target_date":"2025-01-22"}`},
		{"bad date format", `{"job_type":"daily_tplus1","target_date":"22-01-2025"}`},
		{"not json", `not json at all`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, "/forecast-jobs", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestGetJob_Unknown_Returns404(t *testing.T) {
	r := newJobRouter()

	w := doJSON(t, r, http.MethodGet, "/forecast-jobs/does-not-exist", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestRequeueJob_NotFailed_Returns409(t *testing.T) {
	r := newJobRouter()

	created := doJSON(t, r, http.MethodPost, "/forecast-jobs",
		`{"job_type":"daily_tplus1","target_date":"2025-01-23"}`)
	var resp struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(created.Body.Bytes(), &resp)

	w := doJSON(t, r, http.MethodPost, "/forecast-jobs/"+resp.ID+"/requeue", "")
	if w.Code != http.StatusConflict {
		t.Errorf("requeue of queued job status = %d, want 409", w.Code)
	}
}
