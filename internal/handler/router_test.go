package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/metachan/internal/middleware"
	"github.com/hitoshi/metachan/internal/model"
)

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error { return m.err }

type mockTaskReader struct {
	statuses []model.TaskStatus
	err      error
}

func (m *mockTaskReader) GetAllTaskStatuses(context.Context) ([]model.TaskStatus, error) {
	return m.statuses, m.err
}

func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()
	var buf bytes.Buffer
	if deps.Logger == nil {
		deps.Logger = newTestLogger(&buf)
	}
	if deps.AnimeService == nil {
		deps.AnimeService = &mockAnimeService{}
	}
	return NewRouter(deps)
}

func TestRouter_Routes(t *testing.T) {
	svc := &mockAnimeService{
		getFullRecordFn: func(ctx context.Context, malID int) (*model.AnimeRecord, error) {
			return &model.AnimeRecord{ID: malID}, nil
		},
		getEpisodesFn: func(ctx context.Context, malID int) (*model.EpisodeList, error) {
			return &model.EpisodeList{Episodes: []model.EpisodeRecord{}}, nil
		},
	}
	router := newTestRouter(t, &RouterDeps{
		AnimeService:   svc,
		HealthChecker:  &mockHealthChecker{},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("# metrics")) }),
		Tasks:          &mockTaskReader{},
	})

	tests := []struct {
		path string
		want int
	}{
		{"/health", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/anime/search?q=frieren", http.StatusOK},
		{"/anime/52991", http.StatusOK},
		{"/anime/52991/episodes", http.StatusOK},
		{"/anime/52991/episodes/1", http.StatusOK},
		{"/anime/abc", http.StatusBadRequest},
		{"/tasks", http.StatusOK},
		{"/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.want {
				t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.want)
			}
		})
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/anime/1", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeMethodNotAllowed {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeMethodNotAllowed)
	}
}

func TestRouter_UnknownRouteReturnsJSON(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	for _, path := range []string{"/unknown", "/anime/1/characters"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, w.Code)
			continue
		}
		var body middleware.ErrorResponseBody
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("GET %s: failed to decode body: %v", path, err)
		}
		if body.Code != model.ErrCodeRouteNotFound {
			t.Errorf("GET %s code = %q, want %q", path, body.Code, model.ErrCodeRouteNotFound)
		}
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{CORSAllowedOrigin: "https://app.example"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Access-Control-Allow-Origin = %q, want https://app.example", got)
	}
}

func TestRouter_HealthUnavailable(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{HealthChecker: &mockHealthChecker{err: errors.New("connection refused")}})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestRouter_RateLimitSkipsHealth(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{GeneralRate: 1, GeneralBurst: 1, CleanupInterval: time.Minute})
	defer rl.Stop()
	router := newTestRouter(t, &RouterDeps{RateLimiter: rl, HealthChecker: &mockHealthChecker{}})

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusOK {
			t.Errorf("health request %d: status = %d, want 200", i, w.Code)
		}
	}

	var last int
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anime/search", nil))
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("second search status = %d, want 429", last)
	}
}

func TestRouter_Tasks(t *testing.T) {
	lastRun := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	nextRun := lastRun.Add(24 * time.Hour)
	reader := &mockTaskReader{statuses: []model.TaskStatus{{
		Name:       "CachePurge",
		Registered: true,
		Interval:   24 * time.Hour,
		LastRun:    &lastRun,
		LastStatus: "success",
		NextRun:    &nextRun,
	}}}
	router := newTestRouter(t, &RouterDeps{Tasks: reader})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Tasks []taskStatusResponse `json:"tasks"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(body.Tasks))
	}
	task := body.Tasks[0]
	if task.Name != "CachePurge" || task.Interval != "24h0m0s" || task.LastStatus != "success" {
		t.Errorf("task = %+v", task)
	}
	if task.NextRun == nil || !task.NextRun.Equal(nextRun) {
		t.Errorf("NextRun = %v, want %v", task.NextRun, nextRun)
	}
}

func TestRouter_TasksFailure(t *testing.T) {
	var buf bytes.Buffer
	router := newTestRouter(t, &RouterDeps{
		Logger: newTestLogger(&buf),
		Tasks:  &mockTaskReader{err: errors.New("db down")},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(buf.String(), "failed to read task statuses") {
		t.Errorf("failure should be logged: %s", buf.String())
	}
}
