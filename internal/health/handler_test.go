package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/unalkalkan/TaleWeaver/internal/storage"
)

func TestRunChecks(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{
			name: "all healthy",
			checks: map[string]CheckFunc{
				"a": func(context.Context) (Status, error) { return StatusHealthy, nil },
				"b": func(context.Context) (Status, error) { return StatusHealthy, nil },
			},
			want: StatusHealthy,
		},
		{
			name: "degraded",
			checks: map[string]CheckFunc{
				"a": func(context.Context) (Status, error) { return StatusHealthy, nil },
				"b": func(context.Context) (Status, error) { return StatusDegraded, nil },
			},
			want: StatusDegraded,
		},
		{
			name: "unhealthy wins",
			checks: map[string]CheckFunc{
				"a": func(context.Context) (Status, error) { return StatusDegraded, nil },
				"b": func(context.Context) (Status, error) { return StatusUnhealthy, errors.New("down") },
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler("test")
			for name, fn := range tt.checks {
				h.Register(name, fn)
			}
			resp := h.RunChecks(context.Background())
			if resp.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, resp.Status)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(resp.Checks))
			}
		})
	}
}

func TestRunChecksConcurrently(t *testing.T) {
	h := NewHandler("test")
	slow := func(context.Context) (Status, error) {
		time.Sleep(100 * time.Millisecond)
		return StatusHealthy, nil
	}
	h.Register("one", slow)
	h.Register("two", slow)
	h.Register("three", slow)

	start := time.Now()
	h.RunChecks(context.Background())
	if d := time.Since(start); d > 250*time.Millisecond {
		t.Errorf("Checks should run concurrently, took %v", d)
	}
}

func TestReadinessHandler(t *testing.T) {
	adapter, err := storage.NewLocalAdapter(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create adapter: %v", err)
	}

	h := NewHandler("1.0.0")
	h.Register("storage", StorageCheck(adapter))

	rec := httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Checks["storage"].Status != StatusHealthy || resp.Version != "1.0.0" {
		t.Errorf("Unexpected response: %+v", resp)
	}

	h.Register("broken", func(context.Context) (Status, error) { return StatusUnhealthy, errors.New("no disk") })
	rec = httptest.NewRecorder()
	h.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHandler("1.0.0").LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
}
