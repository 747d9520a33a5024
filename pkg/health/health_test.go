package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyGate(t *testing.T) {
	c := NewChecker()
	c.Register("store", PingCheck(func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("before MarkReady: status = %d, want 503", rec.Code)
	}

	c.MarkReady(true)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("after MarkReady: status = %d, want 200", rec.Code)
	}
}

func TestRunWorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.MarkReady(true)
	c.Register("cache", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})
	if got := c.Run(context.Background()).Status; got != StatusDegraded {
		t.Errorf("status = %s, want degraded", got)
	}
	c.Register("store", PingCheck(func(context.Context) error { return errors.New("refused") }))
	report := c.Run(context.Background())
	if report.Status != StatusDown {
		t.Errorf("status = %s, want down", report.Status)
	}
	if report.Components["store"].Message != "refused" {
		t.Errorf("store component = %+v", report.Components["store"])
	}

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with a down component", rec.Code)
	}
}
