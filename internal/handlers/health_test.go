package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

type stubProbe struct {
	report domain.HealthReport
	err    error
}

func (s *stubProbe) Collect(context.Context) (domain.HealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(30 * time.Second)
	handlers := NewHealthHandlers(
		WithHealthBuildInfo(domain.BuildInfo{
			Version:     "1.0.0",
			CommitSHA:   "abc123",
			Environment: "prod",
			StartedAt:   start,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handlers.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body healthResponse
	decodeBody(t, rr, &body)
	if body.Status != domain.HealthStatusOK || body.Version != "1.0.0" || body.CommitSHA != "abc123" || body.Environment != "prod" {
		t.Fatalf("unexpected body %#v", body)
	}
	if body.Uptime != "30s" {
		t.Fatalf("expected uptime 30s, got %s", body.Uptime)
	}
}

func TestHealthHandlersReadyzSuccess(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	probe := &stubProbe{report: domain.HealthReport{
		Status:      domain.HealthStatusOK,
		GeneratedAt: now,
		Checks: map[string]domain.DependencyHealth{
			"firestore": {Status: domain.HealthStatusOK, Latency: 10 * time.Millisecond, CheckedAt: now},
		},
	}}
	handlers := NewHealthHandlers(WithHealthProbe(probe), WithHealthClock(func() time.Time { return now }))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body healthResponse
	decodeBody(t, rr, &body)
	if body.Status != domain.HealthStatusOK || len(body.Details) != 0 {
		t.Fatalf("unexpected body %#v", body)
	}
	if got := body.Checks["firestore"]; got.Status != domain.HealthStatusOK || got.LatencyMS != 10 {
		t.Fatalf("unexpected firestore check %#v", got)
	}
}

func TestHealthHandlersReadyzDegraded(t *testing.T) {
	probe := &stubProbe{report: domain.HealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.DependencyHealth{
			"firestore": {Status: domain.HealthStatusOK},
			"stripe":    {Status: domain.HealthStatusDegraded, Detail: "unauthorized"},
		},
	}}
	handlers := NewHealthHandlers(WithHealthProbe(probe))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var body healthResponse
	decodeBody(t, rr, &body)
	if body.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", body.Status)
	}
	if len(body.Details) != 1 || body.Details[0] != "stripe: unauthorized" {
		t.Fatalf("unexpected details %v", body.Details)
	}
}

func TestHealthHandlersReadyzProbeError(t *testing.T) {
	handlers := NewHealthHandlers(WithHealthProbe(&stubProbe{err: errors.New("probe not initialised")}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handlers.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
