package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

func TestDependencyProbeCollectSuccess(t *testing.T) {
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	probe, err := NewDependencyProbe([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return nil }},
		{Name: "stripe", Check: func(context.Context) error { return nil }},
	}, WithProbeClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewDependencyProbe: %v", err)
	}

	report, err := probe.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(report.Checks))
	}
	if report.Checks["firestore"].CheckedAt != now {
		t.Fatalf("expected checkedAt %s, got %s", now, report.Checks["firestore"].CheckedAt)
	}
	if report.GeneratedAt != now {
		t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
	}
}

func TestDependencyProbeCollectDegraded(t *testing.T) {
	probe, err := NewDependencyProbe([]DependencyCheck{
		{Name: "firestore", Check: func(context.Context) error { return errors.New("unavailable") }},
		{Name: "pubsub", Check: func(context.Context) error { return nil }},
	})
	if err != nil {
		t.Fatalf("NewDependencyProbe: %v", err)
	}

	report, err := probe.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
	if got := report.Checks["firestore"]; got.Status != domain.HealthStatusDegraded || got.Detail != "unavailable" {
		t.Fatalf("unexpected firestore result %#v", got)
	}
	if report.Checks["pubsub"].Status != domain.HealthStatusOK {
		t.Fatalf("expected pubsub ok, got %s", report.Checks["pubsub"].Status)
	}
}

func TestDependencyProbeCollectTimeout(t *testing.T) {
	probe, err := NewDependencyProbe([]DependencyCheck{
		{
			Name:    "stripe",
			Timeout: 5 * time.Millisecond,
			Check: func(ctx context.Context) error {
				select {
				case <-time.After(200 * time.Millisecond):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
		{Name: "firestore", Check: func(context.Context) error { return errors.New("slow") }},
	})
	if err != nil {
		t.Fatalf("NewDependencyProbe: %v", err)
	}

	report, err := probe.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error, got %s", report.Status)
	}
	if report.Checks["stripe"].Detail != "timeout" {
		t.Fatalf("expected timeout detail, got %s", report.Checks["stripe"].Detail)
	}
}

func TestNewDependencyProbeRejectsBadChecks(t *testing.T) {
	ok := func(context.Context) error { return nil }
	cases := map[string][]DependencyCheck{
		"empty":     nil,
		"no name":   {{Name: " ", Check: ok}},
		"no func":   {{Name: "firestore"}},
		"duplicate": {{Name: "firestore", Check: ok}, {Name: "firestore", Check: ok}},
	}
	for name, checks := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDependencyProbe(checks); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
