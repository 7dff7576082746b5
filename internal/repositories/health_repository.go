package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service (Firestore, Stripe, Pub/Sub) for readiness.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

// DependencyProbeOption customises a DependencyProbe.
type DependencyProbeOption func(*DependencyProbe)

// WithProbeTimeout sets the timeout for checks that do not carry their own.
func WithProbeTimeout(timeout time.Duration) DependencyProbeOption {
	return func(p *DependencyProbe) {
		if timeout > 0 {
			p.defaultTimeout = timeout
		}
	}
}

// WithProbeClock injects a clock for tests.
func WithProbeClock(clock func() time.Time) DependencyProbeOption {
	return func(p *DependencyProbe) {
		if clock != nil {
			p.now = clock
		}
	}
}

// DependencyProbe runs every configured check concurrently and folds the results into a report.
type DependencyProbe struct {
	checks         []DependencyCheck
	defaultTimeout time.Duration
	now            func() time.Time
}

// NewDependencyProbe validates the check set up front so Collect never fails on configuration.
func NewDependencyProbe(checks []DependencyCheck, opts ...DependencyProbeOption) (*DependencyProbe, error) {
	if len(checks) == 0 {
		return nil, errors.New("dependency probe: at least one check is required")
	}
	seen := make(map[string]struct{}, len(checks))
	for _, check := range checks {
		name := strings.TrimSpace(check.Name)
		if name == "" {
			return nil, errors.New("dependency probe: check name is required")
		}
		if check.Check == nil {
			return nil, fmt.Errorf("dependency probe: check %s has no function", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("dependency probe: duplicate check %s", name)
		}
		seen[name] = struct{}{}
	}

	probe := &DependencyProbe{
		checks:         append([]DependencyCheck(nil), checks...),
		defaultTimeout: defaultProbeTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(probe)
		}
	}
	return probe, nil
}

// Collect runs the checks and reports error if any timed out, degraded if any failed.
func (p *DependencyProbe) Collect(ctx context.Context) (domain.HealthReport, error) {
	if p == nil {
		return domain.HealthReport{}, errors.New("dependency probe not initialised")
	}

	results := make(map[string]domain.DependencyHealth, len(p.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range p.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			outcome := p.run(ctx, check)
			mu.Lock()
			results[strings.TrimSpace(check.Name)] = outcome
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	status := domain.HealthStatusOK
	for _, result := range results {
		switch result.Status {
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		case domain.HealthStatusDegraded:
			if status == domain.HealthStatusOK {
				status = domain.HealthStatusDegraded
			}
		}
	}
	return domain.HealthReport{
		Status:      status,
		Checks:      results,
		GeneratedAt: p.now().UTC(),
	}, nil
}

func (p *DependencyProbe) run(ctx context.Context, check DependencyCheck) domain.DependencyHealth {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	err := check.Check(checkCtx)
	end := p.now()

	result := domain.DependencyHealth{
		Status:    domain.HealthStatusOK,
		Detail:    "ok",
		Latency:   end.Sub(start),
		CheckedAt: end.UTC(),
	}
	if err == nil && checkCtx.Err() != nil {
		err = checkCtx.Err()
	}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = domain.HealthStatusError
		result.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		result.Status = domain.HealthStatusError
		result.Detail = "cancelled"
	default:
		result.Status = domain.HealthStatusDegraded
		result.Detail = err.Error()
	}
	return result
}
