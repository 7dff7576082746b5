package domain

import "time"

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency answered with an error but the process can serve.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a dependency did not answer in time.
	HealthStatusError = "error"
)

// DependencyHealth is the outcome of a single readiness probe.
type DependencyHealth struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for /readyz.
type HealthReport struct {
	Status      string
	Checks      map[string]DependencyHealth
	GeneratedAt time.Time
}

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}
