package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/googleapis/gax-go/v2"
	"github.com/oklog/ulid/v2"

	domain "github.com/Mayne0963/otw-sub006/internal/domain"
)

const defaultMirrorAttempts = 3

// MirrorPolicy bounds the retries spent on an index mirror write before it is deferred.
type MirrorPolicy struct {
	Attempts int
	Backoff  gax.Backoff
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultMirrorPolicy returns the policy used when none is configured.
func DefaultMirrorPolicy() MirrorPolicy {
	return MirrorPolicy{
		Attempts: defaultMirrorAttempts,
		Backoff: gax.Backoff{
			Initial:    50 * time.Millisecond,
			Max:        time.Second,
			Multiplier: 2,
		},
	}
}

// Run calls write until it succeeds, the attempts are spent, or ctx ends. It returns the number
// of attempts made and the last error.
func (p MirrorPolicy) Run(ctx context.Context, write func(ctx context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultMirrorAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = gax.Sleep
	}
	backoff := p.Backoff

	var err error
	for i := 1; i <= attempts; i++ {
		if err = write(ctx); err == nil {
			return i, nil
		}
		if !retryable(err) || i == attempts {
			return i, err
		}
		if serr := sleep(ctx, backoff.Pause()); serr != nil {
			return i, err
		}
	}
	return attempts, err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var repoErr RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return false
	}
	return true
}

// MirrorOrDefer mirrors the order's index entry under policy and, once retries are spent, queues
// an outbox record for the reconciler. Guest orders are skipped.
func MirrorOrDefer(ctx context.Context, policy MirrorPolicy, store IndexOutboxRepository, order domain.Order, now time.Time) MirrorOutcome {
	if order.IsGuest() {
		return MirrorOutcome{}
	}
	entry := order.IndexEntry()
	attempts, err := policy.Run(ctx, func(ctx context.Context) error {
		return store.MirrorIndex(ctx, order.OwnerID, entry)
	})
	outcome := MirrorOutcome{Attempted: true, Attempts: attempts, Err: err}
	if err == nil {
		return outcome
	}

	// the caller may already be gone; the outbox write must still land
	detached := context.WithoutCancel(ctx)
	record := domain.IndexOutboxEntry{
		ID:        ulid.Make().String(),
		OrderID:   order.ID,
		OwnerID:   order.OwnerID,
		Attempts:  attempts,
		LastError: err.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if qerr := store.EnqueueOutbox(detached, record); qerr != nil {
		outcome.Err = errors.Join(err, fmt.Errorf("enqueue index outbox: %w", qerr))
		return outcome
	}
	outcome.Deferred = true
	return outcome
}
