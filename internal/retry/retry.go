// Package retry implements the shared retry/backoff policy applied to
// every external source fetch. Each source runs its own state machine so
// a rate-limited source backing off never blocks the others.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// State of a retried task. Backoff is explicit state, not hidden
// control flow, so the shim can be observed and tested.
type State int

const (
	StatePending State = iota
	StateAttempting
	StateBackingOff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAttempting:
		return "attempting"
	case StateBackingOff:
		return "backing-off"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Config struct {
	MaxAttempts int
	BaseWait    time.Duration
	MaxWait     time.Duration
	// Jitter adds up to 25% of the computed wait, desynchronizing
	// retries against a rate-limited source.
	Jitter bool
}

// Backoff returns the wait before the next attempt. attempt is
// 1-based: the wait after the first failure uses attempt 1.
func (c Config) Backoff(attempt int, rng *rand.Rand) time.Duration {
	wait := c.BaseWait
	for i := 1; i < attempt; i++ {
		wait *= 2
		if c.MaxWait > 0 && wait >= c.MaxWait {
			wait = c.MaxWait
			break
		}
	}
	if c.MaxWait > 0 && wait > c.MaxWait {
		wait = c.MaxWait
	}
	if c.Jitter && rng != nil {
		wait += time.Duration(rng.Float64() * 0.25 * float64(wait))
	}
	return wait
}

// Task tracks one retried operation through its states.
type Task struct {
	Name     string
	State    State
	Attempts int
	LastErr  error

	cfg Config
	rng *rand.Rand
}

// NewTask creates a pending task for the named operation.
func NewTask(name string, cfg Config) *Task {
	return &Task{
		Name:  name,
		State: StatePending,
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives fn to success or permanent failure. Waiting respects ctx,
// so cancellation during backoff returns promptly.
func (t *Task) Run(ctx context.Context, fn func() error) error {
	for {
		t.State = StateAttempting
		t.Attempts++

		err := fn()
		if err == nil {
			t.State = StateSucceeded
			t.LastErr = nil
			return nil
		}
		t.LastErr = err

		if t.Attempts >= t.cfg.MaxAttempts {
			t.State = StateFailed
			return fmt.Errorf("%s failed after %d attempts: %w", t.Name, t.Attempts, err)
		}

		t.State = StateBackingOff
		wait := t.cfg.Backoff(t.Attempts, t.rng)
		select {
		case <-ctx.Done():
			t.State = StateFailed
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Do is the convenience wrapper for callers that do not need to inspect
// task state afterwards.
func Do(ctx context.Context, name string, cfg Config, fn func() error) error {
	return NewTask(name, cfg).Run(ctx, fn)
}
