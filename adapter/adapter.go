// Package adapter publishes run-completed notifications to downstream
// systems once an ipcpipe run has finished.
//
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeRunCompleted is the only event type published.
const EventTypeRunCompleted = "run_completed"

// SchemaVersion versions the RunCompletedEvent payload.
const SchemaVersion = "1"

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	SchemaVersion string `json:"schema_version"`
	EventType     string `json:"event_type"` // always "run_completed"
	RunID         string `json:"run_id"`
	Outcome       string `json:"outcome"` // success, usage_error, peer_crash, protocol_error
	Message       string `json:"message,omitempty"`
	ExitCode      int    `json:"exit_code"`
	PeerExitCode  int    `json:"peer_exit_code"`
	Buffers       int    `json:"buffers"`
	Bytes         int64  `json:"bytes"`
	PositionNs    int64  `json:"position_ns"`
	EOS           bool   `json:"eos"`
	CapturePath   string `json:"capture_path,omitempty"`
	Timestamp     string `json:"timestamp"` // RFC 3339
	DurationMs    int64  `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
type Adapter interface {
	// Publish sends a run completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BackoffBase is the wait before the first retry. It doubles per attempt.
const BackoffBase = 500 * time.Millisecond

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Retry calls attempt up to 1+retries times with exponential backoff
// between calls. It stops early on success, on a *PermanentError and when
// ctx is done. name prefixes returned errors.
func Retry(ctx context.Context, name string, retries int, attempt func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BackoffBase
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *PermanentError
		if errors.As(lastErr, &perm) {
			return fmt.Errorf("%s: non-retriable error: %w", name, perm.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

// Multi fans an event out to several adapters.
type Multi []Adapter

// Publish publishes to every adapter, also after a failure, and joins the
// errors.
func (m Multi) Publish(ctx context.Context, event *RunCompletedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Adapter = Multi(nil)
