package adapter

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingAdapter struct {
	err       error
	published []*RunCompletedEvent
	closed    bool
}

func (r *recordingAdapter) Publish(_ context.Context, ev *RunCompletedEvent) error {
	r.published = append(r.published, ev)
	return r.err
}

func (r *recordingAdapter) Close() error {
	r.closed = true
	return r.err
}

func TestRetry(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		retries   int
		results   []error
		wantCalls int
		wantIs    error
	}{
		{"first try", 3, []error{nil}, 1, nil},
		{"second try", 3, []error{boom, nil}, 2, nil},
		{"exhausted", 1, []error{boom, boom}, 2, boom},
		{"permanent", 3, []error{&PermanentError{Err: boom}}, 1, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(t.Context(), "test", tt.retries, func(context.Context) error {
				err := tt.results[calls]
				calls++
				return err
			})
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.wantIs == nil && err != nil {
				t.Errorf("Retry = %v, want nil", err)
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("Retry = %v, want %v", err, tt.wantIs)
			}
		})
	}
}

func TestRetry_CanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	calls := 0
	err := Retry(ctx, "test", 5, func(context.Context) error {
		calls++
		return errors.New("unavailable")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Retry = %v, want deadline exceeded", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	ok := &recordingAdapter{}
	failing := &recordingAdapter{err: boom}
	last := &recordingAdapter{}
	m := Multi{ok, failing, last}

	ev := &RunCompletedEvent{EventType: EventTypeRunCompleted, RunID: "r1"}
	if err := m.Publish(t.Context(), ev); !errors.Is(err, boom) {
		t.Errorf("Publish = %v, want %v", err, boom)
	}
	for i, a := range []*recordingAdapter{ok, failing, last} {
		if len(a.published) != 1 || a.published[0] != ev {
			t.Errorf("adapter %d published %v", i, a.published)
		}
	}

	if err := m.Close(); !errors.Is(err, boom) {
		t.Errorf("Close = %v, want %v", err, boom)
	}
	if !ok.closed || !failing.closed || !last.closed {
		t.Error("not every adapter was closed")
	}

	if err := Multi(nil).Publish(t.Context(), ev); err != nil {
		t.Errorf("empty Publish = %v", err)
	}
}
