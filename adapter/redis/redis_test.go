package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/ipcpipe/adapter"
)

func testEvent(runID string) *adapter.RunCompletedEvent {
	return &adapter.RunCompletedEvent{
		SchemaVersion: adapter.SchemaVersion,
		EventType:     adapter.EventTypeRunCompleted,
		RunID:         runID,
		Outcome:       "success",
		Buffers:       10,
		Bytes:         40960,
		EOS:           true,
		Timestamp:     "2026-10-18T12:00:00Z",
		DurationMs:    15,
	}
}

// asyncReceive reads one message from sub. It must be started before
// Publish: miniredis delivers pub/sub messages synchronously.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{}
	}
}

func TestPublish_Channel(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
	}{
		{"default", "", DefaultChannel},
		{"custom", "custom:runs", "custom:runs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr := miniredis.RunT(t)
			a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: tt.channel})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			defer func() { _ = a.Close() }()

			sub := mr.NewSubscriber()
			sub.Subscribe(tt.want)
			ch := asyncReceive(sub)

			if err := a.Publish(t.Context(), testEvent("run-001")); err != nil {
				t.Fatalf("Publish failed: %v", err)
			}

			msg := waitMessage(t, ch)
			if msg.Channel != tt.want {
				t.Errorf("channel = %q, want %q", msg.Channel, tt.want)
			}
			var received adapter.RunCompletedEvent
			if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if received.RunID != "run-001" || received.Outcome != "success" {
				t.Errorf("received %+v", received)
			}
		})
	}
}

func TestPublish_History(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr(), HistoryKey: "ipcpipe:runs", HistoryLen: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	for _, id := range []string{"r1", "r2", "r3"} {
		if err := a.Publish(t.Context(), testEvent(id)); err != nil {
			t.Fatalf("Publish %s failed: %v", id, err)
		}
	}

	items, err := mr.List("ipcpipe:runs")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("history has %d items, want 2", len(items))
	}
	var newest adapter.RunCompletedEvent
	if err := json.Unmarshal([]byte(items[0]), &newest); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if newest.RunID != "r3" {
		t.Errorf("newest = %s, want r3", newest.RunID)
	}
}

func TestPublish_Unreachable(t *testing.T) {
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 1, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent("r1")); err == nil {
		t.Fatal("Publish succeeded against an unreachable server")
	}

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()
	b, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = b.Close() }()
	if err := b.Publish(ctx, testEvent("r1")); err == nil {
		t.Fatal("Publish succeeded on a canceled context")
	}
}

func TestPublish_AfterClose(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := a.Publish(t.Context(), testEvent("r1")); err == nil {
		t.Fatal("Publish succeeded after Close")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no URL", Config{}},
		{"invalid URL", Config{URL: "not-a-redis-url"}},
		{"negative retries", Config{URL: "redis://localhost:6379", Retries: -1}},
		{"negative history", Config{URL: "redis://localhost:6379", HistoryLen: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New succeeded")
			}
		})
	}

	mr := miniredis.RunT(t)
	a, err := New(Config{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = a.Close() }()
	if a.config.Channel != DefaultChannel || a.config.Timeout != DefaultTimeout {
		t.Errorf("defaults not applied: %+v", a.config)
	}
}
