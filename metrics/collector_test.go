package metrics

import (
	"sync"
	"testing"
)

func TestCollector_IncrementMethods(t *testing.T) {
	c := NewCollector("sink", "")

	c.IncAckResolved()
	c.IncAckResolved()
	c.IncAckTimeout()
	c.IncUnknownReply()
	c.AddCancelled(3)
	c.AddCancelled(0)
	c.IncDecodeError()
	c.IncReadError()
	c.IncWriteError()
	c.IncWriteError()
	c.AddDroppedMetas(2)
	c.IncReaderRestart()

	s := c.Snapshot()

	if s.AcksResolved != 2 {
		t.Errorf("AcksResolved = %d, want 2", s.AcksResolved)
	}
	if s.AckTimeouts != 1 {
		t.Errorf("AckTimeouts = %d, want 1", s.AckTimeouts)
	}
	if s.UnknownReplies != 1 {
		t.Errorf("UnknownReplies = %d, want 1", s.UnknownReplies)
	}
	if s.Cancelled != 3 {
		t.Errorf("Cancelled = %d, want 3", s.Cancelled)
	}
	if s.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", s.DecodeErrors)
	}
	if s.ReadErrors != 1 {
		t.Errorf("ReadErrors = %d, want 1", s.ReadErrors)
	}
	if s.WriteErrors != 2 {
		t.Errorf("WriteErrors = %d, want 2", s.WriteErrors)
	}
	if s.DroppedMetas != 2 {
		t.Errorf("DroppedMetas = %d, want 2", s.DroppedMetas)
	}
	if s.ReaderRestarts != 1 {
		t.Errorf("ReaderRestarts = %d, want 1", s.ReaderRestarts)
	}
}

func TestCollector_Traffic(t *testing.T) {
	c := NewCollector("src", "")
	c.RecordSent("ACK", 13)
	c.RecordSent("ACK", 13)
	c.RecordSent("QUERY_RESULT", 40)
	c.RecordReceived("BUFFER", 100)

	s := c.Snapshot()
	if s.FramesSent != 3 || s.BytesSent != 66 {
		t.Errorf("sent = %d frames / %d bytes, want 3 / 66", s.FramesSent, s.BytesSent)
	}
	if s.FramesReceived != 1 || s.BytesReceived != 100 {
		t.Errorf("received = %d frames / %d bytes, want 1 / 100", s.FramesReceived, s.BytesReceived)
	}
	if s.SentByType["ACK"] != 2 || s.SentByType["QUERY_RESULT"] != 1 {
		t.Errorf("SentByType = %v", s.SentByType)
	}
	if s.ReceivedByType["BUFFER"] != 1 {
		t.Errorf("ReceivedByType = %v", s.ReceivedByType)
	}
}

func TestCollector_Dimensions(t *testing.T) {
	c := NewCollector("sink", "ipcpipelinesink0")
	s := c.Snapshot()
	if s.Endpoint != "sink" {
		t.Errorf("Endpoint = %q, want sink", s.Endpoint)
	}
	if s.Name != "ipcpipelinesink0" {
		t.Errorf("Name = %q, want ipcpipelinesink0", s.Name)
	}
}

func TestCollector_SnapshotImmutability(t *testing.T) {
	c := NewCollector("sink", "")
	c.IncAckResolved()
	c.RecordSent("BUFFER", 10)

	s1 := c.Snapshot()

	// Mutate collector after snapshot
	c.IncAckResolved()
	c.RecordSent("BUFFER", 10)

	// s1 should be unchanged
	if s1.AcksResolved != 1 {
		t.Errorf("s1.AcksResolved = %d, want 1 (snapshot should be frozen)", s1.AcksResolved)
	}
	if s1.SentByType["BUFFER"] != 1 {
		t.Errorf("s1.SentByType[BUFFER] = %d, want 1 (snapshot should be frozen)", s1.SentByType["BUFFER"])
	}

	// Mutating the snapshot map must not reach the collector
	s1.SentByType["BUFFER"] = 999
	s1.SentByType["injected"] = 1

	s2 := c.Snapshot()
	if s2.AcksResolved != 2 {
		t.Errorf("s2.AcksResolved = %d, want 2", s2.AcksResolved)
	}
	if s2.SentByType["BUFFER"] != 2 {
		t.Errorf("s2.SentByType[BUFFER] = %d, want 2", s2.SentByType["BUFFER"])
	}
	if _, exists := s2.SentByType["injected"]; exists {
		t.Error("SentByType should not contain injected key from snapshot mutation")
	}
}

func TestCollector_NilReceiverSafety(t *testing.T) {
	var c *Collector

	// None of these should panic
	c.RecordSent("ACK", 1)
	c.RecordReceived("ACK", 1)
	c.IncAckResolved()
	c.IncAckTimeout()
	c.IncUnknownReply()
	c.AddCancelled(2)
	c.IncDecodeError()
	c.IncReadError()
	c.IncWriteError()
	c.AddDroppedMetas(1)
	c.IncReaderRestart()

	s := c.Snapshot()
	if s.FramesSent != 0 {
		t.Errorf("nil collector snapshot FramesSent = %d, want 0", s.FramesSent)
	}
	if s.SentByType != nil {
		t.Errorf("nil collector snapshot SentByType should be nil, got %v", s.SentByType)
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector("sink", "")
	const goroutines = 10
	const iterations = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)

	for range goroutines {
		go func() {
			defer wg.Done()
			for range iterations {
				c.RecordSent("BUFFER", 1)
				c.IncAckResolved()
				c.IncDecodeError()
			}
		}()
	}

	wg.Wait()

	s := c.Snapshot()
	want := int64(goroutines * iterations)

	if s.FramesSent != want {
		t.Errorf("FramesSent = %d, want %d", s.FramesSent, want)
	}
	if s.SentByType["BUFFER"] != want {
		t.Errorf("SentByType[BUFFER] = %d, want %d", s.SentByType["BUFFER"], want)
	}
	if s.AcksResolved != want {
		t.Errorf("AcksResolved = %d, want %d", s.AcksResolved, want)
	}
	if s.DecodeErrors != want {
		t.Errorf("DecodeErrors = %d, want %d", s.DecodeErrors, want)
	}
}

func TestCollector_ZeroValueSnapshot(t *testing.T) {
	c := NewCollector("src", "")
	s := c.Snapshot()

	// All counters should be zero
	if s.FramesSent != 0 || s.FramesReceived != 0 || s.BytesSent != 0 || s.BytesReceived != 0 {
		t.Error("fresh collector should have zero traffic counters")
	}
	if s.AcksResolved != 0 || s.AckTimeouts != 0 || s.UnknownReplies != 0 || s.Cancelled != 0 {
		t.Error("fresh collector should have zero acknowledgement counters")
	}
	if s.DecodeErrors != 0 || s.ReadErrors != 0 || s.WriteErrors != 0 || s.DroppedMetas != 0 || s.ReaderRestarts != 0 {
		t.Error("fresh collector should have zero failure counters")
	}
	if len(s.SentByType) != 0 || len(s.ReceivedByType) != 0 {
		t.Error("fresh collector per-type maps should be empty")
	}
}
