package capture

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"

	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/log"
)

// BufferedConfig configures a Buffered tap.
type BufferedConfig struct {
	// MaxRecords bounds the number of queued records. Zero means no limit.
	MaxRecords int
	// MaxBytes bounds the queued payload bytes. Zero means no limit.
	// At least one limit must be set.
	MaxBytes int64
	// Logger reports drops and write failures. Nil disables logging.
	Logger *log.Logger
}

// DefaultBufferedConfig returns limits suited to a short capture.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{
		MaxRecords: 4096,
		MaxBytes:   64 << 20,
	}
}

// ErrInvalidConfig is returned when neither limit is set.
var ErrInvalidConfig = errors.New("invalid config: at least one of MaxRecords or MaxBytes must be set")

// Stats counts what a Buffered tap has done.
type Stats struct {
	Total         int64            `json:"total"`
	Persisted     int64            `json:"persisted"`
	Dropped       int64            `json:"dropped"`
	DroppedByType map[string]int64 `json:"dropped_by_type,omitempty"`
	BufferBytes   int64            `json:"buffer_bytes"`
	Flushes       int64            `json:"flushes"`
	Errors        int64            `json:"errors"`
}

// IsDroppable reports whether frames of type t may be left out of a
// capture under pressure. Replies can be matched back to their request by
// id, so they are the first to go.
func IsDroppable(t ipc.DataType) bool {
	return t.IsReply()
}

// Buffered is an ipc.FrameTap that queues records in memory and writes
// them to a Writer on its own goroutine, keeping file I/O off the path of
// the frames it observes.
//
// When the queue is full a droppable frame is dropped; any other frame
// evicts the oldest queued droppable record, or is dropped and counted
// as an error when there is none.
type Buffered struct {
	w      *Writer
	config BufferedConfig
	logger *log.Logger
	now    func() time.Time

	mu    sync.Mutex
	queue []*Record
	bytes int64
	seq   uint64
	stats Stats

	// flushMu serializes writers of the queue: the worker and Flush.
	flushMu sync.Mutex

	wake chan struct{}
	stop core.Fuse
	done core.Fuse
}

var _ ipc.FrameTap = (*Buffered)(nil)

// NewBuffered starts a buffered tap writing to w.
func NewBuffered(w *Writer, config BufferedConfig) (*Buffered, error) {
	if config.MaxRecords <= 0 && config.MaxBytes <= 0 {
		return nil, ErrInvalidConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Nop()
	}
	b := &Buffered{
		w:      w,
		config: config,
		logger: logger,
		now:    time.Now,
		stats:  Stats{DroppedByType: make(map[string]int64)},
		wake:   make(chan struct{}, 1),
	}
	go b.run()
	return b, nil
}

// TapFrame queues f, applying the drop rules when the queue is full.
func (b *Buffered) TapFrame(outbound bool, f ipc.Frame) {
	b.mu.Lock()
	b.stats.Total++
	if b.stop.IsBroken() {
		b.dropLocked(f.Type, "closed")
		b.mu.Unlock()
		return
	}

	b.seq++
	r := &Record{
		Seq:      b.seq,
		Time:     b.now(),
		Outbound: outbound,
		Type:     uint8(f.Type),
		ID:       f.ID,
		Payload:  bytes.Clone(f.Payload),
		Endpoint: b.w.endpoint,
	}
	size := int64(len(r.Payload))

	switch {
	case b.hasRoom(size):
		b.appendLocked(r, size)
	case IsDroppable(f.Type):
		b.dropLocked(f.Type, "buffer_full")
	case b.evictDroppableLocked() && b.hasRoom(size):
		b.appendLocked(r, size)
	default:
		b.stats.Errors++
		b.dropLocked(f.Type, "overflow")
	}
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// hasRoom reports whether a record of size bytes fits. Caller must hold mu.
func (b *Buffered) hasRoom(size int64) bool {
	if b.config.MaxRecords > 0 && len(b.queue) >= b.config.MaxRecords {
		return false
	}
	if b.config.MaxBytes > 0 && b.bytes+size > b.config.MaxBytes {
		return false
	}
	return true
}

func (b *Buffered) appendLocked(r *Record, size int64) {
	b.queue = append(b.queue, r)
	b.bytes += size
	b.stats.BufferBytes = b.bytes
}

func (b *Buffered) dropLocked(t ipc.DataType, reason string) {
	b.stats.Dropped++
	b.stats.DroppedByType[t.String()]++
	b.logger.Warn("capture record dropped", map[string]any{"type": t.String(), "reason": reason})
}

// evictDroppableLocked removes the oldest droppable record.
func (b *Buffered) evictDroppableLocked() bool {
	for i, r := range b.queue {
		t := ipc.DataType(r.Type)
		if !IsDroppable(t) {
			continue
		}
		b.queue = append(b.queue[:i], b.queue[i+1:]...)
		b.bytes -= int64(len(r.Payload))
		b.stats.BufferBytes = b.bytes
		b.dropLocked(t, "evicted")
		return true
	}
	return false
}

func (b *Buffered) run() {
	defer b.done.Break()
	for {
		select {
		case <-b.wake:
			b.flush()
		case <-b.stop.Watch():
			return
		}
	}
}

// flush writes every queued record and returns the first error.
func (b *Buffered) flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.bytes = 0
	b.stats.BufferBytes = 0
	b.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	var firstErr error
	var written int64
	for _, r := range batch {
		if err := b.w.Write(r); err != nil {
			firstErr = err
			break
		}
		written++
	}

	b.mu.Lock()
	b.stats.Persisted += written
	b.stats.Flushes++
	if firstErr != nil {
		b.stats.Errors++
	}
	b.mu.Unlock()

	if firstErr != nil {
		b.logger.Error("capture write failed", map[string]any{
			"error": firstErr.Error(),
			"lost":  len(batch) - int(written),
		})
	}
	return firstErr
}

// Flush writes everything queued so far.
func (b *Buffered) Flush() error {
	return b.flush()
}

// Stats returns a snapshot of the counters.
func (b *Buffered) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.DroppedByType = make(map[string]int64, len(b.stats.DroppedByType))
	for k, v := range b.stats.DroppedByType {
		s.DroppedByType[k] = v
	}
	return s
}

// Close stops the worker, writes what is left and closes the Writer.
func (b *Buffered) Close() error {
	b.mu.Lock()
	b.stop.Break()
	b.mu.Unlock()
	<-b.done.Watch()

	flushErr := b.flush()
	closeErr := b.w.Close()
	if flushErr != nil {
		return fmt.Errorf("flush capture: %w", flushErr)
	}
	return closeErr
}
