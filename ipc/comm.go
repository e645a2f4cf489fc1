package ipc

import (
	"fmt"
	"sync"
	"time"

	"github.com/frostbyte73/core"
	"go.uber.org/atomic"

	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/metrics"
)

// Defaults for Config.
const (
	DefaultAckTime       = 10 * time.Second
	DefaultReadChunkSize = 4096
)

// Config holds the descriptors and tuning of a Comm.
type Config struct {
	// FdIn is read by the reader. -1 means unset.
	FdIn int
	// FdOut is written by every writer. -1 means unset.
	FdOut int
	// ReadChunkSize is the number of bytes read per poll iteration.
	ReadChunkSize int
	// AckTime bounds timed acknowledgement waits.
	AckTime time.Duration
}

// DefaultConfig returns a Config with unset descriptors and default tuning.
func DefaultConfig() Config {
	return Config{
		FdIn:          -1,
		FdOut:         -1,
		ReadChunkSize: DefaultReadChunkSize,
		AckTime:       DefaultAckTime,
	}
}

// FrameTap observes every frame written or dispatched by a Comm.
type FrameTap interface {
	TapFrame(outbound bool, f Frame)
}

// Option configures a Comm.
type Option func(*Comm)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Comm) { c.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Comm) { c.metrics = m }
}

// WithErrorReporter sets the receiver of fatal errors.
func WithErrorReporter(r ErrorReporter) Option {
	return func(c *Comm) { c.reporter = r }
}

// WithTap sets a frame observer.
func WithTap(t FrameTap) Option {
	return func(c *Comm) { c.tap = t }
}

// Comm is the communication context of one endpoint: the descriptor pair,
// the table of requests waiting for acknowledgement, and the reader.
//
// Any number of goroutines may write concurrently; a single mutex
// serializes the bytes written, the send-id counter and the request table.
type Comm struct {
	mu       sync.Mutex
	fdin     int
	fdout    int
	sendID   uint32
	closed   bool
	requests *RequestTable

	chunkSize int
	ackTime   time.Duration

	logger   *log.Logger
	metrics  *metrics.Collector
	reporter ErrorReporter
	tap      FrameTap

	// readerMu serializes reader start and stop. It is taken before mu.
	readerMu sync.Mutex
	reader   *reader
	flushing atomic.Bool
}

// reader is one run of the read loop.
type reader struct {
	poller *poller
	done   core.Fuse
}

// NewComm creates a communication context. The reader is not started.
func NewComm(cfg Config, opts ...Option) *Comm {
	EnsureInitialized()

	c := &Comm{
		fdin:      cfg.FdIn,
		fdout:     cfg.FdOut,
		chunkSize: cfg.ReadChunkSize,
		ackTime:   cfg.AckTime,
		logger:    log.Nop(),
		reporter:  discardReporter{},
	}
	if c.chunkSize <= 0 {
		c.chunkSize = DefaultReadChunkSize
	}
	if c.ackTime <= 0 {
		c.ackTime = DefaultAckTime
	}
	for _, opt := range opts {
		opt(c)
	}
	c.requests = NewRequestTable(&c.mu, c.logger, c.metrics)
	return c
}

// SetFDs changes the descriptors. A running reader picks up the new input
// descriptor on its next poll.
func (c *Comm) SetFDs(fdin, fdout int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fdin = fdin
	c.fdout = fdout
}

// FDs returns the current descriptors.
func (c *Comm) FDs() (fdin, fdout int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fdin, c.fdout
}

// Config returns the current descriptors and tuning.
func (c *Comm) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Config{FdIn: c.fdin, FdOut: c.fdout, ReadChunkSize: c.chunkSize, AckTime: c.ackTime}
}

// SetAckTime changes the timeout of timed waits started afterwards.
func (c *Comm) SetAckTime(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.ackTime = d
	}
}

// Requests returns the pending-request table.
func (c *Comm) Requests() *RequestTable {
	return c.requests
}

// Logger returns the logger of the Comm.
func (c *Comm) Logger() *log.Logger {
	return c.logger
}

// StartReader starts the read loop, delivering inbound work to h. It
// fails with ErrReaderRunning if a reader is already running.
func (c *Comm) StartReader(h Handler) error {
	c.readerMu.Lock()
	defer c.readerMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if c.reader != nil {
		if !c.reader.done.IsBroken() {
			return ErrReaderRunning
		}
		// The previous loop ended on its own after a fatal error.
		c.reader.poller.close()
		c.reader = nil
	}

	p, err := newPoller()
	if err != nil {
		return fmt.Errorf("start reader: %w", err)
	}
	r := &reader{poller: p}
	c.flushing.Store(false)
	c.reader = r
	go c.readLoop(r, h)
	c.logger.Info("reader started", nil)
	return nil
}

// StopReader makes the read loop exit and waits for it. It is a no-op if
// no reader was started.
func (c *Comm) StopReader() {
	c.readerMu.Lock()
	defer c.readerMu.Unlock()

	r := c.reader
	if r == nil {
		return
	}
	c.flushing.Store(true)
	r.poller.wake()
	<-r.done.Watch()
	r.poller.close()
	c.reader = nil
	c.logger.Info("reader stopped", nil)
}

// ReaderRunning reports whether a read loop is active.
func (c *Comm) ReaderRunning() bool {
	c.readerMu.Lock()
	defer c.readerMu.Unlock()
	return c.reader != nil && !c.reader.done.IsBroken()
}

// ReaderDone returns a channel closed when the current read loop exits,
// or nil if no reader was started.
func (c *Comm) ReaderDone() <-chan struct{} {
	c.readerMu.Lock()
	defer c.readerMu.Unlock()
	if c.reader == nil {
		return nil
	}
	return c.reader.done.Watch()
}

// Cancel force-resolves every pending request. With cleanup the table is
// discarded as well. It returns the number of requests cancelled.
func (c *Comm) Cancel(policy CancelPolicy, cleanup bool) int {
	return c.requests.CancelAll(policy, cleanup)
}

// Clear releases the Comm. The reader must have been stopped. Pending
// requests fail and later writes return failure results.
func (c *Comm) Clear() error {
	if c.ReaderRunning() {
		return ErrReaderRunning
	}
	c.readerMu.Lock()
	if c.reader != nil {
		c.reader.poller.close()
		c.reader = nil
	}
	c.readerMu.Unlock()

	c.requests.CancelAll(CancelFailure, true)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// fail logs a fatal error and hands it to the reporter.
func (c *Comm) fail(err *ElementError) {
	c.logger.Error("communication failure", map[string]any{"error": err.Error()})
	c.reporter.ReportError(err)
}
