// Package endpoint provides the two halves of a split pipeline.
//
// A Sink sits at the end of the local pipeline and forwards buffers,
// events, queries and state changes to the remote process. A Src sits at
// the start of the remote pipeline, replays what the sink sent, and sends
// upstream events, queries and bus messages back. Each owns one ipc.Comm.
package endpoint

import (
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/metrics"
	"github.com/pithecene-io/ipcpipe/types"
)

// Pipeline is the local side an endpoint delivers inbound work to.
//
// Methods may block and may call back into the endpoint, including
// writes that wait for the peer.
type Pipeline interface {
	PushBuffer(b *types.Buffer) types.FlowReturn
	PushEvent(ev *types.Event) bool
	Query(q *types.Query) bool
	ChangeState(t types.StateChange) types.StateChangeReturn
	LostState()
	PostMessage(m *types.Message) bool
}

// Option configures an endpoint.
type Option func(*options)

type options struct {
	logger  *log.Logger
	metrics *metrics.Collector
	tap     ipc.FrameTap
}

// WithLogger sets the logger. The endpoint names it after its config.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics collector shared with the Comm.
func WithMetrics(m *metrics.Collector) Option {
	return func(o *options) { o.metrics = m }
}

// WithTap records every frame sent and received.
func WithTap(t ipc.FrameTap) Option {
	return func(o *options) { o.tap = t }
}

// base is the state shared by Sink and Src.
type base struct {
	kind     string
	name     string
	comm     *ipc.Comm
	pipeline Pipeline
	logger   *log.Logger
	metrics  *metrics.Collector

	// mu guards open and queue across Open, Close and Disconnect.
	mu      sync.Mutex
	open    atomic.Bool
	queue   *queue
	stopped []*queue

	// inflight counts goroutines running out-of-band work and posting
	// errors, so Release can wait for them.
	inflight sync.WaitGroup
}

func newBase(kind, name string, cfg ipc.Config, p Pipeline, opts []Option) *base {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.Nop()
	}
	if name != "" {
		o.logger = o.logger.Named(name)
	}

	b := &base{
		kind:     kind,
		name:     name,
		pipeline: p,
		logger:   o.logger,
		metrics:  o.metrics,
	}
	commOpts := []ipc.Option{
		ipc.WithLogger(o.logger),
		ipc.WithErrorReporter(b),
	}
	if o.metrics != nil {
		commOpts = append(commOpts, ipc.WithMetrics(o.metrics))
	}
	if o.tap != nil {
		commOpts = append(commOpts, ipc.WithTap(o.tap))
	}
	b.comm = ipc.NewComm(cfg, commOpts...)
	return b
}

// Comm returns the communication context.
func (b *base) Comm() *ipc.Comm {
	return b.comm
}

// Name returns the instance name.
func (b *base) Name() string {
	return b.name
}

// IsOpen reports whether the reader has been started by Open.
func (b *base) IsOpen() bool {
	return b.open.Load()
}

// Done returns a channel closed when the current reader exits, or nil if
// the endpoint is not open.
func (b *base) Done() <-chan struct{} {
	return b.comm.ReaderDone()
}

// SetFDs changes the descriptors. A running reader switches to the new
// input descriptor on its next poll.
func (b *base) SetFDs(fdin, fdout int) {
	b.comm.SetFDs(fdin, fdout)
}

// Open starts dispatching inbound work. It corresponds to the NULL to
// READY transition. The descriptors checked are the current ones, so
// SetFDs may come after construction.
func (b *base) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open.Load() {
		return nil
	}
	cfg := b.comm.Config()
	if err := validate(cfg.FdIn, cfg.FdOut, cfg.ReadChunkSize, cfg.AckTime); err != nil {
		return err
	}

	b.queue = newQueue(b.execute, b.discard)
	if err := b.comm.StartReader(b.handle); err != nil {
		b.queue.close()
		b.queue = nil
		return err
	}
	b.open.Store(true)
	b.logger.Info("endpoint opened", map[string]any{"endpoint": b.kind})
	return nil
}

// Close stops the reader, fails every pending request and discards queued
// work. It corresponds to the READY to NULL transition. Work already
// handed to the pipeline may still be running when Close returns. The
// endpoint may be opened again.
func (b *base) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open.Load() {
		return
	}
	b.open.Store(false)
	b.comm.StopReader()
	n := b.comm.Cancel(ipc.CancelFailure, false)
	b.queue.close()
	b.stopped = append(b.stopped, b.queue)
	b.queue = nil
	b.logger.Info("endpoint closed", map[string]any{"cancelled": n})
}

// Release closes the endpoint, frees its Comm and waits for in-flight
// work. Writes made by that work fail at once. It cannot be reopened.
func (b *base) Release() error {
	b.Close()
	err := b.comm.Clear()

	b.mu.Lock()
	stopped := b.stopped
	b.stopped = nil
	b.mu.Unlock()
	for _, q := range stopped {
		q.wait()
	}
	b.inflight.Wait()
	return err
}

// Disconnect drops the current conversation without closing: the reader
// stops, pending requests resolve as flushing, queued work is discarded,
// and a fresh reader starts on the current descriptors.
func (b *base) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open.Load() {
		return nil
	}

	b.comm.StopReader()
	n := b.comm.Cancel(ipc.CancelFlushing, false)
	dropped := b.queue.flush()
	b.queue.resume()

	if err := b.comm.StartReader(b.handle); err != nil {
		b.logger.Error("cannot restart reader", map[string]any{"error": err.Error()})
		return err
	}
	b.metrics.IncReaderRestart()
	b.logger.Info("disconnected", map[string]any{"cancelled": n, "dropped": dropped})
	return nil
}

// ReportError posts a fatal communication error on the local bus. It runs
// with the Comm mutex held, so the pipeline is called on another goroutine.
func (b *base) ReportError(err error) {
	gerr := &types.GError{Domain: types.CoreErrorDomain, Code: 1, Message: err.Error()}
	var ee *ipc.ElementError
	if errors.As(err, &ee) {
		gerr = ee.GError()
	}
	msg := types.NewErrorMessage(b.name, gerr, err.Error())

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.pipeline.PostMessage(msg)
	}()
}

// handle runs on the reader goroutine and must not block on the pipeline.
func (b *base) handle(in *ipc.Inbound) {
	q := b.queue
	switch {
	case in.Kind == ipc.InboundEvent && in.Event.Type == types.EventFlushStart:
		if n := q.flush(); n > 0 {
			b.logger.Debug("flushed queued items", map[string]any{"count": n})
		}
		b.async(in)
	case in.Kind == ipc.InboundEvent && in.Event.Type == types.EventFlushStop:
		q.resume()
		q.push(in)
	case serialized(in):
		q.push(in)
	default:
		b.async(in)
	}
}

func (b *base) async(in *ipc.Inbound) {
	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		b.execute(in)
	}()
}

// serialized reports whether in must run in arrival order relative to
// buffers.
func serialized(in *ipc.Inbound) bool {
	switch in.Kind {
	case ipc.InboundBuffer, ipc.InboundMessage:
		return true
	case ipc.InboundEvent:
		return in.Event.Type.IsSerialized()
	case ipc.InboundQuery:
		return in.Query.Type.IsSerialized()
	default:
		return false
	}
}

// execute hands in to the pipeline and answers the peer if it waits.
func (b *base) execute(in *ipc.Inbound) {
	reply := in.AckMode() != ipc.AckNone

	switch in.Kind {
	case ipc.InboundBuffer:
		ret := b.pipeline.PushBuffer(in.Buffer)
		if reply {
			b.comm.WriteFlowAck(in.ID, ret)
		}
	case ipc.InboundEvent:
		ok := b.pipeline.PushEvent(in.Event)
		if reply {
			b.comm.WriteBooleanAck(in.ID, ok)
		}
	case ipc.InboundQuery:
		ok := b.pipeline.Query(in.Query)
		if reply {
			b.comm.WriteQueryResult(in.ID, ok, in.Query)
		}
	case ipc.InboundStateChange:
		ret := b.pipeline.ChangeState(in.StateChange)
		if reply {
			b.comm.WriteStateChangeAck(in.ID, ret)
		}
	case ipc.InboundStateLost:
		b.pipeline.LostState()
	case ipc.InboundMessage:
		ok := b.pipeline.PostMessage(in.Message)
		if reply {
			b.comm.WriteBooleanAck(in.ID, ok)
		}
	}
}

// discard answers in with the flushing result without running it.
func (b *base) discard(in *ipc.Inbound) {
	if in.AckMode() == ipc.AckNone {
		return
	}
	switch in.Kind {
	case ipc.InboundBuffer:
		b.comm.WriteFlowAck(in.ID, types.FlowFlushing)
	case ipc.InboundEvent, ipc.InboundMessage:
		b.comm.WriteBooleanAck(in.ID, false)
	case ipc.InboundQuery:
		b.comm.WriteQueryResult(in.ID, false, nil)
	case ipc.InboundStateChange:
		b.comm.WriteStateChangeAck(in.ID, types.StateChangeFailure)
	}
}
