package endpoint

import (
	"go.uber.org/atomic"

	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/types"
)

// Sink is the endpoint at the end of the local pipeline. Buffers, events,
// queries and state changes given to it travel to the remote Src.
// Upstream events, upstream queries and bus messages sent back by the
// peer are delivered to the local Pipeline.
type Sink struct {
	*base
	cfg      SinkConfig
	flushing atomic.Bool
}

// NewSink creates a sink. p receives what the peer sends back.
func NewSink(cfg SinkConfig, p Pipeline, opts ...Option) *Sink {
	s := &Sink{cfg: cfg}
	s.base = newBase("sink", cfg.Name, cfg.comm(), p, opts)
	return s
}

// Config returns the sink's configuration with its current descriptors
// and ack time.
func (s *Sink) Config() SinkConfig {
	c, cc := s.cfg, s.comm.Config()
	c.FdIn, c.FdOut, c.AckTime = cc.FdIn, cc.FdOut, cc.AckTime
	return c
}

// Render returns the peer's flow result for b. While a flush is in
// progress it returns FlowFlushing without sending.
func (s *Sink) Render(b *types.Buffer) types.FlowReturn {
	if s.flushing.Load() {
		return types.FlowFlushing
	}
	return s.comm.WriteBuffer(b)
}

// SendEvent forwards a downstream event. Flush-start makes waiting
// buffers return FlowFlushing and refuses new ones until flush-stop.
func (s *Sink) SendEvent(ev *types.Event) bool {
	switch ev.Type {
	case types.EventFlushStart:
		s.flushing.Store(true)
		if n := s.comm.Cancel(ipc.CancelFlushing, false); n > 0 {
			s.logger.Debug("flushing pending requests", map[string]any{"count": n})
		}
	case types.EventFlushStop:
		s.flushing.Store(false)
	}
	return s.comm.WriteEvent(false, ev)
}

// Query forwards a downstream query. On success q holds the answer.
func (s *Sink) Query(q *types.Query) bool {
	return s.comm.WriteQuery(false, q)
}

// ChangeState performs t locally and asks the peer to follow. The reader
// starts before NULL to READY is forwarded and stops after READY to NULL.
func (s *Sink) ChangeState(t types.StateChange) types.StateChangeReturn {
	if t == types.StateChangeNullToReady {
		if err := s.Open(); err != nil {
			s.logger.Error("cannot open", map[string]any{"error": err.Error()})
			return types.StateChangeFailure
		}
	}

	ret := s.comm.WriteStateChange(t)
	s.logger.Debug("state change", map[string]any{"transition": t.String(), "result": ret.String()})

	switch t {
	case types.StateChangeReadyToNull:
		s.Close()
	case types.StateChangePausedToReady:
		s.flushing.Store(false)
	}
	return ret
}

// LostState tells the peer its state is no longer valid.
func (s *Sink) LostState() {
	s.comm.WriteStateLost()
}
