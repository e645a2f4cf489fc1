package endpoint

import (
	"github.com/pithecene-io/ipcpipe/types"
)

// Src is the endpoint at the start of the remote pipeline. It replays
// what the Sink sends into the local Pipeline: buffers, serialized events
// and serialized queries in arrival order, everything else at once. Its
// own writes travel upstream to the sink.
//
// A Src must be opened by its owner before the sink sends anything; it
// follows the state changes it receives through the Pipeline but stays
// open until Close or Release.
type Src struct {
	*base
	cfg SrcConfig
}

// NewSrc creates a src. p receives what the sink sends.
func NewSrc(cfg SrcConfig, p Pipeline, opts ...Option) *Src {
	s := &Src{cfg: cfg}
	s.base = newBase("src", cfg.Name, cfg.comm(), p, opts)
	return s
}

// Config returns the src's configuration with its current descriptors
// and ack time.
func (s *Src) Config() SrcConfig {
	c, cc := s.cfg, s.comm.Config()
	c.FdIn, c.FdOut, c.AckTime = cc.FdIn, cc.FdOut, cc.AckTime
	return c
}

// SendEvent sends an upstream event to the sink.
func (s *Src) SendEvent(ev *types.Event) bool {
	return s.comm.WriteEvent(true, ev)
}

// Query sends an upstream query to the sink. On success q holds the
// answer.
func (s *Src) Query(q *types.Query) bool {
	return s.comm.WriteQuery(true, q)
}

// PostMessage posts m on the sink's bus.
func (s *Src) PostMessage(m *types.Message) bool {
	return s.comm.WriteMessage(m)
}

// Pending returns the number of queued items not yet run.
func (s *Src) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}
