// Package pipeline provides the small local pipelines the CLI runs on
// either side of a split pipeline: a Source that drives a sink endpoint,
// a Bus that collects what comes back, and a Counter that terminates the
// remote half.
package pipeline

import (
	"sync"

	"github.com/frostbyte73/core"

	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/types"
)

// Poster posts messages on a bus, usually the remote one.
type Poster interface {
	PostMessage(m *types.Message) bool
}

// CounterStats is a snapshot of what a Counter has seen.
type CounterStats struct {
	Buffers      int64            `json:"buffers"`
	Bytes        int64            `json:"bytes"`
	Events       map[string]int64 `json:"events"`
	Queries      int64            `json:"queries"`
	StateChanges int64            `json:"state_changes"`
	State        string           `json:"state"`
	Position     int64            `json:"position"`
	EOS          bool             `json:"eos"`
	Lost         bool             `json:"lost"`
}

// Counter is a sink that counts what reaches it. It answers position
// queries with the end of the last buffer and duration queries once EOS
// was seen, and posts eos and state-changed messages on its bus.
type Counter struct {
	name   string
	bus    Poster
	logger *log.Logger

	mu       sync.Mutex
	state    types.State
	flushing bool
	eos      bool
	position int64
	stats    CounterStats

	finished core.Fuse
}

// NewCounter creates a counter named name in the NULL state. bus may be
// nil until SetBus is called.
func NewCounter(name string, bus Poster, logger *log.Logger) *Counter {
	if logger == nil {
		logger = log.Nop()
	}
	return &Counter{
		name:   name,
		bus:    bus,
		logger: logger,
		state:  types.StateNull,
		stats:  CounterStats{Events: make(map[string]int64)},
	}
}

// SetBus sets where messages are posted.
func (c *Counter) SetBus(bus Poster) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
}

// Finished is closed when the counter returns to NULL or loses its state.
func (c *Counter) Finished() <-chan struct{} {
	return c.finished.Watch()
}

// PushBuffer counts b.
func (c *Counter) PushBuffer(b *types.Buffer) types.FlowReturn {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.flushing || c.state < types.StatePaused:
		return types.FlowFlushing
	case c.eos:
		return types.FlowEOS
	}

	c.stats.Buffers++
	c.stats.Bytes += int64(b.Size())
	if b.PTS != types.ClockTimeNone {
		end := b.PTS
		if b.Duration != types.ClockTimeNone {
			end += b.Duration
		}
		c.position = int64(end)
	}
	return types.FlowOK
}

// PushEvent tracks flushing and EOS.
func (c *Counter) PushEvent(ev *types.Event) bool {
	c.mu.Lock()
	c.stats.Events[ev.Type.String()]++
	var msg *types.Message
	switch ev.Type {
	case types.EventFlushStart:
		c.flushing = true
	case types.EventFlushStop:
		c.flushing = false
		c.eos = false
	case types.EventStreamStart:
		c.eos = false
	case types.EventEOS:
		c.eos = true
		msg = types.NewEOSMessage(c.name)
	}
	bus := c.bus
	c.mu.Unlock()

	if msg != nil {
		c.logger.Info("end of stream", nil)
		c.post(bus, msg)
	}
	return true
}

// Query answers position, duration and drain queries.
func (c *Counter) Query(q *types.Query) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Queries++

	switch q.Type {
	case types.QueryPosition:
		q.SetPosition(c.position)
		return true
	case types.QueryDuration:
		if !c.eos {
			return false
		}
		q.SetDuration(c.position)
		return true
	case types.QueryDrain:
		return true
	default:
		return false
	}
}

// ChangeState follows t and posts a state-changed message.
func (c *Counter) ChangeState(t types.StateChange) types.StateChangeReturn {
	if !t.IsValid() {
		return types.StateChangeFailure
	}

	c.mu.Lock()
	old := c.state
	c.state = t.Next()
	c.stats.StateChanges++
	if t.Next() <= types.StateReady {
		c.flushing = false
	}
	if t == types.StateChangeReadyToPaused {
		c.eos = false
	}
	bus := c.bus
	c.mu.Unlock()

	c.logger.Debug("state changed", map[string]any{"transition": t.String()})
	c.post(bus, types.NewStateChangedMessage(c.name, old, t.Next(), types.StateVoidPending))
	if t == types.StateChangeReadyToNull {
		c.finished.Break()
	}
	return types.StateChangeSuccess
}

// LostState marks the counter finished.
func (c *Counter) LostState() {
	c.mu.Lock()
	c.stats.Lost = true
	c.mu.Unlock()
	c.logger.Warn("state lost", nil)
	c.finished.Break()
}

// PostMessage logs m. Nothing posts to a counter's own bus remotely.
func (c *Counter) PostMessage(m *types.Message) bool {
	c.logger.Debug("message", map[string]any{"type": m.Type.String(), "source": m.Source})
	return true
}

// Stats returns a snapshot.
func (c *Counter) Stats() CounterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.State = c.state.String()
	s.Position = c.position
	s.EOS = c.eos
	s.Events = make(map[string]int64, len(c.stats.Events))
	for k, v := range c.stats.Events {
		s.Events[k] = v
	}
	return s
}

// post posts m on a bus snapshot taken under c.mu.
func (c *Counter) post(bus Poster, m *types.Message) {
	if bus == nil {
		return
	}
	if !bus.PostMessage(m) {
		c.logger.Warn("cannot post message", map[string]any{"type": m.Type.String()})
	}
}
