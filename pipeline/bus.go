package pipeline

import (
	"sync"

	"github.com/frostbyte73/core"

	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/types"
)

// Bus is the pipeline upstream of a sink endpoint. It collects messages
// and upstream events sent back by the remote half and answers upstream
// queries the way a live-less source would.
type Bus struct {
	logger *log.Logger

	mu       sync.Mutex
	messages []*types.Message
	events   []*types.Event
	errors   []*types.GError

	eos    core.Fuse
	failed core.Fuse
}

// NewBus creates an empty bus.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Nop()
	}
	return &Bus{logger: logger}
}

// EOS is closed when an eos message arrives.
func (b *Bus) EOS() <-chan struct{} {
	return b.eos.Watch()
}

// Failed is closed when an error message arrives.
func (b *Bus) Failed() <-chan struct{} {
	return b.failed.Watch()
}

// PostMessage records m.
func (b *Bus) PostMessage(m *types.Message) bool {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	if m.Type == types.MessageError && m.Err != nil {
		b.errors = append(b.errors, m.Err)
	}
	b.mu.Unlock()

	switch m.Type {
	case types.MessageEOS:
		b.logger.Info("eos message", map[string]any{"source": m.Source})
		b.eos.Break()
	case types.MessageError:
		fields := map[string]any{"source": m.Source}
		if m.Err != nil {
			fields["error"] = m.Err.Error()
		}
		b.logger.Error("error message", fields)
		b.failed.Break()
	case types.MessageWarning:
		b.logger.Warn("warning message", map[string]any{"source": m.Source})
	default:
		b.logger.Debug("message", map[string]any{"type": m.Type.String(), "source": m.Source})
	}
	return true
}

// PushEvent records an upstream event.
func (b *Bus) PushEvent(ev *types.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return true
}

// Query answers latency and scheduling queries.
func (b *Bus) Query(q *types.Query) bool {
	switch q.Type {
	case types.QueryLatency, types.QueryScheduling:
		return true
	default:
		return false
	}
}

// PushBuffer refuses buffers: nothing flows upstream.
func (b *Bus) PushBuffer(*types.Buffer) types.FlowReturn {
	return types.FlowNotSupported
}

// ChangeState refuses transitions requested by the remote half.
func (b *Bus) ChangeState(types.StateChange) types.StateChangeReturn {
	return types.StateChangeFailure
}

// LostState logs the request.
func (b *Bus) LostState() {
	b.logger.Warn("remote reported lost state", nil)
}

// Messages returns the messages received so far.
func (b *Bus) Messages() []*types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Message(nil), b.messages...)
}

// Events returns the upstream events received so far.
func (b *Bus) Events() []*types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Event(nil), b.events...)
}

// Errors returns the error triples posted so far.
func (b *Bus) Errors() []*types.GError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.GError(nil), b.errors...)
}
