package ipc

import (
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/types"
)

// InboundKind discriminates the work items the reader delivers.
type InboundKind int

// Inbound kinds.
const (
	InboundBuffer InboundKind = iota + 1
	InboundEvent
	InboundQuery
	InboundStateChange
	InboundStateLost
	InboundMessage
)

func (k InboundKind) String() string {
	switch k {
	case InboundBuffer:
		return "buffer"
	case InboundEvent:
		return "event"
	case InboundQuery:
		return "query"
	case InboundStateChange:
		return "state-change"
	case InboundStateLost:
		return "state-lost"
	case InboundMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Inbound is one unit of work received from the peer. Exactly the field
// matching Kind is set. ID is the sender's request id, to be passed to the
// matching reply writer.
type Inbound struct {
	Kind        InboundKind
	ID          uint32
	Upstream    bool
	Buffer      *types.Buffer
	Event       *types.Event
	Query       *types.Query
	StateChange types.StateChange
	Message     *types.Message
}

// AckMode is the wait mode the sender applied to this item. The receiver
// only needs to reply when it is not AckNone.
func (in *Inbound) AckMode() AckMode {
	switch in.Kind {
	case InboundBuffer:
		return AckModeFor(DataTypeBuffer, true, false)
	case InboundEvent:
		return EventAckMode(in.Event)
	case InboundQuery:
		return QueryAckMode(in.Query)
	case InboundStateChange:
		return AckModeFor(DataTypeStateChange, false, false)
	case InboundStateLost:
		return AckModeFor(DataTypeStateLost, false, false)
	case InboundMessage:
		return AckModeFor(MessageDataType(in.Message), false, false)
	default:
		return AckNone
	}
}

// Handler receives inbound work on the reader goroutine. It must not wait
// for acknowledgements of its own writes, since only the reader can
// deliver them; long-running work belongs on another goroutine.
type Handler func(in *Inbound)

// readLoop drains fdin until flushing is requested or a fatal error
// occurs. The descriptor is re-read on every iteration so SetFDs takes
// effect without a restart.
func (c *Comm) readLoop(r *reader, h Handler) {
	defer r.done.Break()

	parser := NewFrameParser()
	chunk := make([]byte, c.chunkSize)
	watching := -1

	for !c.flushing.Load() {
		c.mu.Lock()
		fd := c.fdin
		c.mu.Unlock()
		if fd != watching {
			if watching >= 0 {
				c.logger.Debug("stop watching fd", map[string]any{"fd": watching})
			}
			if fd >= 0 {
				c.logger.Debug("start watching fd", map[string]any{"fd": fd})
			}
			watching = fd
		}

		readable, err := r.poller.wait(fd, pollInterval)
		if err != nil {
			c.readFailed(err)
			return
		}
		if !readable || c.flushing.Load() {
			continue
		}

		n, err := readFD(fd, chunk)
		if err != nil {
			c.readFailed(err)
			return
		}
		if n == 0 {
			continue
		}
		parser.Feed(chunk[:n])

		for {
			f, ok, err := parser.Next()
			if err != nil {
				c.protocolFailed(err)
				return
			}
			if !ok {
				break
			}
			if err := c.dispatch(f, h); err != nil {
				c.protocolFailed(err)
				return
			}
		}
	}
}

func (c *Comm) readFailed(err error) {
	c.metrics.IncReadError()
	c.fail(readError(err))
	c.requests.CancelAll(CancelFailure, false)
}

func (c *Comm) protocolFailed(err error) {
	c.metrics.IncDecodeError()
	c.fail(streamDecodeError(err))
	c.requests.CancelAll(CancelFailure, false)
}

// dispatch routes a complete frame: replies resolve pending requests,
// everything else goes to h. A returned error is fatal.
func (c *Comm) dispatch(f Frame, h Handler) error {
	c.metrics.RecordReceived(f.Type.String(), HeaderSize+len(f.Payload))
	if c.tap != nil {
		c.tap.TapFrame(false, f)
	}
	if c.logger.Enabled(log.LevelDebug) {
		c.logger.Debug("read frame", map[string]any{
			"type":   f.Type.String(),
			"id":     f.ID,
			"length": f.Length,
		})
	}

	switch f.Type {
	case DataTypeAck:
		ret, err := DecodeAck(f.Payload)
		if err != nil {
			return err
		}
		c.requests.Resolve(f.ID, ret, nil)
		return nil
	case DataTypeQueryResult:
		result, q, err := DecodeQueryResult(f.Payload)
		if err != nil {
			return err
		}
		c.requests.Resolve(f.ID, boolResult(result), q)
		return nil
	}

	in, err := c.decodeInbound(f)
	if err != nil {
		return err
	}
	if h != nil {
		h(in)
	}
	return nil
}

func (c *Comm) decodeInbound(f Frame) (*Inbound, error) {
	in := &Inbound{ID: f.ID}
	var err error
	switch f.Type {
	case DataTypeBuffer:
		var dropped []string
		in.Kind = InboundBuffer
		in.Buffer, dropped, err = DecodeBuffer(f.Payload)
		for _, api := range dropped {
			c.logger.Warn("unsupported meta", map[string]any{"api": api, "id": f.ID})
		}
		c.metrics.AddDroppedMetas(len(dropped))
	case DataTypeEvent:
		in.Kind = InboundEvent
		in.Event, in.Upstream, err = DecodeEvent(f.Payload)
	case DataTypeSinkMessageEvent:
		in.Kind = InboundEvent
		in.Event, err = DecodeSinkMessageEvent(f.Payload)
	case DataTypeQuery:
		in.Kind = InboundQuery
		in.Query, in.Upstream, err = DecodeQuery(f.Payload)
	case DataTypeStateChange:
		in.Kind = InboundStateChange
		in.StateChange, err = DecodeStateChange(f.Payload)
	case DataTypeStateLost:
		in.Kind = InboundStateLost
		err = DecodeStateLost(f.Payload)
	case DataTypeMessage:
		in.Kind = InboundMessage
		in.Message, err = DecodeMessage(f.Payload)
	case DataTypeGErrorMessage:
		in.Kind = InboundMessage
		in.Message, err = DecodeGErrorMessage(f.Payload)
	default:
		return nil, &FrameError{Kind: FrameErrorDesync, Type: f.Type, Msg: "unexpected frame type " + f.Type.String()}
	}
	if err != nil {
		return nil, err
	}
	return in, nil
}
