package ipc

import (
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/types"
)

// send writes one frame with a fresh id and, unless mode is AckNone, waits
// for its acknowledgement. Delivery failures are reported to the error
// reporter and turn into the kind's failure value.
func (c *Comm) send(t DataType, payload []byte, kind RequestKind, q *types.Query, mode AckMode) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Warn("write on closed comm", map[string]any{"type": t.String()})
		return kind.FailureValue()
	}

	c.sendID++
	id := c.sendID
	if err := c.writeFrameLocked(t, id, payload); err != nil {
		c.fail(writeError(err))
		c.requests.cancelLocked(CancelFailure, false)
		return kind.FailureValue()
	}
	if mode == AckNone {
		return kind.SuccessValue()
	}

	req, err := c.requests.register(id, kind, q)
	if err != nil {
		c.logger.Error("cannot register request", map[string]any{"id": id, "error": err.Error()})
		return kind.FailureValue()
	}
	return c.requests.wait(req, mode, c.ackTime)
}

// writeFrameLocked encodes and writes a frame. Caller must hold c.mu.
func (c *Comm) writeFrameLocked(t DataType, id uint32, payload []byte) error {
	if c.fdout < 0 {
		return ErrNoDescriptors
	}
	buf := AppendFrame(make([]byte, 0, HeaderSize+len(payload)), t, id, payload)
	if c.logger.Enabled(log.LevelDebug) {
		c.logger.Debug("writing frame", map[string]any{
			"type":   t.String(),
			"id":     id,
			"length": len(payload),
		})
	}
	if err := writeFull(c.fdout, buf); err != nil {
		c.metrics.IncWriteError()
		return err
	}
	c.metrics.RecordSent(t.String(), len(buf))
	if c.tap != nil {
		c.tap.TapFrame(true, Frame{Header: Header{Type: t, ID: id, Length: uint32(len(payload))}, Payload: payload})
	}
	return nil
}

// reply writes a reply frame answering request id. Replies never wait.
func (c *Comm) reply(t DataType, id uint32, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if err := c.writeFrameLocked(t, id, payload); err != nil {
		c.fail(writeError(err))
		c.requests.cancelLocked(CancelFailure, false)
	}
}

// encodable reports whether the peer can parse the string form of s, and
// logs the refusal when it cannot.
func (c *Comm) encodable(t DataType, s *types.Structure) bool {
	if err := s.Validate(); err != nil {
		c.logger.Error("not sending unparsable structure", map[string]any{
			"type":  t.String(),
			"error": err.Error(),
		})
		return false
	}
	return true
}

// WriteBuffer sends a buffer and waits for the peer's flow result.
func (c *Comm) WriteBuffer(b *types.Buffer) types.FlowReturn {
	payload, dropped := EncodeBuffer(b)
	for _, api := range dropped {
		c.logger.Warn("unsupported meta", map[string]any{"api": api})
	}
	c.metrics.AddDroppedMetas(len(dropped))
	mode := AckModeFor(DataTypeBuffer, true, false)
	return types.FlowReturn(int32(c.send(DataTypeBuffer, payload, RequestBuffer, nil, mode)))
}

// WriteEvent sends an event. upstream tells the peer which way it travels.
// Sink-message events carry their embedded message.
func (c *Comm) WriteEvent(upstream bool, ev *types.Event) bool {
	t := EventDataType(ev)
	s := ev.Structure
	if t == DataTypeSinkMessageEvent && ev.Message != nil {
		s = ev.Message.Structure
	}
	if !c.encodable(t, s) {
		return false
	}
	var payload []byte
	if t == DataTypeSinkMessageEvent {
		var err error
		payload, err = EncodeSinkMessageEvent(ev)
		if err != nil {
			c.logger.Error("cannot encode event", map[string]any{"event": ev.Type.String(), "error": err.Error()})
			return false
		}
	} else {
		payload = EncodeEvent(upstream, ev)
	}
	return c.send(t, payload, RequestEvent, nil, EventAckMode(ev)) != 0
}

// WriteQuery sends a query and waits for the answer. On success the fields
// of q are replaced by those of the answer.
func (c *Comm) WriteQuery(upstream bool, q *types.Query) bool {
	if !c.encodable(DataTypeQuery, q.Structure) {
		return false
	}
	return c.send(DataTypeQuery, EncodeQuery(upstream, q), RequestQuery, q, QueryAckMode(q)) != 0
}

// WriteStateChange asks the peer to perform a transition.
func (c *Comm) WriteStateChange(t types.StateChange) types.StateChangeReturn {
	mode := AckModeFor(DataTypeStateChange, false, false)
	return types.StateChangeReturn(c.send(DataTypeStateChange, EncodeStateChange(t), RequestStateChange, nil, mode))
}

// WriteStateLost tells the peer that its state is no longer valid.
func (c *Comm) WriteStateLost() {
	c.send(DataTypeStateLost, nil, RequestMessage, nil, AckModeFor(DataTypeStateLost, false, false))
}

// WriteMessage posts a message on the peer's bus. Error, warning and info
// messages keep their error triple.
func (c *Comm) WriteMessage(m *types.Message) bool {
	t := MessageDataType(m)
	var payload []byte
	if t == DataTypeGErrorMessage {
		payload = EncodeGErrorMessage(m)
	} else {
		if !c.encodable(t, m.Structure) {
			return false
		}
		payload = EncodeMessage(m)
	}
	return c.send(t, payload, RequestMessage, nil, AckModeFor(t, false, false)) != 0
}

// WriteFlowAck answers buffer request id.
func (c *Comm) WriteFlowAck(id uint32, ret types.FlowReturn) {
	c.reply(DataTypeAck, id, EncodeAck(flowResult(ret)))
}

// WriteBooleanAck answers event or message request id.
func (c *Comm) WriteBooleanAck(id uint32, ret bool) {
	c.reply(DataTypeAck, id, EncodeAck(boolResult(ret)))
}

// WriteStateChangeAck answers state-change request id.
func (c *Comm) WriteStateChangeAck(id uint32, ret types.StateChangeReturn) {
	c.reply(DataTypeAck, id, EncodeAck(uint32(ret)))
}

// WriteQueryResult answers query request id. q carries the answered
// fields and may be nil. An answer the peer could not parse is sent as a
// failed query.
func (c *Comm) WriteQueryResult(id uint32, result bool, q *types.Query) {
	if q != nil && !c.encodable(DataTypeQueryResult, q.Structure) {
		result, q = false, types.NewQuery(q.Type, nil)
	}
	c.reply(DataTypeQueryResult, id, EncodeQueryResult(result, q))
}
