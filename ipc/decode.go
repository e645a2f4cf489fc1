package ipc

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/pithecene-io/ipcpipe/types"
)

// payloadReader reads little-endian fields from a payload. The first
// failure sticks: later reads return zero values and err keeps the
// original cause.
type payloadReader struct {
	t   DataType
	b   []byte
	off int
	err error
}

func newPayloadReader(t DataType, b []byte) *payloadReader {
	return &payloadReader{t: t, b: b}
}

func (r *payloadReader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = decodeError(r.t, fmt.Sprintf("%s: "+format, append([]any{r.t}, args...)...), nil)
	}
}

func (r *payloadReader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.b)-r.off < n {
		r.fail("truncated %s: need %d bytes, have %d", what, n, len(r.b)-r.off)
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *payloadReader) u8(what string) uint8 {
	if b := r.take(1, what); b != nil {
		return b[0]
	}
	return 0
}

func (r *payloadReader) u32(what string) uint32 {
	if b := r.take(4, what); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *payloadReader) u64(what string) uint64 {
	if b := r.take(8, what); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// cstr reads a NUL-terminated string that runs to the end of the payload.
func (r *payloadReader) cstr(what string) string {
	rest := r.take(len(r.b)-r.off, what)
	if r.err != nil {
		return ""
	}
	if len(rest) == 0 || rest[len(rest)-1] != 0 {
		r.fail("%s is not NUL-terminated", what)
		return ""
	}
	return string(rest[:len(rest)-1])
}

// sizedCstr reads a length (including the NUL) followed by the string. A
// zero length yields "" when optional is set and an error otherwise.
func (r *payloadReader) sizedCstr(what string, optional bool) string {
	n := r.u32(what + " length")
	if r.err != nil {
		return ""
	}
	if n == 0 {
		if !optional {
			r.fail("empty %s", what)
		}
		return ""
	}
	b := r.take(int(n), what)
	if r.err != nil {
		return ""
	}
	if b[len(b)-1] != 0 {
		r.fail("%s is not NUL-terminated", what)
		return ""
	}
	if i := bytes.IndexByte(b, 0); i != len(b)-1 {
		r.fail("%s has embedded NUL", what)
		return ""
	}
	return string(b[:len(b)-1])
}

// structure parses a structure string; "" means no structure.
func (r *payloadReader) structure(str string) *types.Structure {
	if r.err != nil || str == "" {
		return nil
	}
	s, err := types.ParseStructure(str)
	if err != nil && r.err == nil {
		r.err = decodeError(r.t, fmt.Sprintf("%s: bad structure", r.t), err)
	}
	return s
}

// done reports a failure if payload bytes were left over.
func (r *payloadReader) done() error {
	if r.err == nil && r.off != len(r.b) {
		r.fail("%d trailing bytes", len(r.b)-r.off)
	}
	return r.err
}

// DecodeAck decodes an ACK payload.
func DecodeAck(p []byte) (uint32, error) {
	r := newPayloadReader(DataTypeAck, p)
	ret := r.u32("result")
	return ret, r.done()
}

// DecodeQueryResult decodes the answer to a query. An answer whose
// structure is missing its terminator or cannot be parsed is reported as an
// unsuccessful query, not as an error; only a payload too short to hold the
// result and query type fails.
func DecodeQueryResult(p []byte) (bool, *types.Query, error) {
	r := newPayloadReader(DataTypeQueryResult, p)
	result := r.u8("result") != 0
	qt := types.QueryType(r.u32("query type"))
	if r.err != nil {
		return false, nil, r.err
	}
	rest := p[r.off:]
	if len(rest) == 0 {
		return result, nil, nil
	}
	if rest[len(rest)-1] != 0 {
		return false, nil, nil
	}
	str := string(rest[:len(rest)-1])
	if str == "" {
		return result, types.NewQuery(qt, nil), nil
	}
	s, err := types.ParseStructure(str)
	if err != nil {
		return false, nil, nil
	}
	return result, types.NewQuery(qt, s), nil
}

// DecodeBuffer decodes a buffer payload. Metadata entries of unsupported
// APIs are skipped; their names are returned.
func DecodeBuffer(p []byte) (*types.Buffer, []string, error) {
	r := newPayloadReader(DataTypeBuffer, p)
	b := &types.Buffer{}
	b.PTS = r.u64("pts")
	b.DTS = r.u64("dts")
	b.Duration = r.u64("duration")
	b.Offset = r.u64("offset")
	b.OffsetEnd = r.u64("offset end")
	b.Flags = types.BufferFlags(r.u64("flags"))
	n := r.u32("data size")
	if data := r.take(int(n), "data"); data != nil {
		b.Data = append([]byte(nil), data...)
	}

	var dropped []string
	count := r.u32("meta count")
	for i := uint32(0); i < count && r.err == nil; i++ {
		size := r.u32("meta entry size")
		if r.err != nil {
			break
		}
		if size < 4 {
			r.fail("meta entry %d: size %d", i, size)
			break
		}
		entry := r.take(int(size)-4, "meta entry")
		if r.err != nil {
			break
		}
		m, err := decodeMeta(entry)
		if err != nil {
			r.fail("meta entry %d: %v", i, err)
			break
		}
		if !types.SupportedMetaAPIs[m.API] {
			dropped = append(dropped, m.API)
			continue
		}
		b.AddMeta(m)
	}
	if err := r.done(); err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func decodeMeta(entry []byte) (*types.Meta, error) {
	r := newPayloadReader(DataTypeBuffer, entry)
	m := &types.Meta{}
	m.Flags = r.u32("meta flags")
	m.API = r.sizedCstr("meta api", false)
	m.Size = r.u64("meta size")
	m.Info = r.structure(r.sizedCstr("meta info", true))
	return m, r.done()
}

// DecodeEvent decodes a generic event and the direction it travelled in.
func DecodeEvent(p []byte) (*types.Event, bool, error) {
	r := newPayloadReader(DataTypeEvent, p)
	ev := &types.Event{Timestamp: types.ClockTimeNone}
	ev.Type = types.EventType(r.u32("event type"))
	ev.Seqnum = r.u32("seqnum")
	upstream := r.u8("direction") != 0
	ev.Structure = r.structure(r.cstr("structure"))
	if err := r.done(); err != nil {
		return nil, false, err
	}
	return ev, upstream, nil
}

// DecodeSinkMessageEvent decodes a sink-message event and its message.
func DecodeSinkMessageEvent(p []byte) (*types.Event, error) {
	r := newPayloadReader(DataTypeSinkMessageEvent, p)
	msg := &types.Message{}
	msg.Type = types.MessageType(r.u32("message type"))
	eseqnum := r.u32("event seqnum")
	msg.Seqnum = r.u32("message seqnum")
	name := r.sizedCstr("name", false)
	msg.Structure = r.structure(r.cstr("structure"))
	if err := r.done(); err != nil {
		return nil, err
	}
	ev := types.NewSinkMessageEvent(name, msg)
	ev.Seqnum = eseqnum
	return ev, nil
}

// DecodeQuery decodes a query and the direction it travelled in.
func DecodeQuery(p []byte) (*types.Query, bool, error) {
	r := newPayloadReader(DataTypeQuery, p)
	qt := types.QueryType(r.u32("query type"))
	upstream := r.u8("direction") != 0
	s := r.structure(r.cstr("structure"))
	if err := r.done(); err != nil {
		return nil, false, err
	}
	return types.NewQuery(qt, s), upstream, nil
}

// DecodeStateChange decodes a transition. Only single steps and same-state
// transitions are accepted.
func DecodeStateChange(p []byte) (types.StateChange, error) {
	r := newPayloadReader(DataTypeStateChange, p)
	t := types.StateChange(r.u32("transition"))
	if err := r.done(); err != nil {
		return 0, err
	}
	if !t.IsValid() {
		return 0, decodeError(DataTypeStateChange, fmt.Sprintf("invalid state change 0x%x", uint32(t)), nil)
	}
	return t, nil
}

// DecodeStateLost checks that a state-lost frame has no payload.
func DecodeStateLost(p []byte) error {
	return newPayloadReader(DataTypeStateLost, p).done()
}

// DecodeMessage decodes a bus message carrying a plain structure.
func DecodeMessage(p []byte) (*types.Message, error) {
	r := newPayloadReader(DataTypeMessage, p)
	msg := &types.Message{}
	msg.Type = types.MessageType(r.u32("message type"))
	msg.Structure = r.structure(r.cstr("structure"))
	if err := r.done(); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeGErrorMessage decodes an error, warning or info message.
func DecodeGErrorMessage(p []byte) (*types.Message, error) {
	r := newPayloadReader(DataTypeGErrorMessage, p)
	severity := r.u8("severity")
	gerr := &types.GError{}
	gerr.Domain = r.sizedCstr("domain", false)
	gerr.Code = int32(r.u32("code"))
	gerr.Message = r.sizedCstr("message", true)
	debug := r.sizedCstr("debug message", true)
	if err := r.done(); err != nil {
		return nil, err
	}

	msg := &types.Message{Err: gerr, Debug: debug}
	switch severity {
	case gerrorError:
		msg.Type = types.MessageError
	case gerrorWarning:
		msg.Type = types.MessageWarning
	default:
		msg.Type = types.MessageInfo
	}
	return msg, nil
}
