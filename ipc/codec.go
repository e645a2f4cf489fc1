package ipc

import (
	"encoding/binary"
	"errors"

	"github.com/pithecene-io/ipcpipe/types"
)

// GError message severities as carried on the wire.
const (
	gerrorInfo    uint8 = 0
	gerrorWarning uint8 = 1
	gerrorError   uint8 = 2
)

// errNoSinkMessage is returned when a sink-message event carries no message.
var errNoSinkMessage = errors.New("sink-message event without message")

// payloadWriter appends little-endian fields to a byte slice.
type payloadWriter struct {
	buf []byte
}

func (w *payloadWriter) u8(v uint8) { w.buf = append(w.buf, v) }

func (w *payloadWriter) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *payloadWriter) u64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *payloadWriter) bool8(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

// cstr writes s followed by a NUL.
func (w *payloadWriter) cstr(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// sizedCstr writes the length of s plus its NUL, then s and the NUL.
func (w *payloadWriter) sizedCstr(s string) {
	w.u32(uint32(len(s) + 1))
	w.cstr(s)
}

// optionalCstr is sizedCstr, except that an empty string is written as a
// zero length and no bytes.
func (w *payloadWriter) optionalCstr(s string) {
	if s == "" {
		w.u32(0)
		return
	}
	w.sizedCstr(s)
}

func structureString(s *types.Structure) string {
	if s == nil {
		return ""
	}
	return s.String()
}

// AppendFrame appends a complete frame (header and payload) to dst.
func AppendFrame(dst []byte, t DataType, id uint32, payload []byte) []byte {
	dst = AppendHeader(dst, Header{Type: t, ID: id, Length: uint32(len(payload))})
	return append(dst, payload...)
}

// EncodeAck encodes an ACK payload. The meaning of ret depends on the kind
// of request being answered.
func EncodeAck(ret uint32) []byte {
	w := payloadWriter{buf: make([]byte, 0, 4)}
	w.u32(ret)
	return w.buf
}

// EncodeQueryResult encodes the answer to a query. q may be nil when the
// query could not be answered.
func EncodeQueryResult(result bool, q *types.Query) []byte {
	var w payloadWriter
	w.bool8(result)
	var qt types.QueryType
	var s *types.Structure
	if q != nil {
		qt = q.Type
		s = q.Structure
	}
	w.u32(uint32(qt))
	w.cstr(structureString(s))
	return w.buf
}

// EncodeBuffer encodes a buffer with its timing fields, data and metadata.
// Metadata whose API is not in types.SupportedMetaAPIs, or whose info
// structure would not parse back, is left out; the API names of the
// omitted entries are returned so the caller can report them.
func EncodeBuffer(b *types.Buffer) (payload []byte, dropped []string) {
	w := payloadWriter{buf: make([]byte, 0, 6*8+4+len(b.Data)+4)}
	w.u64(b.PTS)
	w.u64(b.DTS)
	w.u64(b.Duration)
	w.u64(b.Offset)
	w.u64(b.OffsetEnd)
	w.u64(uint64(b.Flags))
	w.u32(uint32(len(b.Data)))
	w.buf = append(w.buf, b.Data...)

	var metas []*types.Meta
	for _, m := range b.Metas {
		if m == nil {
			continue
		}
		if !types.SupportedMetaAPIs[m.API] || m.Info.Validate() != nil {
			dropped = append(dropped, m.API)
			continue
		}
		metas = append(metas, m)
	}
	w.u32(uint32(len(metas)))
	for _, m := range metas {
		info := structureString(m.Info)
		// Entry size counts itself, flags, the API name with its length,
		// the meta size and the info string with its length.
		entry := 4 + 4 + 4 + len(m.API) + 1 + 8 + 4
		if info != "" {
			entry += len(info) + 1
		}
		w.u32(uint32(entry))
		w.u32(m.Flags)
		w.sizedCstr(m.API)
		w.u64(m.Size)
		w.optionalCstr(info)
	}
	return w.buf, dropped
}

// EncodeEvent encodes a generic event. Sink-message events need
// EncodeSinkMessageEvent instead.
func EncodeEvent(upstream bool, ev *types.Event) []byte {
	s := ev.Structure
	if ev.Type == types.EventStreamStart && s != nil {
		// The stream object is local to the sending process.
		s = s.Copy()
		s.Remove("stream")
	}
	var w payloadWriter
	w.u32(uint32(ev.Type))
	w.u32(ev.Seqnum)
	w.bool8(upstream)
	w.cstr(structureString(s))
	return w.buf
}

// EncodeSinkMessageEvent encodes a sink-message event together with the
// message it carries.
func EncodeSinkMessageEvent(ev *types.Event) ([]byte, error) {
	if ev.Message == nil {
		return nil, errNoSinkMessage
	}
	var w payloadWriter
	w.u32(uint32(ev.Message.Type))
	w.u32(ev.Seqnum)
	w.u32(ev.Message.Seqnum)
	w.sizedCstr(ev.Name())
	w.cstr(structureString(ev.Message.Structure))
	return w.buf, nil
}

// EncodeQuery encodes a query.
func EncodeQuery(upstream bool, q *types.Query) []byte {
	var w payloadWriter
	w.u32(uint32(q.Type))
	w.bool8(upstream)
	w.cstr(structureString(q.Structure))
	return w.buf
}

// EncodeStateChange encodes a state transition.
func EncodeStateChange(t types.StateChange) []byte {
	var w payloadWriter
	w.u32(uint32(t))
	return w.buf
}

// EncodeMessage encodes a bus message carrying a plain structure.
func EncodeMessage(m *types.Message) []byte {
	var w payloadWriter
	w.u32(uint32(m.Type))
	w.cstr(structureString(m.Structure))
	return w.buf
}

// EncodeGErrorMessage encodes an error, warning or info message. The error
// triple does not survive the generic structure form, so it is written
// field by field.
func EncodeGErrorMessage(m *types.Message) []byte {
	severity := gerrorInfo
	switch m.Type {
	case types.MessageError:
		severity = gerrorError
	case types.MessageWarning:
		severity = gerrorWarning
	}
	gerr := m.Err
	if gerr == nil {
		gerr = &types.GError{Domain: types.CoreErrorDomain}
	}

	var w payloadWriter
	w.u8(severity)
	w.sizedCstr(gerr.Domain)
	w.u32(uint32(gerr.Code))
	w.optionalCstr(gerr.Message)
	w.optionalCstr(m.Debug)
	return w.buf
}
