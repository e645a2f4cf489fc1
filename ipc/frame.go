// Package ipc implements the pipeline communication layer: a length-prefixed
// binary framing protocol over a pair of file descriptors, correlation of
// requests with their acknowledgements, and a reader goroutine that turns
// inbound frames into typed work items.
//
// Frame layout (integers little-endian):
//
//	[1 byte type][4 bytes id][4 bytes payload length][payload]
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Frame size constants.
const (
	// HeaderSize is the size of the type tag, id and length prefix.
	HeaderSize = 1 + 4 + 4
	// MaxPayloadSize bounds a single payload (128 MiB). A larger length
	// prefix means the stream is corrupt.
	MaxPayloadSize = 128 * 1024 * 1024
)

// DataType is the frame type tag.
type DataType uint8

// Frame types.
const (
	DataTypeAck DataType = iota + 1
	DataTypeQueryResult
	DataTypeBuffer
	DataTypeEvent
	DataTypeSinkMessageEvent
	DataTypeQuery
	DataTypeStateChange
	DataTypeStateLost
	DataTypeMessage
	DataTypeGErrorMessage
)

var dataTypeNames = map[DataType]string{
	DataTypeAck:              "ACK",
	DataTypeQueryResult:      "QUERY_RESULT",
	DataTypeBuffer:           "BUFFER",
	DataTypeEvent:            "EVENT",
	DataTypeSinkMessageEvent: "SINK_MESSAGE_EVENT",
	DataTypeQuery:            "QUERY",
	DataTypeStateChange:      "STATE_CHANGE",
	DataTypeStateLost:        "STATE_LOST",
	DataTypeMessage:          "MESSAGE",
	DataTypeGErrorMessage:    "GERROR_MESSAGE",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether t is a known frame type.
func (t DataType) Valid() bool {
	_, ok := dataTypeNames[t]
	return ok
}

// IsReply reports whether frames of this type answer a pending request
// instead of carrying new work.
func (t DataType) IsReply() bool {
	return t == DataTypeAck || t == DataTypeQueryResult
}

// Header is the fixed part of every frame.
type Header struct {
	Type   DataType
	ID     uint32
	Length uint32
}

// AppendHeader appends the encoded header to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst, byte(h.Type))
	dst = binary.LittleEndian.AppendUint32(dst, h.ID)
	return binary.LittleEndian.AppendUint32(dst, h.Length)
}

// ParseHeader decodes a header from the first HeaderSize bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("header needs %d bytes, have %d", HeaderSize, len(b)),
		}
	}
	h := Header{
		Type:   DataType(b[0]),
		ID:     binary.LittleEndian.Uint32(b[1:5]),
		Length: binary.LittleEndian.Uint32(b[5:9]),
	}
	if !h.Type.Valid() {
		return h, &FrameError{
			Kind: FrameErrorDesync,
			Msg:  fmt.Sprintf("socket out of sync: unknown frame type %d", b[0]),
		}
	}
	if h.Length > MaxPayloadSize {
		return h, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", h.Length, MaxPayloadSize),
		}
	}
	return h, nil
}

// Frame is one complete unit of wire traffic.
type Frame struct {
	Header
	Payload []byte
}

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates not enough bytes are buffered yet.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorDesync indicates an unknown type tag.
	FrameErrorDesync
	// FrameErrorTooLarge indicates a payload length above MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a malformed payload.
	FrameErrorDecode
	// FrameErrorTruncated indicates the stream ended inside a frame.
	FrameErrorTruncated
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorDesync:
		return "desync"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	case FrameErrorTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Type DataType
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal returns true if the error breaks the stream. Partial data is
// only a reason to keep reading.
func (e *FrameError) IsFatal() bool {
	return e.Kind != FrameErrorPartial
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

func decodeError(t DataType, msg string, err error) *FrameError {
	return &FrameError{Kind: FrameErrorDecode, Type: t, Msg: msg, Err: err}
}
