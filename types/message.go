//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
)

// MessageType is a bus message type. Each type is a distinct bit.
type MessageType uint32

// Message types.
const (
	MessageUnknown         MessageType = 0
	MessageEOS             MessageType = 1 << 0
	MessageError           MessageType = 1 << 1
	MessageWarning         MessageType = 1 << 2
	MessageInfo            MessageType = 1 << 3
	MessageTag             MessageType = 1 << 4
	MessageBuffering       MessageType = 1 << 5
	MessageStateChanged    MessageType = 1 << 6
	MessageStateDirty      MessageType = 1 << 7
	MessageStepDone        MessageType = 1 << 8
	MessageClockProvide    MessageType = 1 << 9
	MessageClockLost       MessageType = 1 << 10
	MessageNewClock        MessageType = 1 << 11
	MessageStructureChange MessageType = 1 << 12
	MessageStreamStatus    MessageType = 1 << 13
	MessageApplication     MessageType = 1 << 14
	MessageElement         MessageType = 1 << 15
	MessageSegmentStart    MessageType = 1 << 16
	MessageSegmentDone     MessageType = 1 << 17
	MessageDurationChanged MessageType = 1 << 18
	MessageLatency         MessageType = 1 << 19
	MessageAsyncStart      MessageType = 1 << 20
	MessageAsyncDone       MessageType = 1 << 21
	MessageRequestState    MessageType = 1 << 22
	MessageStepStart       MessageType = 1 << 23
	MessageQOS             MessageType = 1 << 24
	MessageProgress        MessageType = 1 << 25
	MessageTOC             MessageType = 1 << 26
	MessageResetTime       MessageType = 1 << 27
	MessageStreamStart     MessageType = 1 << 28
	MessageNeedContext     MessageType = 1 << 29
	MessageHaveContext     MessageType = 1 << 30
)

var messageNames = map[MessageType]string{
	MessageUnknown:         "unknown",
	MessageEOS:             "eos",
	MessageError:           "error",
	MessageWarning:         "warning",
	MessageInfo:            "info",
	MessageTag:             "tag",
	MessageBuffering:       "buffering",
	MessageStateChanged:    "state-changed",
	MessageStateDirty:      "state-dirty",
	MessageStepDone:        "step-done",
	MessageClockProvide:    "clock-provide",
	MessageClockLost:       "clock-lost",
	MessageNewClock:        "new-clock",
	MessageStructureChange: "structure-change",
	MessageStreamStatus:    "stream-status",
	MessageApplication:     "application",
	MessageElement:         "element",
	MessageSegmentStart:    "segment-start",
	MessageSegmentDone:     "segment-done",
	MessageDurationChanged: "duration-changed",
	MessageLatency:         "latency",
	MessageAsyncStart:      "async-start",
	MessageAsyncDone:       "async-done",
	MessageRequestState:    "request-state",
	MessageStepStart:       "step-start",
	MessageQOS:             "qos",
	MessageProgress:        "progress",
	MessageTOC:             "toc",
	MessageResetTime:       "reset-time",
	MessageStreamStart:     "stream-start",
	MessageNeedContext:     "need-context",
	MessageHaveContext:     "have-context",
}

func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("message-0x%x", uint32(t))
}

// GError domains used by the pipeline runtime.
const (
	CoreErrorDomain     = "gst-core-error-quark"
	LibraryErrorDomain  = "gst-library-error-quark"
	ResourceErrorDomain = "gst-resource-error-quark"
	StreamErrorDomain   = "gst-stream-error-quark"
)

// Resource error codes.
const (
	ResourceErrorFailed int32 = 1
	ResourceErrorRead   int32 = 9
	ResourceErrorWrite  int32 = 10
)

// Stream error codes.
const (
	StreamErrorFailed int32 = 1
	StreamErrorDecode int32 = 7
)

// GError is a domain/code/message error triple.
type GError struct {
	Domain  string
	Code    int32
	Message string
}

func (e *GError) Error() string {
	return fmt.Sprintf("%s (%s:%d)", e.Message, strings.TrimSuffix(e.Domain, "-quark"), e.Code)
}

// Message is posted on a pipeline bus.
//
// Error, warning and info messages carry Err and Debug; other types carry
// their payload in Structure.
type Message struct {
	Type      MessageType
	Seqnum    uint32
	Source    string
	Structure *Structure
	Err       *GError
	Debug     string
}

// NewMessage returns a message of type t with a fresh sequence number.
func NewMessage(t MessageType, source string, s *Structure) *Message {
	return &Message{Type: t, Seqnum: NextSeqnum(), Source: source, Structure: s}
}

// NewErrorMessage posts err as an error.
func NewErrorMessage(source string, err *GError, debug string) *Message {
	m := NewMessage(MessageError, source, nil)
	m.Err = err
	m.Debug = debug
	return m
}

// NewWarningMessage posts err as a warning.
func NewWarningMessage(source string, err *GError, debug string) *Message {
	m := NewMessage(MessageWarning, source, nil)
	m.Err = err
	m.Debug = debug
	return m
}

// NewInfoMessage posts err as information.
func NewInfoMessage(source string, err *GError, debug string) *Message {
	m := NewMessage(MessageInfo, source, nil)
	m.Err = err
	m.Debug = debug
	return m
}

// NewEOSMessage reports that the pipeline reached the end of the stream.
func NewEOSMessage(source string) *Message {
	return NewMessage(MessageEOS, source, nil)
}

// NewElementMessage posts an element-specific structure.
func NewElementMessage(source string, s *Structure) *Message {
	return NewMessage(MessageElement, source, s)
}

// NewStateChangedMessage reports a state transition of source.
func NewStateChangedMessage(source string, oldState, newState, pending State) *Message {
	return NewMessage(MessageStateChanged, source, NewStructure("GstMessageStateChanged",
		"old-state", oldState.String(),
		"new-state", newState.String(),
		"pending-state", pending.String(),
	))
}

// IsGError reports whether the message carries an error triple rather than
// a plain structure.
func (m *Message) IsGError() bool {
	return m.Type == MessageError || m.Type == MessageWarning || m.Type == MessageInfo
}
