//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"

	"go.uber.org/atomic"
)

// EventType is an event number shifted left by 8 and or'ed with its
// direction and ordering flags.
type EventType uint32

// Event type flags.
const (
	EventFlagUpstream    EventType = 1 << 0
	EventFlagDownstream  EventType = 1 << 1
	EventFlagSerialized  EventType = 1 << 2
	EventFlagSticky      EventType = 1 << 3
	EventFlagStickyMulti EventType = 1 << 4

	eventFlagBoth = EventFlagUpstream | EventFlagDownstream
	eventFlagMask = 0xff
)

// Event types.
const (
	EventUnknown                EventType = 0
	EventFlushStart             EventType = 10<<8 | eventFlagBoth
	EventFlushStop              EventType = 20<<8 | eventFlagBoth | EventFlagSerialized
	EventStreamStart            EventType = 40<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventCaps                   EventType = 50<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventSegment                EventType = 70<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventTag                    EventType = 80<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky | EventFlagStickyMulti
	EventBufferSize             EventType = 90<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventSinkMessage            EventType = 100<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky | EventFlagStickyMulti
	EventStreamGroupDone        EventType = 105<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventEOS                    EventType = 110<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky
	EventSegmentDone            EventType = 150<<8 | EventFlagDownstream | EventFlagSerialized
	EventGap                    EventType = 160<<8 | EventFlagDownstream | EventFlagSerialized
	EventQOS                    EventType = 190<<8 | EventFlagUpstream
	EventSeek                   EventType = 200<<8 | EventFlagUpstream
	EventNavigation             EventType = 210<<8 | EventFlagUpstream
	EventLatency                EventType = 220<<8 | EventFlagUpstream
	EventStep                   EventType = 230<<8 | EventFlagUpstream
	EventReconfigure            EventType = 240<<8 | EventFlagUpstream
	EventCustomUpstream         EventType = 270<<8 | EventFlagUpstream
	EventCustomDownstream       EventType = 280<<8 | EventFlagDownstream | EventFlagSerialized
	EventCustomDownstreamOOB    EventType = 290<<8 | EventFlagDownstream
	EventCustomDownstreamSticky EventType = 300<<8 | EventFlagDownstream | EventFlagSerialized | EventFlagSticky | EventFlagStickyMulti
	EventCustomBoth             EventType = 310<<8 | eventFlagBoth | EventFlagSerialized
	EventCustomBothOOB          EventType = 320<<8 | eventFlagBoth
)

var eventNames = map[EventType]string{
	EventUnknown:                "unknown",
	EventFlushStart:             "flush-start",
	EventFlushStop:              "flush-stop",
	EventStreamStart:            "stream-start",
	EventCaps:                   "caps",
	EventSegment:                "segment",
	EventTag:                    "tag",
	EventBufferSize:             "buffersize",
	EventSinkMessage:            "sink-message",
	EventStreamGroupDone:        "stream-group-done",
	EventEOS:                    "eos",
	EventSegmentDone:            "segment-done",
	EventGap:                    "gap",
	EventQOS:                    "qos",
	EventSeek:                   "seek",
	EventNavigation:             "navigation",
	EventLatency:                "latency",
	EventStep:                   "step",
	EventReconfigure:            "reconfigure",
	EventCustomUpstream:         "custom-upstream",
	EventCustomDownstream:       "custom-downstream",
	EventCustomDownstreamOOB:    "custom-downstream-oob",
	EventCustomDownstreamSticky: "custom-downstream-sticky",
	EventCustomBoth:             "custom-both",
	EventCustomBothOOB:          "custom-both-oob",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return fmt.Sprintf("event-%d", uint32(t)>>8)
}

// ParseEventType returns the event type with the given name.
func ParseEventType(name string) (EventType, bool) {
	for t, n := range eventNames {
		if n == name {
			return t, true
		}
	}
	return EventUnknown, false
}

// IsUpstream reports whether the event can travel upstream.
func (t EventType) IsUpstream() bool { return t&EventFlagUpstream != 0 }

// IsDownstream reports whether the event can travel downstream.
func (t EventType) IsDownstream() bool { return t&EventFlagDownstream != 0 }

// IsSerialized reports whether the event is ordered with buffers.
func (t EventType) IsSerialized() bool { return t&EventFlagSerialized != 0 }

// IsSticky reports whether the event is stored on pads.
func (t EventType) IsSticky() bool { return t&EventFlagSticky != 0 }

// Flags returns the flag bits of the type.
func (t EventType) Flags() EventType { return t & eventFlagMask }

var seqnumCounter atomic.Uint32

// NextSeqnum returns a process-wide sequence number. Zero is never returned.
func NextSeqnum() uint32 {
	for {
		if n := seqnumCounter.Inc(); n != 0 {
			return n
		}
	}
}

// Event is an in-band or out-of-band control item.
//
// Sink-message events carry their embedded Message; for every other type
// Message is nil.
type Event struct {
	Type              EventType
	Seqnum            uint32
	Timestamp         uint64
	RunningTimeOffset int64
	Structure         *Structure
	Message           *Message
}

// NewEvent returns an event of type t with a fresh sequence number.
func NewEvent(t EventType, s *Structure) *Event {
	return &Event{
		Type:      t,
		Seqnum:    NextSeqnum(),
		Timestamp: ClockTimeNone,
		Structure: s,
	}
}

// NewStreamStartEvent starts a new stream.
func NewStreamStartEvent(streamID string) *Event {
	return NewEvent(EventStreamStart, NewStructure("GstEventStreamStart",
		"stream-id", streamID,
		"flags", uint32(0),
		"group-id", uint32(0),
	))
}

// NewSegmentEvent announces a time segment starting at start.
func NewSegmentEvent(rate float64, start, stop uint64) *Event {
	return NewEvent(EventSegment, NewStructure("GstEventSegment",
		"format", "time",
		"rate", rate,
		"start", start,
		"stop", stop,
		"time", start,
	))
}

// NewEOSEvent marks the end of the stream.
func NewEOSEvent() *Event {
	return NewEvent(EventEOS, nil)
}

// NewFlushStartEvent starts a flush.
func NewFlushStartEvent() *Event {
	return NewEvent(EventFlushStart, nil)
}

// NewFlushStopEvent ends a flush.
func NewFlushStopEvent(resetTime bool) *Event {
	return NewEvent(EventFlushStop, NewStructure("GstEventFlushStop", "reset-time", resetTime))
}

// NewSeekEvent requests a seek in time format.
func NewSeekEvent(rate float64, start, stop int64) *Event {
	return NewEvent(EventSeek, NewStructure("GstEventSeek",
		"rate", rate,
		"format", "time",
		"flags", uint32(1),
		"cur-type", "set",
		"cur", start,
		"stop-type", "set",
		"stop", stop,
	))
}

// NewSinkMessageEvent wraps msg so it reaches the sink named name.
func NewSinkMessageEvent(name string, msg *Message) *Event {
	ev := NewEvent(EventSinkMessage, NewStructure(name))
	ev.Message = msg
	return ev
}

// Name returns the structure name, or "" when there is no structure.
func (e *Event) Name() string {
	if e.Structure == nil {
		return ""
	}
	return e.Structure.Name
}
