//nolint:revive // types is a common Go package naming convention
package types

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EventTypeName is the type name events use inside structures.
const EventTypeName = "GstEvent"

// SerializeEvent renders an event as a single structure-safe token:
//
//	type:timestamp:seqnum:running-time-offset:base64(structure)
//
// The base64 padding '=' is written as '_' so the token never contains
// characters that end a structure field.
func SerializeEvent(ev *Event) string {
	str := ""
	if ev.Structure != nil {
		str = ev.Structure.String()
	}
	// The trailing NUL matches what other endpoints expect inside the payload.
	enc := base64.StdEncoding.EncodeToString(append([]byte(str), 0))
	enc = strings.ReplaceAll(enc, "=", "_")
	return fmt.Sprintf("%s:%d:%d:%d:%s", ev.Type, ev.Timestamp, ev.Seqnum, ev.RunningTimeOffset, enc)
}

// ParseSerializedEvent is the inverse of SerializeEvent.
func ParseSerializedEvent(s string) (*Event, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 {
		return nil, fmt.Errorf("serialized event: want 5 fields, got %d", len(parts))
	}
	t, ok := ParseEventType(parts[0])
	if !ok {
		return nil, fmt.Errorf("serialized event: unknown type %q", parts[0])
	}
	ts, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("serialized event: timestamp: %w", err)
	}
	seqnum, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("serialized event: seqnum: %w", err)
	}
	offset, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("serialized event: running time offset: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(parts[4], "_", "="))
	if err != nil {
		return nil, fmt.Errorf("serialized event: structure: %w", err)
	}

	ev := &Event{
		Type:              t,
		Timestamp:         ts,
		Seqnum:            uint32(seqnum),
		RunningTimeOffset: offset,
	}
	if str := strings.TrimRight(string(raw), "\x00"); str != "" {
		st, err := ParseStructure(str)
		if err != nil {
			return nil, fmt.Errorf("serialized event: %w", err)
		}
		ev.Structure = st
	}
	return ev, nil
}

// EventValueCodec lets *Event values live inside structures.
var EventValueCodec = &ValueCodec{
	TypeName: EventTypeName,
	Serialize: func(v any) (string, bool) {
		ev, ok := v.(*Event)
		if !ok || ev == nil {
			return "", false
		}
		return SerializeEvent(ev), true
	},
	Deserialize: func(s string) (any, error) {
		return ParseSerializedEvent(s)
	},
	Equal: func(a, b any) bool {
		ea, ok1 := a.(*Event)
		eb, ok2 := b.(*Event)
		if !ok1 || !ok2 {
			return false
		}
		return ea.Type == eb.Type && ea.Seqnum == eb.Seqnum && ea.Timestamp == eb.Timestamp &&
			ea.RunningTimeOffset == eb.RunningTimeOffset && ea.Structure.Equal(eb.Structure)
	},
}
