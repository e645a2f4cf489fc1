package ipc

import "github.com/pithecene-io/ipcpipe/types"

// ackPolicy maps a frame type to the wait mode its sender uses, indexed by
// [serialized][upstream]. For events both flags come from the event type;
// upstream here is "may travel upstream", not the direction of this send.
// Queries and sink messages only look at serialized.
//
// Both ends consult the same table: the sender to decide how long to wait,
// the receiver to decide whether to answer at all.
var ackPolicy = map[DataType][2][2]AckMode{
	//                          not serialized              serialized
	//                          {!up, up}                   {!up, up}
	DataTypeBuffer:           {{AckBlocking, AckBlocking}, {AckBlocking, AckBlocking}},
	DataTypeEvent:            {{AckNone, AckBlocking}, {AckBlocking, AckBlocking}},
	DataTypeSinkMessageEvent: {{AckTimed, AckTimed}, {AckBlocking, AckBlocking}},
	DataTypeQuery:            {{AckTimed, AckTimed}, {AckBlocking, AckBlocking}},
	DataTypeStateChange:      {{AckTimed, AckTimed}, {AckTimed, AckTimed}},
	DataTypeStateLost:        {{AckNone, AckNone}, {AckNone, AckNone}},
	DataTypeMessage:          {{AckNone, AckNone}, {AckNone, AckNone}},
	DataTypeGErrorMessage:    {{AckNone, AckNone}, {AckNone, AckNone}},
}

func index(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AckModeFor looks up the wait mode for a frame. Reply frames and unknown
// types never wait.
func AckModeFor(t DataType, serialized, upstream bool) AckMode {
	row, ok := ackPolicy[t]
	if !ok {
		return AckNone
	}
	return row[index(serialized)][index(upstream)]
}

// EventAckMode is the wait mode for sending ev.
func EventAckMode(ev *types.Event) AckMode {
	t := DataTypeEvent
	if ev.Type == types.EventSinkMessage {
		t = DataTypeSinkMessageEvent
	}
	return AckModeFor(t, ev.Type.IsSerialized(), ev.Type.IsUpstream())
}

// QueryAckMode is the wait mode for sending q.
func QueryAckMode(q *types.Query) AckMode {
	return AckModeFor(DataTypeQuery, q.Type.IsSerialized(), q.Type.IsUpstream())
}

// MessageDataType is the frame type a message is sent as.
func MessageDataType(m *types.Message) DataType {
	if m.IsGError() {
		return DataTypeGErrorMessage
	}
	return DataTypeMessage
}

// EventDataType is the frame type an event is sent as.
func EventDataType(ev *types.Event) DataType {
	if ev.Type == types.EventSinkMessage {
		return DataTypeSinkMessageEvent
	}
	return DataTypeEvent
}
