package types //nolint:revive // types is a valid package name

import "testing"

func TestEventType_Flags(t *testing.T) {
	tests := []struct {
		typ        EventType
		upstream   bool
		serialized bool
	}{
		{EventEOS, false, true},
		{EventSegment, false, true},
		{EventFlushStart, true, false},
		{EventFlushStop, true, true},
		{EventSeek, true, false},
		{EventCustomDownstreamOOB, false, false},
	}
	for _, tt := range tests {
		if got := tt.typ.IsUpstream(); got != tt.upstream {
			t.Errorf("%s IsUpstream = %v, want %v", tt.typ, got, tt.upstream)
		}
		if got := tt.typ.IsSerialized(); got != tt.serialized {
			t.Errorf("%s IsSerialized = %v, want %v", tt.typ, got, tt.serialized)
		}
	}
}

func TestParseEventType(t *testing.T) {
	for typ, name := range eventNames {
		got, ok := ParseEventType(name)
		if !ok || got != typ {
			t.Errorf("ParseEventType(%q) = %s, %v", name, got, ok)
		}
	}
	if _, ok := ParseEventType("no-such-event"); ok {
		t.Error("ParseEventType accepted an unknown name")
	}
}

func TestNextSeqnum_Increases(t *testing.T) {
	a := NextSeqnum()
	b := NextSeqnum()
	if a == 0 || b == 0 || a == b {
		t.Errorf("NextSeqnum = %d, %d", a, b)
	}
}

func TestSerializedEvent_RoundTrip(t *testing.T) {
	tests := []*Event{
		NewSegmentEvent(1.0, 0, ClockTimeNone),
		NewEOSEvent(),
		NewSeekEvent(2.0, 10, -1),
	}
	for _, ev := range tests {
		ev.Timestamp = 1234
		ev.RunningTimeOffset = -5

		got, err := ParseSerializedEvent(SerializeEvent(ev))
		if err != nil {
			t.Fatalf("%s: ParseSerializedEvent failed: %v", ev.Type, err)
		}
		if !EventValueCodec.Equal(got, ev) {
			t.Errorf("%s: round trip = %+v, want %+v", ev.Type, got, ev)
		}
	}
}

func TestParseSerializedEvent_Invalid(t *testing.T) {
	tests := []string{
		"eos:1:2:3",
		"nosuch:1:2:3:AA__",
		"eos:x:2:3:AA__",
		"eos:1:x:3:AA__",
		"eos:1:2:x:AA__",
		"eos:1:2:3:!!!",
	}
	for _, input := range tests {
		if _, err := ParseSerializedEvent(input); err == nil {
			t.Errorf("ParseSerializedEvent(%q) succeeded", input)
		}
	}
}

func TestQuery_MergeReply(t *testing.T) {
	q := NewDrainQuery()
	reply := NewQuery(QueryDrain, NewStructure("GstQueryDrain", "done", true))
	q.MergeReply(reply)
	if v, _ := q.Structure.Get("done"); v != true {
		t.Errorf("done = %v, want true", v)
	}

	before := q.Structure.String()
	q.MergeReply(NewQuery(QueryDrain, nil))
	if q.Structure.String() != before {
		t.Error("empty reply changed the query")
	}
}

func TestMessage_IsGError(t *testing.T) {
	gerr := &GError{Domain: StreamErrorDomain, Code: StreamErrorDecode, Message: "bad"}
	if !NewErrorMessage("src", gerr, "").IsGError() {
		t.Error("error message is not a gerror message")
	}
	if NewEOSMessage("src").IsGError() {
		t.Error("eos message is a gerror message")
	}
	if got := gerr.Error(); got != "bad (gst-stream-error:7)" {
		t.Errorf("Error = %q", got)
	}
}
