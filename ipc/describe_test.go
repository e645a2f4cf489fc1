package ipc

import (
	"strings"
	"testing"

	"github.com/pithecene-io/ipcpipe/types"
)

func TestDescribe(t *testing.T) {
	buf := types.NewBuffer([]byte("abcd"))
	buf.PTS = 40
	bufPayload, _ := EncodeBuffer(buf)
	sinkMsg, _ := EncodeSinkMessageEvent(types.NewSinkMessageEvent("sink0", types.NewEOSMessage("x")))
	q := types.NewPositionQuery()
	q.SetPosition(99)
	gerr := &types.GError{Domain: types.StreamErrorDomain, Code: types.StreamErrorDecode, Message: "bad"}

	tests := []struct {
		name string
		typ  DataType
		data []byte
		want []string
	}{
		{"ack", DataTypeAck, EncodeAck(flowResult(types.FlowFlushing)), []string{"ret=-2"}},
		{"query result", DataTypeQueryResult, EncodeQueryResult(true, q), []string{"result=true", "current=(gint64)99"}},
		{"buffer", DataTypeBuffer, bufPayload, []string{"size=4", "pts=40", "dts=none"}},
		{"event", DataTypeEvent, EncodeEvent(true, types.NewSeekEvent(1, 0, -1)), []string{"seek", "upstream=true"}},
		{"sink message", DataTypeSinkMessageEvent, sinkMsg, []string{"name=sink0", "message=eos"}},
		{"query", DataTypeQuery, EncodeQuery(false, types.NewDurationQuery()), []string{"GstQueryDuration"}},
		{"state change", DataTypeStateChange, EncodeStateChange(types.StateChangePausedToPlaying), []string{"PAUSED->PLAYING"}},
		{"message", DataTypeMessage, EncodeMessage(types.NewElementMessage("x", types.NewStructure("hello"))), []string{"element", "hello"}},
		{"gerror", DataTypeGErrorMessage, EncodeGErrorMessage(types.NewErrorMessage("x", gerr, "")), []string{"error", "bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Describe(Frame{Header: Header{Type: tt.typ, Length: uint32(len(tt.data))}, Payload: tt.data})
			if err != nil {
				t.Fatalf("Describe failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("Describe = %q, want it to contain %q", got, want)
				}
			}
		})
	}
}

func TestDescribe_Errors(t *testing.T) {
	if _, err := Describe(Frame{Header: Header{Type: DataTypeAck}, Payload: []byte{1}}); err == nil {
		t.Error("short ack described without error")
	}
	if _, err := Describe(Frame{Header: Header{Type: 0xee}}); !IsFatalFrameError(err) {
		t.Errorf("unknown type err = %v, want fatal frame error", err)
	}
	if s, err := Describe(Frame{Header: Header{Type: DataTypeStateLost}}); err != nil || s != "" {
		t.Errorf("state lost = %q, %v", s, err)
	}
}
