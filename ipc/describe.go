package ipc

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/ipcpipe/types"
)

// Describe decodes f and renders a one-line summary of its payload for
// traces and offline inspection.
func Describe(f Frame) (string, error) {
	switch f.Type {
	case DataTypeAck:
		ret, err := DecodeAck(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ret=%d", int32(ret)), nil
	case DataTypeQueryResult:
		result, q, err := DecodeQueryResult(f.Payload)
		if err != nil {
			return "", err
		}
		if q == nil {
			return fmt.Sprintf("result=%t", result), nil
		}
		return fmt.Sprintf("result=%t %s %s", result, q.Type, structureString(q.Structure)), nil
	case DataTypeBuffer:
		b, dropped, err := DecodeBuffer(f.Payload)
		if err != nil {
			return "", err
		}
		s := fmt.Sprintf("size=%d pts=%s dts=%s duration=%s flags=0x%x metas=%d",
			b.Size(), clockTime(b.PTS), clockTime(b.DTS), clockTime(b.Duration), uint64(b.Flags), len(b.Metas))
		if len(dropped) > 0 {
			s += " dropped=" + strings.Join(dropped, ",")
		}
		return s, nil
	case DataTypeEvent:
		ev, upstream, err := DecodeEvent(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s seqnum=%d upstream=%t %s", ev.Type, ev.Seqnum, upstream, structureString(ev.Structure)), nil
	case DataTypeSinkMessageEvent:
		ev, err := DecodeSinkMessageEvent(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s name=%s message=%s", ev.Type, ev.Name(), ev.Message.Type), nil
	case DataTypeQuery:
		q, upstream, err := DecodeQuery(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s upstream=%t %s", q.Type, upstream, structureString(q.Structure)), nil
	case DataTypeStateChange:
		t, err := DecodeStateChange(f.Payload)
		if err != nil {
			return "", err
		}
		return t.String(), nil
	case DataTypeStateLost:
		return "", DecodeStateLost(f.Payload)
	case DataTypeMessage:
		m, err := DecodeMessage(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", m.Type, structureString(m.Structure)), nil
	case DataTypeGErrorMessage:
		m, err := DecodeGErrorMessage(f.Payload)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %v", m.Type, m.Err), nil
	default:
		return "", &FrameError{Kind: FrameErrorDesync, Type: f.Type, Msg: fmt.Sprintf("unknown frame type %d", uint8(f.Type))}
	}
}

func clockTime(t uint64) string {
	if t == types.ClockTimeNone {
		return "none"
	}
	return fmt.Sprintf("%d", t)
}
