// Package capture records the frames a Comm writes and reads.
//
// A capture file is a sequence of records, each written as a 4-byte
// big-endian length prefix followed by a msgpack-encoded Record:
//
//	[4 bytes length][msgpack Record]
//
// The raw frame payload is stored unchanged, so a capture can be decoded
// with the same codec as the live stream.
package capture

import (
	"time"

	"github.com/pithecene-io/ipcpipe/ipc"
)

// LengthPrefixSize is the size of the record length prefix in bytes.
const LengthPrefixSize = 4

// MaxRecordSize bounds one encoded record: a full frame payload plus the
// record fields around it.
const MaxRecordSize = ipc.MaxPayloadSize + 64*1024

// Record is one captured frame.
type Record struct {
	Seq      uint64    `msgpack:"seq"`
	Time     time.Time `msgpack:"ts"`
	Outbound bool      `msgpack:"out"`
	Type     uint8     `msgpack:"type"`
	ID       uint32    `msgpack:"id"`
	Payload  []byte    `msgpack:"payload"`
	Endpoint string    `msgpack:"endpoint,omitempty"`
}

// Frame returns the captured frame.
func (r *Record) Frame() ipc.Frame {
	return ipc.Frame{
		Header: ipc.Header{
			Type:   ipc.DataType(r.Type),
			ID:     r.ID,
			Length: uint32(len(r.Payload)),
		},
		Payload: r.Payload,
	}
}

// Direction returns "out" for frames written and "in" for frames read.
func (r *Record) Direction() string {
	if r.Outbound {
		return "out"
	}
	return "in"
}
