package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/ipcpipe/iox"
	"github.com/pithecene-io/ipcpipe/ipc"
)

// Decoder reads records from a capture stream.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a new record decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// Next reads a single record from the stream.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more records)
//   - *ipc.FrameError with Kind=FrameErrorTruncated: incomplete record
//   - *ipc.FrameError with Kind=FrameErrorTooLarge: record exceeds limit
//   - *ipc.FrameError with Kind=FrameErrorDecode: malformed msgpack
func (d *Decoder) Next() (*Record, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &ipc.FrameError{
			Kind: ipc.FrameErrorTruncated,
			Msg:  "failed to read record length",
			Err:  err,
		}
	}

	size := binary.BigEndian.Uint32(lengthBuf[:])
	if size > MaxRecordSize {
		return nil, &ipc.FrameError{
			Kind: ipc.FrameErrorTooLarge,
			Msg:  fmt.Sprintf("record size %d exceeds maximum %d", size, MaxRecordSize),
		}
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(d.reader, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, &ipc.FrameError{
			Kind: ipc.FrameErrorTruncated,
			Msg:  "failed to read record",
			Err:  err,
		}
	}

	var r Record
	if err := msgpack.Unmarshal(body, &r); err != nil {
		return nil, &ipc.FrameError{
			Kind: ipc.FrameErrorDecode,
			Msg:  "failed to decode record",
			Err:  err,
		}
	}
	if !ipc.DataType(r.Type).Valid() {
		return nil, &ipc.FrameError{
			Kind: ipc.FrameErrorDesync,
			Type: ipc.DataType(r.Type),
			Msg:  fmt.Sprintf("record %d has unknown frame type %d", r.Seq, r.Type),
		}
	}
	return &r, nil
}

// ReadAll reads records until the end of the stream.
func (d *Decoder) ReadAll() ([]*Record, error) {
	var out []*Record
	for {
		r, err := d.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
}

// ReadFile reads every record of the capture file at path.
func ReadFile(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer iox.DiscardClose(f)
	return NewDecoder(bufio.NewReader(f)).ReadAll()
}
