package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/ipcpipe/ipc"
)

// Writer appends records to a stream. It implements ipc.FrameTap and is
// safe for concurrent use.
//
// A tap cannot fail the frame it observes, so the first write error is
// kept and returned by Err and Close; later frames are not recorded.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	closer   io.Closer
	endpoint string
	seq      uint64
	err      error
	now      func() time.Time
}

var _ ipc.FrameTap = (*Writer)(nil)

// NewWriter creates a Writer on w. endpoint labels every record.
func NewWriter(w io.Writer, endpoint string) *Writer {
	return &Writer{w: w, endpoint: endpoint, now: time.Now}
}

// Create creates (or truncates) the file at path and returns a Writer on it.
func Create(path, endpoint string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	w := NewWriter(f, endpoint)
	w.closer = f
	return w, nil
}

// TapFrame records f.
func (w *Writer) TapFrame(outbound bool, f ipc.Frame) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.seq++
	w.err = w.writeRecord(&Record{
		Seq:      w.seq,
		Time:     w.now(),
		Outbound: outbound,
		Type:     uint8(f.Type),
		ID:       f.ID,
		Payload:  f.Payload,
		Endpoint: w.endpoint,
	})
}

// Write records r as given. It is used to re-encode filtered captures.
func (w *Writer) Write(r *Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.err = w.writeRecord(r)
	return w.err
}

func (w *Writer) writeRecord(r *Record) error {
	body, err := msgpack.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", r.Seq, err)
	}
	if len(body) > MaxRecordSize {
		return fmt.Errorf("record %d size %d exceeds maximum %d", r.Seq, len(body), MaxRecordSize)
	}
	buf := make([]byte, 0, LengthPrefixSize+len(body))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write record %d: %w", r.Seq, err)
	}
	return nil
}

// Count returns the number of frames recorded by TapFrame.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close closes the underlying file, if the Writer owns one, and returns
// the first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil && w.err == nil {
			w.err = err
		}
		w.closer = nil
	}
	return w.err
}
