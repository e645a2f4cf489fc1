// Package metrics provides per-endpoint counters for the communication
// layer.
//
// The Collector accumulates counters for the lifetime of one endpoint. It is
// a leaf package with no internal dependencies; frame types are recorded by
// name so the ipc package can feed it without an import cycle.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Traffic
	FramesSent     int64
	FramesReceived int64
	BytesSent      int64
	BytesReceived  int64
	SentByType     map[string]int64
	ReceivedByType map[string]int64

	// Acknowledgements
	AcksResolved   int64
	AckTimeouts    int64
	UnknownReplies int64
	Cancelled      int64

	// Failures
	DecodeErrors   int64
	ReadErrors     int64
	WriteErrors    int64
	DroppedMetas   int64
	ReaderRestarts int64

	// Dimensions (informational, set at construction)
	Endpoint string
	Name     string
}

// Collector accumulates endpoint metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	framesSent     int64
	framesReceived int64
	bytesSent      int64
	bytesReceived  int64
	sentByType     map[string]int64
	receivedByType map[string]int64

	acksResolved   int64
	ackTimeouts    int64
	unknownReplies int64
	cancelled      int64

	decodeErrors   int64
	readErrors     int64
	writeErrors    int64
	droppedMetas   int64
	readerRestarts int64

	endpoint string
	name     string
}

// NewCollector creates a Collector for the endpoint kind (sink or src) and
// an optional instance name.
func NewCollector(endpoint, name string) *Collector {
	return &Collector{
		sentByType:     make(map[string]int64),
		receivedByType: make(map[string]int64),
		endpoint:       endpoint,
		name:           name,
	}
}

// --- Traffic ---

// RecordSent records one frame of the given type and total size written.
func (c *Collector) RecordSent(frameType string, size int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesSent++
	c.bytesSent += int64(size)
	c.sentByType[frameType]++
	c.mu.Unlock()
}

// RecordReceived records one complete frame read and dispatched.
func (c *Collector) RecordReceived(frameType string, size int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.framesReceived++
	c.bytesReceived += int64(size)
	c.receivedByType[frameType]++
	c.mu.Unlock()
}

// --- Acknowledgements ---

// IncAckResolved records a reply matched to a pending request.
func (c *Collector) IncAckResolved() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.acksResolved++
	c.mu.Unlock()
}

// IncAckTimeout records a timed wait that expired.
func (c *Collector) IncAckTimeout() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ackTimeouts++
	c.mu.Unlock()
}

// IncUnknownReply records a reply for an id nobody waits on.
func (c *Collector) IncUnknownReply() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.unknownReplies++
	c.mu.Unlock()
}

// AddCancelled records n requests force-resolved by a cancel.
func (c *Collector) AddCancelled(n int) {
	if c == nil || n == 0 {
		return
	}
	c.mu.Lock()
	c.cancelled += int64(n)
	c.mu.Unlock()
}

// --- Failures ---

// IncDecodeError records a malformed inbound frame.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// IncReadError records a fatal read failure.
func (c *Collector) IncReadError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.readErrors++
	c.mu.Unlock()
}

// IncWriteError records a fatal write failure.
func (c *Collector) IncWriteError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.writeErrors++
	c.mu.Unlock()
}

// AddDroppedMetas records buffer metadata entries that could not be carried.
func (c *Collector) AddDroppedMetas(n int) {
	if c == nil || n == 0 {
		return
	}
	c.mu.Lock()
	c.droppedMetas += int64(n)
	c.mu.Unlock()
}

// IncReaderRestart records a reader restarted by a disconnect.
func (c *Collector) IncReaderRestart() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.readerRestarts++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns a point-in-time copy of all counters.
// Nil-safe: returns zero Snapshot for nil receiver.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	sent := make(map[string]int64, len(c.sentByType))
	for k, v := range c.sentByType {
		sent[k] = v
	}
	received := make(map[string]int64, len(c.receivedByType))
	for k, v := range c.receivedByType {
		received[k] = v
	}

	return Snapshot{
		FramesSent:     c.framesSent,
		FramesReceived: c.framesReceived,
		BytesSent:      c.bytesSent,
		BytesReceived:  c.bytesReceived,
		SentByType:     sent,
		ReceivedByType: received,

		AcksResolved:   c.acksResolved,
		AckTimeouts:    c.ackTimeouts,
		UnknownReplies: c.unknownReplies,
		Cancelled:      c.cancelled,

		DecodeErrors:   c.decodeErrors,
		ReadErrors:     c.readErrors,
		WriteErrors:    c.writeErrors,
		DroppedMetas:   c.droppedMetas,
		ReaderRestarts: c.readerRestarts,

		Endpoint: c.endpoint,
		Name:     c.name,
	}
}
