package endpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/ipcpipe/ipc"
)

// Default read chunk sizes. The src reads buffers, so it reads more per
// poll than the sink, which mostly reads acknowledgements.
const (
	DefaultSinkReadChunkSize = 4096
	DefaultSrcReadChunkSize  = 65536
)

// ErrMissingFD is returned by Validate when a descriptor is unset.
var ErrMissingFD = errors.New("descriptor not set")

// SinkConfig configures a Sink.
type SinkConfig struct {
	// Name labels logs, metrics and posted error messages.
	Name string
	// FdIn receives replies and upstream traffic. -1 means unset.
	FdIn int
	// FdOut carries buffers, events, queries and state changes. -1 means unset.
	FdOut int
	// ReadChunkSize is the number of bytes read per poll.
	ReadChunkSize int
	// AckTime bounds timed acknowledgement waits.
	AckTime time.Duration
}

// DefaultSinkConfig returns a SinkConfig with unset descriptors.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{
		Name:          "ipcpipelinesink0",
		FdIn:          -1,
		FdOut:         -1,
		ReadChunkSize: DefaultSinkReadChunkSize,
		AckTime:       ipc.DefaultAckTime,
	}
}

// Validate checks that the sink can start.
func (c SinkConfig) Validate() error {
	return validate(c.FdIn, c.FdOut, c.ReadChunkSize, c.AckTime)
}

func (c SinkConfig) comm() ipc.Config {
	return ipc.Config{FdIn: c.FdIn, FdOut: c.FdOut, ReadChunkSize: c.ReadChunkSize, AckTime: c.AckTime}
}

// SrcConfig configures a Src.
type SrcConfig struct {
	// Name labels logs, metrics and posted error messages.
	Name string
	// FdIn receives buffers, events, queries and state changes. -1 means unset.
	FdIn int
	// FdOut carries replies, upstream traffic and messages. -1 means unset.
	FdOut int
	// ReadChunkSize is the number of bytes read per poll.
	ReadChunkSize int
	// AckTime bounds timed acknowledgement waits.
	AckTime time.Duration
}

// DefaultSrcConfig returns a SrcConfig with unset descriptors.
func DefaultSrcConfig() SrcConfig {
	return SrcConfig{
		Name:          "ipcpipelinesrc0",
		FdIn:          -1,
		FdOut:         -1,
		ReadChunkSize: DefaultSrcReadChunkSize,
		AckTime:       ipc.DefaultAckTime,
	}
}

// Validate checks that the src can start.
func (c SrcConfig) Validate() error {
	return validate(c.FdIn, c.FdOut, c.ReadChunkSize, c.AckTime)
}

func (c SrcConfig) comm() ipc.Config {
	return ipc.Config{FdIn: c.FdIn, FdOut: c.FdOut, ReadChunkSize: c.ReadChunkSize, AckTime: c.AckTime}
}

func validate(fdin, fdout, chunk int, ackTime time.Duration) error {
	if fdin < 0 {
		return fmt.Errorf("fdin: %w", ErrMissingFD)
	}
	if fdout < 0 {
		return fmt.Errorf("fdout: %w", ErrMissingFD)
	}
	if chunk <= 0 {
		return fmt.Errorf("read chunk size must be positive, got %d", chunk)
	}
	if ackTime <= 0 {
		return fmt.Errorf("ack time must be positive, got %s", ackTime)
	}
	return nil
}
