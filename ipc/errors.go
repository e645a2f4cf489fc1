package ipc

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/ipcpipe/types"
)

// Sentinel errors.
var (
	// ErrReaderRunning is returned when starting a reader twice or clearing
	// a Comm whose reader has not been stopped.
	ErrReaderRunning = errors.New("reader already running")
	// ErrNoDescriptors is returned when a descriptor needed for I/O is unset.
	ErrNoDescriptors = errors.New("descriptors not set")
	// ErrClosed is returned when using a Comm after Clear.
	ErrClosed = errors.New("comm closed")
	// ErrFlushing is returned when an operation is refused during a flush.
	ErrFlushing = errors.New("flushing")
)

// ElementError is a fatal condition of the communication layer, reported
// to the owning endpoint as a domain/code pair.
type ElementError struct {
	Domain string
	Code   int32
	Err    error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: %v", domainLabel(e.Domain, e.Code), e.Err)
}

func (e *ElementError) Unwrap() error {
	return e.Err
}

// GError converts the error to the triple posted on a bus.
func (e *ElementError) GError() *types.GError {
	return &types.GError{Domain: e.Domain, Code: e.Code, Message: e.Err.Error()}
}

func domainLabel(domain string, code int32) string {
	switch {
	case domain == types.ResourceErrorDomain && code == types.ResourceErrorRead:
		return "resource read error"
	case domain == types.ResourceErrorDomain && code == types.ResourceErrorWrite:
		return "resource write error"
	case domain == types.StreamErrorDomain && code == types.StreamErrorDecode:
		return "stream decode error"
	default:
		return fmt.Sprintf("%s error %d", domain, code)
	}
}

func readError(err error) *ElementError {
	return &ElementError{Domain: types.ResourceErrorDomain, Code: types.ResourceErrorRead, Err: err}
}

func writeError(err error) *ElementError {
	return &ElementError{Domain: types.ResourceErrorDomain, Code: types.ResourceErrorWrite, Err: err}
}

func streamDecodeError(err error) *ElementError {
	return &ElementError{Domain: types.StreamErrorDomain, Code: types.StreamErrorDecode, Err: err}
}

// ErrorReporter receives fatal communication errors. It may be called
// with the Comm mutex held and must not write to the same Comm.
type ErrorReporter interface {
	ReportError(err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(err error)

// ReportError calls f(err).
func (f ErrorReporterFunc) ReportError(err error) { f(err) }

type discardReporter struct{}

func (discardReporter) ReportError(error) {}
