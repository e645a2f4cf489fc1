// Package iox provides raw descriptor helpers and resource cleanup.
package iox

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// FD is a raw file descriptor owned by the caller. -1 means unset.
type FD int

// Close closes the descriptor. Closing an unset FD is a no-op.
func (fd FD) Close() error {
	if fd < 0 {
		return nil
	}
	return unix.Close(int(fd))
}

// Pipe creates a close-on-exec pipe and returns its read and write ends.
func Pipe() (r, w FD, err error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return FD(p[0]), FD(p[1]), nil
}

// CloseAll closes every closer and returns the joined errors.
func CloseAll(cs ...io.Closer) error {
	var errs []error
	for _, c := range cs {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DiscardClose closes c and drops the error, for defers where a close
// failure cannot be acted on.
func DiscardClose(c io.Closer) { _ = c.Close() }
