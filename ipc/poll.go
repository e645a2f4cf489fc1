package ipc

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval bounds every wait so a stop request is noticed promptly
// even if the wake pipe write were lost.
const pollInterval = 100 * time.Millisecond

// poller waits for input on one descriptor or for a wake-up.
type poller struct {
	wakeR int
	wakeW int
}

func newPoller() (*poller, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("wake pipe: %w", err)
	}
	return &poller{wakeR: p[0], wakeW: p[1]}, nil
}

// wait blocks until fd is readable, the poller is woken, or timeout
// elapses. fd < 0 waits for a wake-up only. Hang-up and error conditions
// count as readable so the following read reports them.
func (p *poller) wait(fd int, timeout time.Duration) (readable bool, err error) {
	fds := []unix.PollFd{{Fd: int32(p.wakeR), Events: unix.POLLIN}}
	if fd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return false, nil
		}
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&unix.POLLIN != 0 {
		p.drain()
	}
	if fd < 0 {
		return false, nil
	}
	rev := fds[1].Revents
	if rev&unix.POLLNVAL != 0 {
		return false, fmt.Errorf("poll fd %d: %w", fd, unix.EBADF)
	}
	return rev&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0, nil
}

// wake interrupts a concurrent wait.
func (p *poller) wake() {
	// A full pipe already guarantees a pending wake-up.
	_, _ = unix.Write(p.wakeW, []byte{1})
}

func (p *poller) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *poller) close() {
	_ = unix.Close(p.wakeR)
	_ = unix.Close(p.wakeW)
}

// readFD reads once from fd. EAGAIN and EINTR are reported as (0, nil)
// so the caller polls again; end of stream is io.EOF-like (0, errEOF).
func readFD(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, err
	}
	if n == 0 {
		return 0, errEOF
	}
	return n, nil
}

var errEOF = errors.New("end of stream")

// writeFull writes all of b to fd, retrying on EAGAIN and EINTR. On
// EAGAIN it waits for the descriptor to become writable.
func writeFull(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				waitWritable(fd)
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

func waitWritable(fd int) {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	_, _ = unix.Poll(fds, int(pollInterval/time.Millisecond))
}
