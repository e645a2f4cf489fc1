package iox

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"
)

type spyCloser struct{ closed bool }

func (s *spyCloser) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestPipe(t *testing.T) {
	r, w, err := Pipe()
	if err != nil {
		t.Fatalf("Pipe failed: %v", err)
	}
	t.Cleanup(func() { _ = CloseAll(r, w) })

	if _, err := unix.Write(int(w), []byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 2)
	if n, err := unix.Read(int(r), buf); err != nil || string(buf[:n]) != "hi" {
		t.Errorf("read = %q, %v; want hi", buf[:n], err)
	}
}

func TestFD_CloseUnset(t *testing.T) {
	if err := FD(-1).Close(); err != nil {
		t.Errorf("Close(-1) = %v, want nil", err)
	}
}

func TestCloseAll(t *testing.T) {
	a, b := &spyCloser{}, &spyCloser{}
	err := CloseAll(a, nil, b)
	if !a.closed || !b.closed {
		t.Error("not every closer was closed")
	}
	if err == nil {
		t.Error("CloseAll = nil, want the joined close errors")
	}
}
