// Package peer starts the remote half of a split pipeline as a child
// process and hands it a pipe pair.
//
// The child reads the sink's frames on descriptor 3 and writes its own
// frames on descriptor 4. Stderr is captured for diagnostics.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pithecene-io/ipcpipe/iox"
)

// Descriptors the child sees.
const (
	ChildFdIn  = 3
	ChildFdOut = 4
)

// Config configures the child process.
type Config struct {
	// Path is the binary to run.
	Path string
	// Args are passed after the binary name.
	Args []string
	// Env is appended to the inherited environment. Later entries win.
	Env []string
}

// Result is how the child ended.
type Result struct {
	// ExitCode is the process exit code, -1 if killed by a signal.
	ExitCode int
	// Stderr is the captured standard error.
	Stderr []byte
}

// Manager owns the child process and the parent's ends of the pipes.
type Manager struct {
	config Config
	cmd    *exec.Cmd
	stderr io.ReadCloser

	// toChild is written by the local sink; fromChild is read by it.
	toChild   *os.File
	fromChild *os.File
}

// NewManager creates a manager. Nothing starts until Start.
func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// Start creates the pipe pair and starts the child.
func (m *Manager) Start(ctx context.Context) error {
	childIn, toChild, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("failed to create input pipe: %w", err)
	}
	fromChild, childOut, err := os.Pipe()
	if err != nil {
		_ = iox.CloseAll(childIn, toChild)
		return fmt.Errorf("failed to create output pipe: %w", err)
	}

	m.cmd = exec.CommandContext(ctx, m.config.Path, m.config.Args...)
	// ExtraFiles[i] becomes descriptor 3+i in the child.
	m.cmd.ExtraFiles = []*os.File{childIn, childOut}
	if len(m.config.Env) > 0 {
		m.cmd.Env = deduplicateEnv(append(os.Environ(), m.config.Env...))
	}

	stderr, err := m.cmd.StderrPipe()
	if err != nil {
		_ = iox.CloseAll(childIn, toChild, fromChild, childOut)
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	m.stderr = stderr

	if err := m.cmd.Start(); err != nil {
		_ = iox.CloseAll(childIn, toChild, fromChild, childOut)
		m.cmd = nil
		return fmt.Errorf("failed to start peer: %w", err)
	}

	// The child holds its own copies now. Closing ours lets each side see
	// end of stream when the other exits.
	if err := iox.CloseAll(childIn, childOut); err != nil {
		_ = m.Kill()
		_ = iox.CloseAll(toChild, fromChild)
		return fmt.Errorf("failed to close child ends: %w", err)
	}
	m.toChild = toChild
	m.fromChild = fromChild
	return nil
}

// FDs returns the descriptors for the local sink: fdin reads what the
// child writes, fdout reaches the child. Both are -1 before Start.
func (m *Manager) FDs() (fdin, fdout int) {
	if m.toChild == nil {
		return -1, -1
	}
	return int(m.fromChild.Fd()), int(m.toChild.Fd())
}

// CloseFDs closes the parent's ends. The child then reads end of stream.
func (m *Manager) CloseFDs() error {
	if m.toChild == nil {
		return nil
	}
	err := iox.CloseAll(m.toChild, m.fromChild)
	m.toChild, m.fromChild = nil, nil
	return err
}

// Wait waits for the child to exit and returns the result.
// Must be called after Start.
func (m *Manager) Wait() (*Result, error) {
	if m.cmd == nil {
		return nil, errors.New("peer not started")
	}

	stderrBytes, _ := io.ReadAll(m.stderr)
	err := m.cmd.Wait()

	result := &Result{Stderr: stderrBytes}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("peer wait failed: %w", err)
		}
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
	}
	return result, nil
}

// Kill terminates the child.
func (m *Manager) Kill() error {
	if m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Kill()
	}
	return nil
}

// deduplicateEnv keeps the last occurrence of each variable so appended
// settings win over inherited ones.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
