package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/types"
)

// Target is what a Source drives, normally an *endpoint.Sink.
type Target interface {
	ChangeState(t types.StateChange) types.StateChangeReturn
	SendEvent(ev *types.Event) bool
	Render(b *types.Buffer) types.FlowReturn
	Query(q *types.Query) bool
}

// SourceConfig configures a Source.
type SourceConfig struct {
	// Buffers is the number of buffers to push.
	Buffers int
	// BufferSize is the payload size of each buffer in bytes.
	BufferSize int
	// Framerate sets buffer timestamps and durations. It does not pace
	// the push loop.
	Framerate int
	// StreamID names the stream in the stream-start event.
	StreamID string
	// EOSTimeout bounds the wait for the remote eos message.
	EOSTimeout time.Duration
}

// DefaultSourceConfig returns a config pushing 100 buffers of 4 KiB at
// 30 frames per second.
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		Buffers:    100,
		BufferSize: 4096,
		Framerate:  30,
		StreamID:   "ipcpipe-test",
		EOSTimeout: 10 * time.Second,
	}
}

// Validate checks the config.
func (c SourceConfig) Validate() error {
	switch {
	case c.Buffers < 0:
		return fmt.Errorf("buffers must be >= 0, got %d", c.Buffers)
	case c.BufferSize < 0:
		return fmt.Errorf("buffer size must be >= 0, got %d", c.BufferSize)
	case c.Framerate <= 0:
		return fmt.Errorf("framerate must be positive, got %d", c.Framerate)
	}
	return nil
}

// Errors returned by Source.Run.
var (
	// ErrStateChange is returned when the target refuses a transition.
	ErrStateChange = errors.New("state change failed")
	// ErrFlow is returned when a buffer is not accepted.
	ErrFlow = errors.New("buffer not accepted")
	// ErrNoEOS is returned when the remote eos message does not arrive.
	ErrNoEOS = errors.New("no eos from remote")
	// ErrRemote is returned when the remote posts an error.
	ErrRemote = errors.New("remote error")
)

// Transition is one state change and its result.
type Transition struct {
	Change string `json:"change"`
	Result string `json:"result"`
}

// Report summarizes a Source run.
type Report struct {
	Transitions []Transition   `json:"transitions"`
	Pushed      int            `json:"pushed"`
	Flow        map[string]int `json:"flow"`
	Bytes       int64          `json:"bytes"`
	Position    int64          `json:"position"`
	PositionOK  bool           `json:"position_ok"`
	Duration    int64          `json:"duration"`
	DurationOK  bool           `json:"duration_ok"`
	EOS         bool           `json:"eos"`
	Messages    map[string]int `json:"messages"`
	Errors      []string       `json:"errors,omitempty"`
	Elapsed     time.Duration  `json:"elapsed"`
}

// Source plays a short synthetic stream into a Target: it walks the
// target to PLAYING, pushes stream-start, a segment and the configured
// buffers, queries the position, sends EOS, waits for the remote eos
// message on bus, then walks back to NULL.
type Source struct {
	cfg    SourceConfig
	bus    *Bus
	logger *log.Logger
}

// NewSource creates a source. bus must be the pipeline behind the
// target's endpoint so the eos message can be observed.
func NewSource(cfg SourceConfig, bus *Bus, logger *log.Logger) *Source {
	if logger == nil {
		logger = log.Nop()
	}
	return &Source{cfg: cfg, bus: bus, logger: logger}
}

// Run plays the stream. The report is filled as far as the run got, also
// when an error is returned. The target is always walked back to NULL.
func (s *Source) Run(ctx context.Context, t Target) (*Report, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &Report{Flow: make(map[string]int), Messages: make(map[string]int)}
	defer func() {
		r.Elapsed = time.Since(start)
		for _, m := range s.bus.Messages() {
			r.Messages[m.Type.String()]++
		}
		for _, e := range s.bus.Errors() {
			r.Errors = append(r.Errors, e.Error())
		}
	}()

	state := types.StateNull
	defer func() {
		for _, step := range types.Steps(state, types.StateNull) {
			s.change(t, r, step)
		}
	}()

	for _, step := range types.Steps(types.StateNull, types.StatePlaying) {
		if ret := s.change(t, r, step); ret == types.StateChangeFailure {
			return r, fmt.Errorf("%s: %w", step, ErrStateChange)
		}
		state = step.Next()
	}

	if !t.SendEvent(types.NewStreamStartEvent(s.cfg.StreamID)) {
		return r, errors.New("stream-start not accepted")
	}
	if !t.SendEvent(types.NewSegmentEvent(1.0, 0, types.ClockTimeNone)) {
		return r, errors.New("segment not accepted")
	}

	if err := s.push(ctx, t, r); err != nil {
		return r, err
	}

	q := types.NewPositionQuery()
	if r.PositionOK = t.Query(q); r.PositionOK {
		r.Position = q.Position()
	}

	if !t.SendEvent(types.NewEOSEvent()) {
		return r, errors.New("eos not accepted")
	}
	if err := s.waitEOS(ctx); err != nil {
		return r, err
	}
	r.EOS = true

	d := types.NewDurationQuery()
	if r.DurationOK = t.Query(d); r.DurationOK {
		r.Duration = d.Duration()
	}
	return r, nil
}

func (s *Source) change(t Target, r *Report, step types.StateChange) types.StateChangeReturn {
	ret := t.ChangeState(step)
	r.Transitions = append(r.Transitions, Transition{Change: step.String(), Result: ret.String()})
	s.logger.Debug("state change", map[string]any{"transition": step.String(), "result": ret.String()})
	return ret
}

func (s *Source) push(ctx context.Context, t Target, r *Report) error {
	frame := uint64(time.Second) / uint64(s.cfg.Framerate)
	for i := 0; i < s.cfg.Buffers; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := types.NewBuffer(payload(i, s.cfg.BufferSize))
		b.PTS = uint64(i) * frame
		b.DTS = b.PTS
		b.Duration = frame
		b.Offset = uint64(i)
		b.OffsetEnd = uint64(i + 1)
		if i == 0 {
			b.Flags |= types.BufferFlagDiscont
		}

		ret := t.Render(b)
		r.Flow[ret.String()]++
		if ret != types.FlowOK {
			s.logger.Warn("buffer not accepted", map[string]any{"index": i, "flow": ret.String()})
			return fmt.Errorf("buffer %d: %s: %w", i, ret, ErrFlow)
		}
		r.Pushed++
		r.Bytes += int64(len(b.Data))
	}
	return nil
}

func (s *Source) waitEOS(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.EOSTimeout)
	defer timer.Stop()
	select {
	case <-s.bus.EOS():
		return nil
	case <-s.bus.Failed():
		return ErrRemote
	case <-timer.C:
		return ErrNoEOS
	case <-ctx.Done():
		return ctx.Err()
	}
}

// payload fills n bytes with a pattern derived from the buffer index.
func payload(index, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(index + i)
	}
	return b
}
