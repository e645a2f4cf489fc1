package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/adapter"
	"github.com/pithecene-io/ipcpipe/cli/config"
	"github.com/pithecene-io/ipcpipe/cli/render"
	"github.com/pithecene-io/ipcpipe/endpoint"
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/metrics"
	"github.com/pithecene-io/ipcpipe/peer"
	"github.com/pithecene-io/ipcpipe/pipeline"
)

// DefaultPeerTimeout bounds the wait for the peer after the run.
const DefaultPeerTimeout = 5 * time.Second

// maxStderrTail bounds how much peer stderr a failed summary carries.
const maxStderrTail = 4096

// RunSummary is the result of a run.
type RunSummary struct {
	RunID        string           `json:"run_id"`
	Outcome      peer.Outcome     `json:"outcome"`
	Error        string           `json:"error,omitempty"`
	Report       *pipeline.Report `json:"report,omitempty"`
	Upstream     int              `json:"upstream_events"`
	Metrics      metrics.Snapshot `json:"metrics"`
	Capture      *CaptureSummary  `json:"capture,omitempty"`
	PeerExitCode int              `json:"peer_exit_code"`
	PeerStderr   string           `json:"peer_stderr,omitempty"`
	Duration     time.Duration    `json:"duration"`
}

// RunCommand returns the run command. It starts the peer, plays a
// synthetic stream through a sink endpoint connected to it and reports
// how the run went.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Play a test stream across a process boundary",
		Flags: []cli.Flag{
			ConfigFlag,
			LogLevelFlag,
			FormatFlag,
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: random UUID)",
			},
			&cli.IntFlag{
				Name:  "buffers",
				Usage: "Number of buffers to push",
			},
			&cli.IntFlag{
				Name:  "buffer-size",
				Usage: "Payload size of each buffer in bytes",
			},
			&cli.IntFlag{
				Name:  "framerate",
				Usage: "Frames per second used for timestamps",
			},
			&cli.DurationFlag{
				Name:  "eos-timeout",
				Usage: "How long to wait for the remote eos message",
			},
			&cli.DurationFlag{
				Name:  "ack-time",
				Usage: "Acknowledgement timeout on both sides",
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Write the sink's frames to a capture file",
			},
			&cli.StringFlag{
				Name:  "capture-mode",
				Usage: "Capture mode: direct, buffered",
			},
			&cli.StringFlag{
				Name:  "peer-capture",
				Usage: "Have the peer write its frames to a capture file",
			},
			&cli.StringFlag{
				Name:  "metrics-listen",
				Usage: "Serve Prometheus metrics on this address during the run",
			},
			&cli.StringFlag{
				Name:  "metrics-output",
				Usage: "Write Prometheus metrics to this file after the run",
			},
			&cli.StringFlag{
				Name:  "history",
				Usage: "Append the run to a history dataset under this directory",
			},
			&cli.StringFlag{
				Name:  "peer",
				Usage: "Peer binary (default: this executable)",
			},
			&cli.DurationFlag{
				Name:  "peer-timeout",
				Usage: "How long to wait for the peer to exit before killing it",
				Value: DefaultPeerTimeout,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the summary",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	start := time.Now()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg, "sink")
	if err != nil {
		return err
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	sinkCfg := endpoint.DefaultSinkConfig()
	cfg.ApplySink(&sinkCfg)
	if c.IsSet("ack-time") {
		sinkCfg.AckTime = c.Duration("ack-time")
	}

	sourceCfg, err := sourceConfig(c, cfg)
	if err != nil {
		return err
	}

	var renderer *render.Renderer
	if !c.Bool("quiet") {
		if renderer, err = render.NewRenderer(c); err != nil {
			return usageError("%v", err)
		}
	}

	notifier, err := buildNotifier(cfg.Notify)
	if err != nil {
		return usageError("%v", err)
	}
	defer func() { _ = notifier.Close() }()

	if path := c.String("history"); path != "" {
		cfg.History = config.HistoryConfig{Dataset: cfg.History.Dataset, Path: path}
	}
	store, err := openHistory(c.Context, cfg.History)
	if err != nil {
		return usageError("history: %v", err)
	}
	if store != nil {
		notifier = append(notifier, store)
	}

	peerPath, err := peerExecutable(c, cfg)
	if err != nil {
		return usageError("%v", err)
	}

	tap, err := openCapture(cfg.Capture,
		firstNonEmpty(c.String("capture"), cfg.Capture.Path),
		firstNonEmpty(c.String("capture-mode"), cfg.Capture.Mode),
		"sink", logger.Named("capture"))
	if err != nil {
		return usageError("capture: %v", err)
	}

	collector := metrics.NewCollector("sink", sinkCfg.Name)
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg, collector); err != nil {
		closeCapture(tap, logger)
		return fmt.Errorf("register metrics: %w", err)
	}
	if addr := firstNonEmpty(c.String("metrics-listen"), cfg.Metrics.Listen); addr != "" {
		stopMetrics, err := serveMetrics(addr, reg, logger)
		if err != nil {
			closeCapture(tap, logger)
			return usageError("%v", err)
		}
		defer stopMetrics()
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := peer.NewManager(peer.Config{
		Path: peerPath,
		Args: peerArgs(c, cfg),
		Env:  []string{"IPCPIPE_RUN_ID=" + runID},
	})
	if err := mgr.Start(ctx); err != nil {
		closeCapture(tap, logger)
		return cli.Exit(err.Error(), peer.ExitCodeCrash)
	}
	logger.Info("peer started", map[string]any{"path": peerPath, "run_id": runID})

	// Wait drains stderr, so it runs for the whole run. A chatty peer
	// would otherwise block on a full pipe.
	exited := make(chan peerExit, 1)
	go func() {
		res, err := mgr.Wait()
		exited <- peerExit{result: res, err: err}
	}()

	sinkCfg.FdIn, sinkCfg.FdOut = mgr.FDs()
	bus := pipeline.NewBus(logger.Named("bus"))
	opts := []endpoint.Option{
		endpoint.WithLogger(logger.Named(sinkCfg.Name)),
		endpoint.WithMetrics(collector),
	}
	if tap != nil {
		opts = append(opts, endpoint.WithTap(tap.tap()))
	}
	sink := endpoint.NewSink(sinkCfg, bus, opts...)

	report, runErr := pipeline.NewSource(sourceCfg, bus, logger.Named("source")).Run(ctx, sink)
	if err := sink.Release(); err != nil {
		logger.Warn("release failed", map[string]any{"error": err.Error()})
	}
	if err := mgr.CloseFDs(); err != nil {
		logger.Warn("close descriptors failed", map[string]any{"error": err.Error()})
	}
	exit := awaitPeer(exited, mgr, c.Duration("peer-timeout"), logger)

	summary := &RunSummary{
		RunID:        runID,
		Report:       report,
		Upstream:     len(bus.Events()),
		Metrics:      collector.Snapshot(),
		PeerExitCode: exit.code(),
	}
	if tap != nil {
		summary.Capture = tap.close()
	}
	summary.Outcome = peer.DetermineOutcome(summary.PeerExitCode, runErr == nil)
	if err := errors.Join(runErr, exit.err); err != nil {
		summary.Error = err.Error()
	}
	if summary.Outcome.Status != peer.StatusSuccess && exit.result != nil {
		summary.PeerStderr = tail(exit.result.Stderr, maxStderrTail)
	}
	summary.Duration = time.Since(start)

	logger.Info("run finished", map[string]any{
		"run_id":    runID,
		"outcome":   string(summary.Outcome.Status),
		"peer_exit": summary.PeerExitCode,
		"duration":  summary.Duration.String(),
	})

	if path := firstNonEmpty(c.String("metrics-output"), cfg.Metrics.Output); path != "" {
		if err := writeMetricsFile(path, reg); err != nil {
			logger.Warn("metrics output failed", map[string]any{"error": err.Error()})
		}
	}

	// Notification failures are logged; they do not change the outcome.
	if len(notifier) > 0 {
		if err := notifier.Publish(context.WithoutCancel(ctx), completedEvent(summary)); err != nil {
			logger.Error("notify failed", map[string]any{"error": err.Error()})
		}
	}

	if renderer != nil {
		if err := renderer.Render(summary); err != nil {
			return fmt.Errorf("render: %w", err)
		}
	}

	code := summary.Outcome.Status.ExitCode()
	if code == peer.ExitCodeOK {
		return nil
	}
	return cli.Exit("", code)
}

// sourceConfig applies the config file and then the flags.
func sourceConfig(c *cli.Context, cfg *config.Config) (pipeline.SourceConfig, error) {
	sc := pipeline.DefaultSourceConfig()
	cfg.ApplySource(&sc)
	if c.IsSet("buffers") {
		sc.Buffers = c.Int("buffers")
	}
	if c.IsSet("buffer-size") {
		sc.BufferSize = c.Int("buffer-size")
	}
	if c.IsSet("framerate") {
		sc.Framerate = c.Int("framerate")
	}
	if c.IsSet("eos-timeout") {
		sc.EOSTimeout = c.Duration("eos-timeout")
	}
	if err := sc.Validate(); err != nil {
		return sc, usageError("%v", err)
	}
	return sc, nil
}

// peerExecutable returns --peer, run.peer or this binary.
func peerExecutable(c *cli.Context, cfg *config.Config) (string, error) {
	if p := firstNonEmpty(c.String("peer"), cfg.Run.Peer); p != "" {
		return p, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve peer binary: %w", err)
	}
	return exe, nil
}

// peerArgs builds the peer command line. The config file is passed on so
// both halves agree on shared settings.
func peerArgs(c *cli.Context, cfg *config.Config) []string {
	args := []string{
		"peer",
		"--fdin", strconv.Itoa(peer.ChildFdIn),
		"--fdout", strconv.Itoa(peer.ChildFdOut),
		"--log-level", levelName(c, cfg),
	}
	if p := c.String("config"); p != "" {
		args = append(args, "--config", p)
	}
	if c.IsSet("ack-time") {
		args = append(args, "--ack-time", c.Duration("ack-time").String())
	}
	if p := c.String("peer-capture"); p != "" {
		args = append(args, "--capture", p)
	}
	return args
}

type peerExit struct {
	result *peer.Result
	err    error
}

func (e peerExit) code() int {
	if e.result == nil {
		return -1
	}
	return e.result.ExitCode
}

// awaitPeer waits up to timeout for the peer, then kills it.
func awaitPeer(exited <-chan peerExit, mgr *peer.Manager, timeout time.Duration, logger *log.Logger) peerExit {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-exited:
		return e
	case <-timer.C:
		logger.Warn("peer did not exit, killing it", map[string]any{"timeout": timeout.String()})
		_ = mgr.Kill()
		return <-exited
	}
}

func closeCapture(tap *captureTap, logger *log.Logger) {
	if tap == nil {
		return
	}
	if s := tap.close(); s.Error != "" {
		logger.Warn("capture close failed", map[string]any{"error": s.Error})
	}
}

// completedEvent builds the notification for s.
func completedEvent(s *RunSummary) *adapter.RunCompletedEvent {
	ev := &adapter.RunCompletedEvent{
		SchemaVersion: adapter.SchemaVersion,
		EventType:     adapter.EventTypeRunCompleted,
		RunID:         s.RunID,
		Outcome:       string(s.Outcome.Status),
		Message:       s.Outcome.Message,
		ExitCode:      s.Outcome.Status.ExitCode(),
		PeerExitCode:  s.PeerExitCode,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationMs:    s.Duration.Milliseconds(),
	}
	if s.Report != nil {
		ev.Buffers = s.Report.Pushed
		ev.Bytes = s.Report.Bytes
		ev.PositionNs = s.Report.Position
		ev.EOS = s.Report.EOS
	}
	if s.Capture != nil {
		ev.CapturePath = s.Capture.Path
	}
	return ev
}

// tail returns at most the last n bytes of b.
func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
