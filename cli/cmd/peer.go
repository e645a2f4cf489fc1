package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/endpoint"
	"github.com/pithecene-io/ipcpipe/metrics"
	"github.com/pithecene-io/ipcpipe/peer"
	"github.com/pithecene-io/ipcpipe/pipeline"
)

// PeerCommand returns the peer command: the remote half of a run. It
// connects a src endpoint to the given descriptors, feeds what arrives
// into a counting sink and exits once the parent closes the connection.
func PeerCommand() *cli.Command {
	return &cli.Command{
		Name:   "peer",
		Usage:  "Serve the remote half of a run (started by run)",
		Hidden: true,
		Flags: []cli.Flag{
			ConfigFlag,
			LogLevelFlag,
			&cli.IntFlag{
				Name:  "fdin",
				Usage: "Descriptor the sink writes to",
				Value: peer.ChildFdIn,
			},
			&cli.IntFlag{
				Name:  "fdout",
				Usage: "Descriptor the sink reads from",
				Value: peer.ChildFdOut,
			},
			&cli.DurationFlag{
				Name:  "ack-time",
				Usage: "Acknowledgement timeout",
			},
			&cli.IntFlag{
				Name:  "read-chunk-size",
				Usage: "Bytes read per poll",
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Write the src's frames to a capture file",
			},
			&cli.StringFlag{
				Name:  "metrics-output",
				Usage: "Write Prometheus metrics to this file on exit",
			},
		},
		Action: peerAction,
	}
}

func peerAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger, err := newLogger(c, cfg, "src")
	if err != nil {
		return err
	}

	srcCfg := endpoint.DefaultSrcConfig()
	cfg.ApplySrc(&srcCfg)
	srcCfg.FdIn = c.Int("fdin")
	srcCfg.FdOut = c.Int("fdout")
	if c.IsSet("ack-time") {
		srcCfg.AckTime = c.Duration("ack-time")
	}
	if c.IsSet("read-chunk-size") {
		srcCfg.ReadChunkSize = c.Int("read-chunk-size")
	}
	if err := srcCfg.Validate(); err != nil {
		return usageError("%v", err)
	}

	tap, err := openCapture(cfg.Capture, c.String("capture"), cfg.Capture.Mode, "src", logger.Named("capture"))
	if err != nil {
		return usageError("capture: %v", err)
	}
	defer closeCapture(tap, logger)

	collector := metrics.NewCollector("src", srcCfg.Name)
	counter := pipeline.NewCounter("counter", nil, logger.Named("counter"))
	opts := []endpoint.Option{
		endpoint.WithLogger(logger.Named(srcCfg.Name)),
		endpoint.WithMetrics(collector),
	}
	if tap != nil {
		opts = append(opts, endpoint.WithTap(tap.tap()))
	}
	src := endpoint.NewSrc(srcCfg, counter, opts...)
	counter.SetBus(src)

	if err := src.Open(); err != nil {
		return cli.Exit(err.Error(), peer.ExitCodeProtocol)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-src.Done():
	case <-ctx.Done():
		logger.Warn("interrupted", nil)
	}
	if err := src.Release(); err != nil {
		logger.Warn("release failed", map[string]any{"error": err.Error()})
	}

	stats := counter.Stats()
	logger.Info("peer finished", map[string]any{
		"buffers":       stats.Buffers,
		"bytes":         stats.Bytes,
		"state":         stats.State,
		"state_changes": stats.StateChanges,
		"eos":           stats.EOS,
		"lost":          stats.Lost,
	})

	if path := c.String("metrics-output"); path != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, collector); err == nil {
			if err := writeMetricsFile(path, reg); err != nil {
				logger.Warn("metrics output failed", map[string]any{"error": err.Error()})
			}
		}
	}

	select {
	case <-counter.Finished():
		return nil
	default:
		return cli.Exit("peer: connection ended before the pipeline returned to NULL", peer.ExitCodeProtocol)
	}
}
