package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pithecene-io/ipcpipe/adapter"
	"github.com/pithecene-io/ipcpipe/adapter/redis"
	"github.com/pithecene-io/ipcpipe/adapter/webhook"
	"github.com/pithecene-io/ipcpipe/capture"
	"github.com/pithecene-io/ipcpipe/cli/config"
	"github.com/pithecene-io/ipcpipe/history"
	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/metrics"
)

// CaptureSummary reports what a wire tap recorded.
type CaptureSummary struct {
	Path    string         `json:"path"`
	Mode    string         `json:"mode"`
	Records uint64         `json:"records"`
	Stats   *capture.Stats `json:"stats,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// captureTap is a capture file written directly or through a Buffered
// queue.
type captureTap struct {
	path     string
	mode     string
	writer   *capture.Writer
	buffered *capture.Buffered
}

// openCapture creates the capture file at path. It returns nil when path
// is empty.
func openCapture(cfg config.CaptureConfig, path, mode, endpoint string, logger *log.Logger) (*captureTap, error) {
	if path == "" {
		return nil, nil
	}
	if mode == "" {
		mode = config.CaptureDirect
	}
	w, err := capture.Create(path, endpoint)
	if err != nil {
		return nil, err
	}
	t := &captureTap{path: path, mode: mode, writer: w}

	switch mode {
	case config.CaptureDirect:
	case config.CaptureBuffered:
		bc := capture.DefaultBufferedConfig()
		if cfg.MaxRecords > 0 {
			bc.MaxRecords = cfg.MaxRecords
		}
		if cfg.MaxBytes > 0 {
			bc.MaxBytes = cfg.MaxBytes
		}
		bc.Logger = logger
		if t.buffered, err = capture.NewBuffered(w, bc); err != nil {
			_ = w.Close()
			return nil, err
		}
	default:
		_ = w.Close()
		return nil, fmt.Errorf("unknown capture mode %q", mode)
	}
	return t, nil
}

func (t *captureTap) tap() ipc.FrameTap {
	if t.buffered != nil {
		return t.buffered
	}
	return t.writer
}

// close flushes and closes the file.
func (t *captureTap) close() *CaptureSummary {
	s := &CaptureSummary{Path: t.path, Mode: t.mode}
	var err error
	if t.buffered != nil {
		err = t.buffered.Close()
		stats := t.buffered.Stats()
		s.Stats = &stats
		s.Records = uint64(stats.Persisted)
	} else {
		err = t.writer.Close()
		s.Records = t.writer.Count()
	}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// serveMetrics serves reg on addr at /metrics until stop is called.
func serveMetrics(addr string, reg *prometheus.Registry, logger *log.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", map[string]any{"error": err.Error()})
		}
	}()
	logger.Info("serving metrics", map[string]any{"addr": ln.Addr().String()})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// writeMetricsFile writes the text exposition of g to path.
func writeMetricsFile(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := metrics.WriteText(f, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// buildNotifier creates one adapter per notify entry.
func buildNotifier(cfgs []config.NotifyConfig) (adapter.Multi, error) {
	var m adapter.Multi
	for i, n := range cfgs {
		retries := webhook.DefaultRetries
		if n.Retries != nil {
			retries = *n.Retries
		}

		var (
			a   adapter.Adapter
			err error
		)
		switch n.Type {
		case config.NotifyWebhook:
			a, err = webhook.New(webhook.Config{
				URL:     n.URL,
				Headers: n.Headers,
				Timeout: n.Timeout.Duration,
				Retries: retries,
			})
		case config.NotifyRedis:
			a, err = redis.New(redis.Config{
				URL:        n.URL,
				Channel:    n.Channel,
				HistoryKey: n.HistoryKey,
				HistoryLen: n.HistoryLen,
				Timeout:    n.Timeout.Duration,
				Retries:    retries,
			})
		default:
			err = fmt.Errorf("unknown type %q", n.Type)
		}
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("notify[%d]: %w", i, err)
		}
		m = append(m, a)
	}
	return m, nil
}

// openHistory opens the configured history store, or returns nil when
// none is configured.
func openHistory(ctx context.Context, h config.HistoryConfig) (*history.Store, error) {
	cfg := history.Config{Dataset: h.Dataset}
	switch {
	case h.S3 != nil:
		return history.NewS3Store(ctx, cfg, history.S3Config{
			Bucket:       h.S3.Bucket,
			Prefix:       h.S3.Prefix,
			Region:       h.S3.Region,
			Endpoint:     h.S3.Endpoint,
			UsePathStyle: h.S3.PathStyle,
		})
	case h.Path != "":
		return history.NewFSStore(cfg, h.Path)
	default:
		return nil, nil
	}
}

// firstNonEmpty returns the first non-empty value.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
