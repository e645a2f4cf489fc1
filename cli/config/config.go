package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/ipcpipe/endpoint"
	"github.com/pithecene-io/ipcpipe/log"
	"github.com/pithecene-io/ipcpipe/pipeline"
)

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "ipcpipe.yaml"

// Config represents an ipcpipe.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Sink     EndpointConfig `yaml:"sink"`
	Src      EndpointConfig `yaml:"src"`
	Capture  CaptureConfig  `yaml:"capture"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Run      RunConfig      `yaml:"run"`
	Notify   []NotifyConfig `yaml:"notify"`
	History  HistoryConfig  `yaml:"history"`
}

// EndpointConfig holds the tunables shared by both endpoints.
type EndpointConfig struct {
	Name          string   `yaml:"name"`
	ReadChunkSize int      `yaml:"read_chunk_size"`
	AckTime       Duration `yaml:"ack_time"`
}

// Capture modes.
const (
	CaptureDirect   = "direct"
	CaptureBuffered = "buffered"
)

// CaptureConfig configures the wire tap.
type CaptureConfig struct {
	Path       string `yaml:"path"`
	Mode       string `yaml:"mode"` // direct (default) or buffered
	MaxRecords int    `yaml:"max_records"`
	MaxBytes   int64  `yaml:"max_bytes"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	// Listen serves /metrics on this address while the run is active.
	Listen string `yaml:"listen"`
	// Output writes the final exposition to this file.
	Output string `yaml:"output"`
}

// RunConfig holds defaults for the synthetic stream pushed by ipcpipe run.
type RunConfig struct {
	Buffers    *int     `yaml:"buffers,omitempty"`
	BufferSize *int     `yaml:"buffer_size,omitempty"`
	Framerate  *int     `yaml:"framerate,omitempty"`
	StreamID   string   `yaml:"stream_id"`
	EOSTimeout Duration `yaml:"eos_timeout"`
	// Peer is the executable started as the remote half. Defaults to the
	// running binary.
	Peer string `yaml:"peer"`
}

// Notification adapter types.
const (
	NotifyWebhook = "webhook"
	NotifyRedis   = "redis"
)

// NotifyConfig configures one run-completed notification adapter.
type NotifyConfig struct {
	Type       string            `yaml:"type"`
	URL        string            `yaml:"url"`
	Channel    string            `yaml:"channel,omitempty"`
	HistoryKey string            `yaml:"history_key,omitempty"`
	HistoryLen int64             `yaml:"history_len,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
	Timeout    Duration          `yaml:"timeout,omitempty"`
	Retries    *int              `yaml:"retries,omitempty"`
}

// HistoryConfig configures the run history dataset. Path and S3 are
// exclusive; with neither set no history is kept.
type HistoryConfig struct {
	Dataset string    `yaml:"dataset"`
	Path    string    `yaml:"path"`
	S3      *S3Config `yaml:"s3,omitempty"`
}

// S3Config locates a history dataset in S3 or an S3-compatible store.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// Enabled reports whether a history store is configured.
func (h HistoryConfig) Enabled() bool {
	return h.Path != "" || h.S3 != nil
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "1m30s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", node.Line, s)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Validate checks values that cannot be checked while parsing.
func (c *Config) Validate() error {
	var errs []error
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("log_level: %w", err))
		}
	}
	for name, e := range map[string]EndpointConfig{"sink": c.Sink, "src": c.Src} {
		if e.ReadChunkSize < 0 {
			errs = append(errs, fmt.Errorf("%s.read_chunk_size must be >= 0, got %d", name, e.ReadChunkSize))
		}
	}
	switch c.Capture.Mode {
	case "", CaptureDirect, CaptureBuffered:
	default:
		errs = append(errs, fmt.Errorf("capture.mode must be %q or %q, got %q", CaptureDirect, CaptureBuffered, c.Capture.Mode))
	}
	for i, n := range c.Notify {
		switch n.Type {
		case NotifyWebhook, NotifyRedis:
		default:
			errs = append(errs, fmt.Errorf("notify[%d].type must be %q or %q, got %q", i, NotifyWebhook, NotifyRedis, n.Type))
		}
		if n.URL == "" {
			errs = append(errs, fmt.Errorf("notify[%d].url is required", i))
		}
	}
	if c.History.Path != "" && c.History.S3 != nil {
		errs = append(errs, errors.New("history: path and s3 are exclusive"))
	}
	if c.History.S3 != nil && c.History.S3.Bucket == "" {
		errs = append(errs, errors.New("history.s3.bucket is required"))
	}
	return errors.Join(errs...)
}

// ApplySink overlays the non-zero sink values on cfg.
func (c *Config) ApplySink(cfg *endpoint.SinkConfig) {
	if c.Sink.Name != "" {
		cfg.Name = c.Sink.Name
	}
	if c.Sink.ReadChunkSize > 0 {
		cfg.ReadChunkSize = c.Sink.ReadChunkSize
	}
	if c.Sink.AckTime.Duration > 0 {
		cfg.AckTime = c.Sink.AckTime.Duration
	}
}

// ApplySrc overlays the non-zero src values on cfg.
func (c *Config) ApplySrc(cfg *endpoint.SrcConfig) {
	if c.Src.Name != "" {
		cfg.Name = c.Src.Name
	}
	if c.Src.ReadChunkSize > 0 {
		cfg.ReadChunkSize = c.Src.ReadChunkSize
	}
	if c.Src.AckTime.Duration > 0 {
		cfg.AckTime = c.Src.AckTime.Duration
	}
}

// ApplySource overlays the run values that are set on cfg.
func (c *Config) ApplySource(cfg *pipeline.SourceConfig) {
	if c.Run.Buffers != nil {
		cfg.Buffers = *c.Run.Buffers
	}
	if c.Run.BufferSize != nil {
		cfg.BufferSize = *c.Run.BufferSize
	}
	if c.Run.Framerate != nil {
		cfg.Framerate = *c.Run.Framerate
	}
	if c.Run.StreamID != "" {
		cfg.StreamID = c.Run.StreamID
	}
	if c.Run.EOSTimeout.Duration > 0 {
		cfg.EOSTimeout = c.Run.EOSTimeout.Duration
	}
}
