// Package redis publishes run-completed events on a Redis pub/sub channel
// and, optionally, appends them to a capped list for consumers that were
// not subscribed when the run ended.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/ipcpipe/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "ipcpipe:run_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name.
	Channel string
	// HistoryKey, when set, names a list the event is also pushed onto.
	HistoryKey string
	// HistoryLen caps the list. Zero keeps every event.
	HistoryLen int64
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
}

// Adapter publishes run completion events via Redis PUBLISH.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter. It does not connect until the first
// Publish.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}

	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	if cfg.HistoryLen < 0 {
		return nil, fmt.Errorf("history length must be >= 0, got %d", cfg.HistoryLen)
	}

	return &Adapter{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Publish sends the event as JSON to the configured channel and history
// list in one pipeline.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()

		_, err := a.client.Pipelined(publishCtx, func(p goredis.Pipeliner) error {
			p.Publish(publishCtx, a.config.Channel, body)
			if a.config.HistoryKey != "" {
				p.LPush(publishCtx, a.config.HistoryKey, body)
				if a.config.HistoryLen > 0 {
					p.LTrim(publishCtx, a.config.HistoryKey, 0, a.config.HistoryLen-1)
				}
			}
			return nil
		})
		if errors.Is(err, goredis.ErrClosed) {
			return &adapter.PermanentError{Err: err}
		}
		return err
	})
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
