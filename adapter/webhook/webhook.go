// Package webhook delivers run-completed events to an HTTP endpoint, one
// JSON document per POST.
//
// A 4xx answer ends delivery at once. Transport failures and any other
// non-2xx status go through adapter.Retry.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pithecene-io/ipcpipe/adapter"
	"github.com/pithecene-io/ipcpipe/iox"
)

// Delivery defaults.
const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
)

// maxDrain bounds how much of a response body is read before the
// connection is handed back to the pool.
const maxDrain = 64 << 10

// Config configures a webhook Adapter.
type Config struct {
	// URL receives the POST. It must be http or https.
	URL string
	// Headers are set on every request after the defaults, so they may
	// override Content-Type and User-Agent.
	Headers map[string]string
	// Timeout bounds a single attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Retries is the number of attempts after the first.
	Retries int
}

// Adapter posts events to Config.URL.
type Adapter struct {
	config Config
	header http.Header
	client *http.Client
}

var _ adapter.Adapter = (*Adapter)(nil)

// New checks cfg and builds an Adapter.
func New(cfg Config) (*Adapter, error) {
	switch {
	case cfg.URL == "":
		return nil, errors.New("webhook: url is required")
	case cfg.Retries < 0:
		return nil, fmt.Errorf("webhook: retries must be >= 0, got %d", cfg.Retries)
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("webhook: unsupported scheme %q", u.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", "ipcpipe")
	for k, v := range cfg.Headers {
		h.Set(k, v)
	}
	return &Adapter{
		config: cfg,
		header: h,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook: status %d %s", e.Code, http.StatusText(e.Code))
}

// clientError reports a 4xx status; resending the same body cannot help.
func (e *StatusError) clientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// Publish posts event, retrying on transport errors and non-4xx statuses.
func (a *Adapter) Publish(ctx context.Context, event *adapter.RunCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: encode event: %w", err)
	}
	return adapter.Retry(ctx, "webhook", a.config.Retries, func(ctx context.Context) error {
		err := a.post(ctx, body)
		if se := (*StatusError)(nil); errors.As(err, &se) && se.clientError() {
			return &adapter.PermanentError{Err: err}
		}
		return err
	})
}

func (a *Adapter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	req.Header = a.header.Clone()

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)

	if resp.StatusCode/100 != 2 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Close drops idle keep-alive connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
