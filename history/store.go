// Package history keeps a dataset of completed runs, on the local
// filesystem or in S3, in lode's Hive-partitioned JSONL layout:
//
//	<root>/datasets/<dataset>/.../day=2026-03-01/outcome=success/...
//
// A Store is an adapter.Adapter, so ipcpipe run appends to it the same
// way it notifies webhooks and Redis.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/ipcpipe/adapter"
)

// Defaults.
const (
	DefaultDataset = "ipcpipe-runs"
	DefaultRetries = 3
)

// RecordKindRun marks run records in the dataset.
const RecordKindRun = "run"

var partitionKeys = []string{"day", "outcome"}

// Config configures a Store.
type Config struct {
	// Dataset is the dataset ID. Defaults to DefaultDataset.
	Dataset string
	// Retries is how often a write failing with a timeout, throttling or a
	// network error is retried. Defaults to DefaultRetries.
	Retries int
}

// S3Config locates a dataset in S3 or an S3-compatible store.
type S3Config struct {
	Bucket string
	Prefix string
	// Region is optional; the default AWS chain applies when empty.
	Region string
	// Endpoint overrides the S3 endpoint (MinIO, R2, ...).
	Endpoint string
	// UsePathStyle puts the bucket in the path. Most S3-compatible
	// providers need it.
	UsePathStyle bool
}

// Validate checks that the bucket is set.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path splits "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(path, "s3://"), "/")
	return bucket, prefix
}

// Store appends and queries run records.
type Store struct {
	dataset lode.Dataset
	name    string
	retries int

	mu sync.Mutex // serializes writes
}

var _ adapter.Adapter = (*Store)(nil)

// NewStore creates a store on factory.
func NewStore(cfg Config, factory lode.StoreFactory) (*Store, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.Retries <= 0 {
		cfg.Retries = DefaultRetries
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(cfg.Dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", cfg.Dataset, err)
	}
	return &Store{dataset: ds, name: cfg.Dataset, retries: cfg.Retries}, nil
}

// NewFSStore creates a store rooted at a local directory.
func NewFSStore(cfg Config, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrap("init", cfg.Dataset, err)
	}
	return NewStore(cfg, lode.NewFSFactory(root))
}

// NewS3Store creates a store in S3 using the default AWS credential chain.
func NewS3Store(ctx context.Context, cfg Config, s3cfg S3Config) (*Store, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return NewStore(cfg, func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix})
	})
}

// Publish appends ev as one record. Transient storage failures are
// retried.
func (s *Store) Publish(ctx context.Context, ev *adapter.RunCompletedEvent) error {
	record, err := toRecord(ev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return adapter.Retry(ctx, "history", s.retries, func(ctx context.Context) error {
		_, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{})
		if err = wrap("write", s.name, err); err != nil && !Retriable(err) {
			return &adapter.PermanentError{Err: err}
		}
		return err
	})
}

// Close is a no-op; datasets hold no open resources.
func (s *Store) Close() error {
	return nil
}

// toRecord flattens ev into a map carrying the partition keys.
func toRecord(ev *adapter.RunCompletedEvent) (map[string]any, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode run record: %w", err)
	}
	record := make(map[string]any)
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("encode run record: %w", err)
	}
	record["record_kind"] = RecordKindRun
	record["day"] = dayOf(ev.Timestamp)
	if ev.Outcome == "" {
		record["outcome"] = "unknown"
	}
	return record, nil
}

// dayOf returns the UTC date of an RFC 3339 timestamp, or today.
func dayOf(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t = time.Now()
	}
	return t.UTC().Format(time.DateOnly)
}
