package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/ipcpipe/endpoint"
	"github.com/pithecene-io/ipcpipe/pipeline"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `log_level: debug

sink:
  name: sink-a
  read_chunk_size: 8192
  ack_time: 2s

src:
  ack_time: 500ms

capture:
  path: /tmp/run.cap
  mode: buffered
  max_records: 1024
  max_bytes: 1048576

metrics:
  listen: 127.0.0.1:9464
  output: metrics.prom

run:
  buffers: 0
  buffer_size: 188
  framerate: 25
  stream_id: smoke
  eos_timeout: 3s
  peer: /usr/local/bin/ipcpipe

notify:
  - type: webhook
    url: https://hooks.example.com/ipcpipe
    headers:
      Authorization: Bearer token123
    timeout: 10s
    retries: 3
  - type: redis
    url: redis://localhost:6379/0
    channel: runs
    history_key: ipcpipe:runs
    history_len: 50

history:
  dataset: runs
  s3:
    bucket: ci-artifacts
    prefix: ipcpipe
    endpoint: http://localhost:9000
    path_style: true
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "log_level", cfg.LogLevel, "debug")
	assertEqual(t, "sink.name", cfg.Sink.Name, "sink-a")
	if cfg.Sink.ReadChunkSize != 8192 || cfg.Sink.AckTime.Duration != 2*time.Second {
		t.Errorf("sink = %+v", cfg.Sink)
	}
	if cfg.Src.AckTime.Duration != 500*time.Millisecond {
		t.Errorf("src.ack_time = %v", cfg.Src.AckTime.Duration)
	}

	assertEqual(t, "capture.mode", cfg.Capture.Mode, CaptureBuffered)
	if cfg.Capture.MaxRecords != 1024 || cfg.Capture.MaxBytes != 1<<20 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	assertEqual(t, "metrics.listen", cfg.Metrics.Listen, "127.0.0.1:9464")
	assertEqual(t, "metrics.output", cfg.Metrics.Output, "metrics.prom")

	if cfg.Run.Buffers == nil || *cfg.Run.Buffers != 0 {
		t.Error("run.buffers: an explicit zero must be kept")
	}
	if cfg.Run.EOSTimeout.Duration != 3*time.Second {
		t.Errorf("run.eos_timeout = %v", cfg.Run.EOSTimeout.Duration)
	}
	assertEqual(t, "run.peer", cfg.Run.Peer, "/usr/local/bin/ipcpipe")

	if len(cfg.Notify) != 2 {
		t.Fatalf("notify has %d entries, want 2", len(cfg.Notify))
	}
	hook := cfg.Notify[0]
	if hook.Headers["Authorization"] != "Bearer token123" || hook.Retries == nil || *hook.Retries != 3 {
		t.Errorf("notify[0] = %+v", hook)
	}
	if cfg.Notify[1].HistoryLen != 50 || cfg.Notify[1].Retries != nil {
		t.Errorf("notify[1] = %+v", cfg.Notify[1])
	}

	if !cfg.History.Enabled() || cfg.History.S3 == nil || cfg.History.S3.Bucket != "ci-artifacts" || !cfg.History.S3.PathStyle {
		t.Errorf("history = %+v", cfg.History)
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LogLevel != "" || len(cfg.Notify) != 0 {
		t.Errorf("empty file gave %+v", cfg)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"invalid yaml", "{{invalid yaml", "invalid YAML"},
		{"unknown key", "sinks:\n  name: x\n", "invalid YAML"},
		{"bad duration", "sink:\n  ack_time: soon\n", "invalid duration"},
		{"negative duration", "sink:\n  ack_time: -1s\n", "negative duration"},
		{"bad level", "log_level: loud\n", "log_level"},
		{"bad capture mode", "capture:\n  mode: lazy\n", "capture.mode"},
		{"bad notify type", "notify:\n  - type: kafka\n    url: x\n", "notify[0].type"},
		{"notify without url", "notify:\n  - type: webhook\n", "notify[0].url"},
		{"negative chunk", "src:\n  read_chunk_size: -1\n", "src.read_chunk_size"},
		{"history path and s3", "history:\n  path: /tmp/h\n  s3:\n    bucket: b\n", "exclusive"},
		{"history s3 without bucket", "history:\n  s3:\n    prefix: p\n", "history.s3.bucket"},
		{"required env", "capture:\n  path: ${IPCPIPE_UNSET_12345:?capture path}\n", "capture path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTemp(t, tt.content))
			if err == nil {
				t.Fatal("Load succeeded")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/ipcpipe.yaml"); err == nil {
		t.Fatal("Load succeeded for a missing file")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("IPCPIPE_TEST_HOOK", "https://hooks.example.com/x")

	cfg, err := Load(writeTemp(t, "notify:\n  - type: webhook\n    url: ${IPCPIPE_TEST_HOOK}\n    timeout: ${IPCPIPE_UNSET_12345:-4s}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "notify[0].url", cfg.Notify[0].URL, "https://hooks.example.com/x")
	if cfg.Notify[0].Timeout.Duration != 4*time.Second {
		t.Errorf("timeout = %v, want 4s", cfg.Notify[0].Timeout.Duration)
	}
}

func TestLoadDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadDefault("")
	if err != nil {
		t.Fatalf("LoadDefault without a file failed: %v", err)
	}
	if cfg.LogLevel != "" {
		t.Errorf("got %+v, want an empty config", cfg)
	}

	if err := os.WriteFile(DefaultPath, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadDefault("")
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	assertEqual(t, "log_level", cfg.LogLevel, "warn")

	if _, err := LoadDefault("missing.yaml"); err == nil {
		t.Error("LoadDefault succeeded for a missing explicit path")
	}
}

func TestConfig_Apply(t *testing.T) {
	buffers, framerate := 7, 60
	cfg := &Config{
		Sink: EndpointConfig{ReadChunkSize: 1024, AckTime: Duration{time.Second}},
		Src:  EndpointConfig{Name: "remote"},
		Run:  RunConfig{Buffers: &buffers, Framerate: &framerate, EOSTimeout: Duration{time.Minute}},
	}

	sink := endpoint.DefaultSinkConfig()
	cfg.ApplySink(&sink)
	if sink.ReadChunkSize != 1024 || sink.AckTime != time.Second || sink.Name != "ipcpipelinesink0" {
		t.Errorf("sink = %+v", sink)
	}

	src := endpoint.DefaultSrcConfig()
	cfg.ApplySrc(&src)
	if src.Name != "remote" || src.ReadChunkSize != endpoint.DefaultSrcReadChunkSize {
		t.Errorf("src = %+v", src)
	}

	source := pipeline.DefaultSourceConfig()
	cfg.ApplySource(&source)
	if source.Buffers != 7 || source.Framerate != 60 || source.BufferSize != 4096 || source.EOSTimeout != time.Minute {
		t.Errorf("source = %+v", source)
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	v, err := Duration{90 * time.Second}.MarshalYAML()
	if err != nil {
		t.Fatal(err)
	}
	if v != "1m30s" {
		t.Errorf("MarshalYAML = %v, want 1m30s", v)
	}
}

// writeTemp writes content to a temp file and returns the path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipcpipe.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
