package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/adapter"
	"github.com/pithecene-io/ipcpipe/capture"
	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/peer"
)

func countRecords(t *testing.T, path string, dt ipc.DataType, outbound bool) int {
	t.Helper()
	records, err := capture.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	n := 0
	for _, r := range records {
		if ipc.DataType(r.Type) == dt && r.Outbound == outbound {
			n++
		}
	}
	return n
}

func TestRun_EndToEnd(t *testing.T) {
	t.Setenv(peerModeEnv, "serve")
	dir := t.TempDir()
	sinkCapture := filepath.Join(dir, "sink.cap")
	srcCapture := filepath.Join(dir, "src.cap")
	metricsFile := filepath.Join(dir, "metrics.prom")
	historyDir := filepath.Join(dir, "history")

	out, code := runApp(t, "run",
		"--format", "json",
		"--log-level", "error",
		"--peer", os.Args[0],
		"--run-id", "run-1",
		"--buffers", "5",
		"--buffer-size", "64",
		"--capture", sinkCapture,
		"--capture-mode", "buffered",
		"--peer-capture", srcCapture,
		"--metrics-output", metricsFile,
		"--history", historyDir,
	)
	if code != 0 {
		t.Fatalf("exit code = %d, output %s", code, out)
	}

	var s RunSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if s.RunID != "run-1" || s.Outcome.Status != peer.StatusSuccess || s.PeerExitCode != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.Report == nil || s.Report.Pushed != 5 || s.Report.Bytes != 5*64 || !s.Report.EOS {
		t.Fatalf("report = %+v", s.Report)
	}
	if !s.Report.PositionOK || s.Report.Position == 0 {
		t.Errorf("position = %d (ok %v), want the end of the last buffer", s.Report.Position, s.Report.PositionOK)
	}
	if len(s.Report.Transitions) != 6 {
		t.Errorf("transitions = %v, want 6", s.Report.Transitions)
	}
	for _, tr := range s.Report.Transitions {
		if tr.Result != "SUCCESS" {
			t.Errorf("transition %s = %s", tr.Change, tr.Result)
		}
	}
	if s.Capture == nil || s.Capture.Mode != "buffered" || s.Capture.Error != "" {
		t.Errorf("capture = %+v", s.Capture)
	}

	if n := countRecords(t, sinkCapture, ipc.DataTypeBuffer, true); n != 5 {
		t.Errorf("sink captured %d outbound buffers, want 5", n)
	}
	if n := countRecords(t, sinkCapture, ipc.DataTypeStateChange, true); n != 6 {
		t.Errorf("sink captured %d state changes, want 6", n)
	}
	if n := countRecords(t, srcCapture, ipc.DataTypeBuffer, false); n != 5 {
		t.Errorf("src captured %d inbound buffers, want 5", n)
	}
	if n := countRecords(t, srcCapture, ipc.DataTypeMessage, true); n == 0 {
		t.Error("src captured no outbound messages")
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "ipcpipe_frames_sent_total") || !strings.Contains(string(prom), `type="BUFFER"} 5`) {
		t.Errorf("metrics output missing buffer counter:\n%s", prom)
	}

	out, code = runApp(t, "history", "--format", "json", "--path", historyDir)
	if code != 0 {
		t.Fatalf("history exit code = %d, output %s", code, out)
	}
	var runs []adapter.RunCompletedEvent
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if len(runs) != 1 || runs[0].RunID != "run-1" || runs[0].Outcome != "success" || runs[0].Buffers != 5 {
		t.Errorf("history = %+v", runs)
	}
}

func TestRun_PeerCrash(t *testing.T) {
	t.Setenv(peerModeEnv, "crash")

	out, code := runApp(t, "run",
		"--format", "json",
		"--log-level", "error",
		"--peer", os.Args[0],
		"--buffers", "1",
		"--ack-time", "200ms",
		"--eos-timeout", "200ms",
	)
	if code != peer.ExitCodeCrash {
		t.Fatalf("exit code = %d, want %d (output %s)", code, peer.ExitCodeCrash, out)
	}
	var s RunSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("unmarshal %q: %v", out, err)
	}
	if s.Outcome.Status != peer.StatusPeerCrash || s.PeerExitCode != peer.ExitCodeCrash {
		t.Errorf("summary = %+v", s)
	}
	if s.RunID == "" {
		t.Error("run id not generated")
	}
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"negative buffers", []string{"--buffers", "-1"}},
		{"zero framerate", []string{"--framerate", "0"}},
		{"bad capture mode", []string{"--capture", filepath.Join(t.TempDir(), "x.cap"), "--capture-mode", "lossy"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--quiet", "--peer", "/nonexistent/peer"}, tt.args...)
			if _, code := runApp(t, args...); code != peer.ExitCodeUsage {
				t.Errorf("exit code = %d, want %d", code, peer.ExitCodeUsage)
			}
		})
	}
}

func TestHistoryCommand_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no store", nil},
		{"both stores", []string{"--path", t.TempDir(), "--s3", "bucket/prefix"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"history", "--format", "json", "--config", writeEmptyConfig(t)}, tt.args...)
			if _, code := runApp(t, args...); code != peer.ExitCodeUsage {
				t.Errorf("exit code = %d, want %d", code, peer.ExitCodeUsage)
			}
		})
	}
}

func writeEmptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ipcpipe.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPeerCommand_MissingDescriptors(t *testing.T) {
	if _, code := runApp(t, "peer", "--fdin", "-1"); code != peer.ExitCodeUsage {
		t.Errorf("exit code = %d, want %d", code, peer.ExitCodeUsage)
	}
}

func TestPeerArgs(t *testing.T) {
	var got []string
	app := testApp(nil)
	app.Commands = nil
	app.Flags = RunCommand().Flags
	app.Action = func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		got = peerArgs(c, cfg)
		return nil
	}
	if err := app.Run([]string{"ipcpipe", "--log-level", "debug", "--ack-time", "2s", "--peer-capture", "p.cap"}); err != nil {
		t.Fatal(err)
	}
	want := "peer --fdin 3 --fdout 4 --log-level debug --ack-time 2s --capture p.cap"
	if strings.Join(got, " ") != want {
		t.Errorf("peerArgs = %q, want %q", strings.Join(got, " "), want)
	}
}
