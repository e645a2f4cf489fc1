package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pithecene-io/ipcpipe/capture"
	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/peer"
	"github.com/pithecene-io/ipcpipe/types"
)

// writeCapture records two outbound frames and one inbound reply.
func writeCapture(t *testing.T, path string) {
	t.Helper()
	w, err := capture.Create(path, "sink")
	if err != nil {
		t.Fatal(err)
	}
	payload, _ := ipc.EncodeBuffer(types.NewBuffer([]byte("hello")))
	w.TapFrame(true, ipc.Frame{Header: ipc.Header{Type: ipc.DataTypeStateChange, ID: 1},
		Payload: ipc.EncodeStateChange(types.StateChangeNullToReady)})
	w.TapFrame(true, ipc.Frame{Header: ipc.Header{Type: ipc.DataTypeBuffer, ID: 2}, Payload: payload})
	w.TapFrame(false, ipc.Frame{Header: ipc.Header{Type: ipc.DataTypeAck, ID: 2}, Payload: ipc.EncodeAck(0)})
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sink.cap")
	writeCapture(t, path)

	tests := []struct {
		name      string
		args      []string
		wantTypes []string
	}{
		{"all", nil, []string{"STATE_CHANGE", "BUFFER", "ACK"}},
		{"outbound", []string{"--direction", "out"}, []string{"STATE_CHANGE", "BUFFER"}},
		{"inbound", []string{"--direction", "in"}, []string{"ACK"}},
		{"by type", []string{"--type", "buffer"}, []string{"BUFFER"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"inspect", "--format", "json"}, tt.args...)
			out, code := runApp(t, append(args, path)...)
			if code != 0 {
				t.Fatalf("exit code = %d (output %q)", code, out)
			}
			var rows []RecordRow
			if err := json.Unmarshal([]byte(out), &rows); err != nil {
				t.Fatalf("unmarshal %q: %v", out, err)
			}
			if len(rows) != len(tt.wantTypes) {
				t.Fatalf("rows = %+v, want types %v", rows, tt.wantTypes)
			}
			for i, r := range rows {
				if r.Type != tt.wantTypes[i] || r.Endpoint != "sink" || r.Error != "" {
					t.Errorf("row %d = %+v", i, r)
				}
			}
		})
	}
}

func TestInspectCommand_Output(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sink.cap")
	writeCapture(t, path)
	filtered := filepath.Join(dir, "out.cap")

	if _, code := runApp(t, "inspect", "--format", "json", "--direction", "out", "-o", filtered, path); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	records, err := capture.ReadFile(filtered)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[1].Seq != 2 || records[1].Endpoint != "sink" || !records[1].Outbound {
		t.Errorf("second record = %+v, want the original seq 2", records[1])
	}
}

func TestInspectCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sink.cap")
	writeCapture(t, path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	truncated := filepath.Join(dir, "truncated.cap")
	if err := os.WriteFile(truncated, data[:len(data)-3], 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"bad direction", []string{"--direction", "sideways", path}, peer.ExitCodeUsage},
		{"missing file", []string{filepath.Join(dir, "nope.cap")}, peer.ExitCodeUsage},
		{"no argument", nil, peer.ExitCodeUsage},
		{"truncated", []string{truncated}, peer.ExitCodeProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"inspect", "--format", "json"}, tt.args...)
			out, code := runApp(t, args...)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.name == "truncated" {
				var rows []RecordRow
				if err := json.Unmarshal([]byte(out), &rows); err != nil || len(rows) != 2 {
					t.Errorf("truncated capture rendered %q, want the 2 complete records", out)
				}
			}
		})
	}
}
