package render

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
				t.Errorf("error should list the valid formats: %v", err)
			}
		})
	}
}

type summary struct {
	Outcome  string           `json:"outcome"`
	Buffers  int              `json:"buffers"`
	Elapsed  time.Duration    `json:"elapsed"`
	Flow     map[string]int   `json:"flow"`
	Stats    nested           `json:"stats"`
	Errors   []string         `json:"errors"`
	Hidden   string           `json:"-"`
	Empty    map[string]int64 `json:"empty"`
	internal int
}

type nested struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

func testSummary() summary {
	return summary{
		Outcome: "success",
		Buffers: 3,
		Elapsed: 1500 * time.Millisecond,
		Flow:    map[string]int{"ok": 3, "flushing": 1},
		Stats:   nested{Sent: 10, Received: 7},
		Errors:  []string{"a", "b"},
		Hidden:  "secret",
	}
}

func TestRenderer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatJSON, &buf).Render(map[string]string{"key": "value"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := buf.String(); got != "{\n  \"key\": \"value\"\n}\n" {
		t.Errorf("JSON output = %q", got)
	}
}

func TestRenderer_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatYAML, &buf).Render(map[string]string{"key": "value"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got := buf.String(); got != "key: value\n" {
		t.Errorf("YAML output = %q", got)
	}
}

func TestRenderer_Table_Struct(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, &buf).Render(testSummary()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	got := buf.String()

	for _, want := range []string{
		"outcome:", "success",
		"elapsed:", "1.5s",
		"flow.flushing:", "flow.ok:",
		"stats.sent:", "stats.received:",
		"errors:", "a, b",
		"empty:", "{}",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("table output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") || strings.Contains(got, "internal") {
		t.Errorf("table output leaks hidden fields:\n%s", got)
	}
	if strings.Index(got, "flow.flushing") > strings.Index(got, "flow.ok") {
		t.Errorf("map keys not sorted:\n%s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Size int
	}
	var buf bytes.Buffer
	data := []*item{{ID: "1", Name: "first", Size: 4}, {ID: "2", Name: "second"}}
	if err := NewRendererWithWriter(FormatTable, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "id name size" {
		t.Errorf("header = %q", lines[0])
	}
	if fields := strings.Fields(lines[1]); strings.Join(fields, " ") != "1 first 4" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := NewRendererWithWriter(FormatTable, &buf).Render([]string{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("empty slice gave %q", buf.String())
	}
}

type frames [][]string

func (f frames) TableHeaders() []string { return []string{"TYPE", "ID"} }
func (f frames) TableRows() [][]string  { return f }

func TestRenderer_Table_Custom(t *testing.T) {
	var buf bytes.Buffer
	r := NewRendererWithWriter(FormatTable, &buf)
	if err := r.Render(frames{{"EVENT", "1"}, {"ACK", "1"}}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "TYPE") || !strings.HasPrefix(lines[2], "ACK") {
		t.Errorf("custom table = %q", buf.String())
	}

	buf.Reset()
	if err := r.Render(frames{}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("empty custom table gave %q", buf.String())
	}
}

func TestRenderer_UnknownFormat(t *testing.T) {
	if err := NewRendererWithWriter("xml", &bytes.Buffer{}).Render(1); err == nil {
		t.Error("Render succeeded with an unknown format")
	}
}
