package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestExporter_Collect(t *testing.T) {
	c := NewCollector("sink", "s0")
	c.RecordSent("BUFFER", 100)
	c.RecordSent("BUFFER", 100)
	c.RecordSent("EVENT", 30)
	c.IncAckTimeout()

	reg := prometheus.NewRegistry()
	if err := Register(reg, c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	families := gather(t, reg)

	sent := families["ipcpipe_frames_sent_total"]
	if sent == nil {
		t.Fatal("frames_sent_total missing")
	}
	byType := map[string]float64{}
	for _, m := range sent.GetMetric() {
		byType[labelValue(m, "type")] = m.GetCounter().GetValue()
		if labelValue(m, "endpoint") != "sink" || labelValue(m, "name") != "s0" {
			t.Errorf("labels = %v, want endpoint=sink name=s0", m.GetLabel())
		}
	}
	if byType["BUFFER"] != 2 || byType["EVENT"] != 1 {
		t.Errorf("frames_sent_total = %v, want BUFFER=2 EVENT=1", byType)
	}

	if got := families["ipcpipe_bytes_sent_total"].GetMetric()[0].GetCounter().GetValue(); got != 230 {
		t.Errorf("bytes_sent_total = %v, want 230", got)
	}
	if got := families["ipcpipe_ack_timeouts_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("ack_timeouts_total = %v, want 1", got)
	}

	// Values are read at scrape time.
	c.IncAckTimeout()
	families = gather(t, reg)
	if got := families["ipcpipe_ack_timeouts_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("ack_timeouts_total after increment = %v, want 2", got)
	}
}

func TestRegister_BothEndpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg, NewCollector("sink", ""), NewCollector("src", "")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := Register(reg, NewCollector("sink", "")); err == nil {
		t.Error("registering a duplicate endpoint succeeded")
	}
}

func TestWriteText(t *testing.T) {
	c := NewCollector("src", "peer")
	c.IncReaderRestart()
	reg := prometheus.NewRegistry()
	if err := Register(reg, c); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, reg); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	if !strings.Contains(buf.String(), `ipcpipe_reader_restarts_total{endpoint="src",name="peer"} 1`) {
		t.Errorf("output missing reader restarts:\n%s", buf.String())
	}
}
