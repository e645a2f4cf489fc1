package metrics

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "ipcpipe"

// Exporter exposes a Collector as Prometheus counters. Values are read
// from a Snapshot at scrape time.
type Exporter struct {
	collector *Collector

	framesSent     *prometheus.Desc
	framesReceived *prometheus.Desc
	bytesSent      *prometheus.Desc
	bytesReceived  *prometheus.Desc
	acksResolved   *prometheus.Desc
	ackTimeouts    *prometheus.Desc
	unknownReplies *prometheus.Desc
	cancelled      *prometheus.Desc
	decodeErrors   *prometheus.Desc
	readErrors     *prometheus.Desc
	writeErrors    *prometheus.Desc
	droppedMetas   *prometheus.Desc
	readerRestarts *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// NewExporter creates an Exporter for c. The endpoint and name of c
// become constant labels.
func NewExporter(c *Collector) *Exporter {
	labels := prometheus.Labels{"endpoint": c.endpoint, "name": c.name}
	desc := func(name, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, variable, labels)
	}
	return &Exporter{
		collector:      c,
		framesSent:     desc("frames_sent_total", "Frames written, by frame type.", "type"),
		framesReceived: desc("frames_received_total", "Frames read and dispatched, by frame type.", "type"),
		bytesSent:      desc("bytes_sent_total", "Bytes written including headers."),
		bytesReceived:  desc("bytes_received_total", "Bytes read including headers."),
		acksResolved:   desc("acks_resolved_total", "Replies matched to a pending request."),
		ackTimeouts:    desc("ack_timeouts_total", "Timed acknowledgement waits that expired."),
		unknownReplies: desc("unknown_replies_total", "Replies for ids nobody waits on."),
		cancelled:      desc("requests_cancelled_total", "Pending requests force-resolved by a cancel."),
		decodeErrors:   desc("decode_errors_total", "Malformed inbound frames."),
		readErrors:     desc("read_errors_total", "Fatal read failures."),
		writeErrors:    desc("write_errors_total", "Fatal write failures."),
		droppedMetas:   desc("dropped_metas_total", "Buffer metadata entries that could not be carried."),
		readerRestarts: desc("reader_restarts_total", "Readers restarted by a disconnect."),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range e.descs() {
		ch <- d
	}
}

func (e *Exporter) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		e.framesSent, e.framesReceived, e.bytesSent, e.bytesReceived,
		e.acksResolved, e.ackTimeouts, e.unknownReplies, e.cancelled,
		e.decodeErrors, e.readErrors, e.writeErrors, e.droppedMetas, e.readerRestarts,
	}
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	s := e.collector.Snapshot()

	for _, t := range sortedKeys(s.SentByType) {
		ch <- prometheus.MustNewConstMetric(e.framesSent, prometheus.CounterValue, float64(s.SentByType[t]), t)
	}
	for _, t := range sortedKeys(s.ReceivedByType) {
		ch <- prometheus.MustNewConstMetric(e.framesReceived, prometheus.CounterValue, float64(s.ReceivedByType[t]), t)
	}

	counters := []struct {
		desc  *prometheus.Desc
		value int64
	}{
		{e.bytesSent, s.BytesSent},
		{e.bytesReceived, s.BytesReceived},
		{e.acksResolved, s.AcksResolved},
		{e.ackTimeouts, s.AckTimeouts},
		{e.unknownReplies, s.UnknownReplies},
		{e.cancelled, s.Cancelled},
		{e.decodeErrors, s.DecodeErrors},
		{e.readErrors, s.ReadErrors},
		{e.writeErrors, s.WriteErrors},
		{e.droppedMetas, s.DroppedMetas},
		{e.readerRestarts, s.ReaderRestarts},
	}
	for _, c := range counters {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(c.value))
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Register registers an Exporter for each collector with reg.
func Register(reg prometheus.Registerer, collectors ...*Collector) error {
	for _, c := range collectors {
		if err := reg.Register(NewExporter(c)); err != nil {
			return fmt.Errorf("register %s metrics: %w", c.endpoint, err)
		}
	}
	return nil
}

// WriteText gathers g and writes it in the Prometheus text format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
