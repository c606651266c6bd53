// Package metrics exports encoder activity as Prometheus metrics
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/colstream/pkg/codec"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the encoder collectors. It implements codec.Observer, so a
// single instance can be shared by every stream writer of a process.
type Metrics struct {
	registry prometheus.Gatherer

	// Stream metrics
	messagesTotal       *prometheus.CounterVec
	messageBytesTotal   *prometheus.CounterVec
	dictionaryDecisions *prometheus.CounterVec
	streamsTotal        *prometheus.CounterVec
	streamBytes         prometheus.Histogram

	// Archive metrics
	archiveOperationsTotal *prometheus.CounterVec
	archiveOperationTime   *prometheus.HistogramVec
}

var _ codec.Observer = (*Metrics)(nil)

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors with reg; gatherer is what
// WriteToTextfile and Gatherer expose.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: gatherer,

		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colstream_messages_total",
				Help: "Total number of framed messages written",
			},
			[]string{"kind"},
		),

		messageBytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colstream_message_bytes_total",
				Help: "Bytes written in framed messages, split into metadata and body",
			},
			[]string{"kind", "part"},
		),

		dictionaryDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colstream_dictionary_decisions_total",
				Help: "Dictionary tracker decisions",
			},
			[]string{"decision"},
		),

		streamsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colstream_streams_total",
				Help: "Streams that reached a terminal state",
			},
			[]string{"status"},
		),

		streamBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "colstream_stream_size_bytes",
				Help:    "Size of finished streams in bytes",
				Buckets: prometheus.ExponentialBuckets(256, 4, 10),
			},
		),

		archiveOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "colstream_archive_operations_total",
				Help: "Total number of archive operations",
			},
			[]string{"operation", "status"},
		),

		archiveOperationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "colstream_archive_operation_duration_seconds",
				Help:    "Archive operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// MessageWritten records one framed message
func (m *Metrics) MessageWritten(kind codec.MessageKind, block codec.Block) {
	m.messagesTotal.WithLabelValues(kind.String()).Inc()
	m.messageBytesTotal.WithLabelValues(kind.String(), "metadata").Add(float64(block.MetadataLen))
	m.messageBytesTotal.WithLabelValues(kind.String(), "body").Add(float64(block.BodyLen))
}

// DictionaryChecked records a dictionary tracker decision
func (m *Metrics) DictionaryChecked(_ int64, decision codec.Decision) {
	m.dictionaryDecisions.WithLabelValues(decision.String()).Inc()
}

// StreamClosed records a stream that finished or failed
func (m *Metrics) StreamClosed(bytes int64, err error) {
	if err != nil {
		m.streamsTotal.WithLabelValues(statusError).Inc()
		return
	}
	m.streamsTotal.WithLabelValues(statusSuccess).Inc()
	m.streamBytes.Observe(float64(bytes))
}

// RecordArchiveOperation records an archive operation
func (m *Metrics) RecordArchiveOperation(operation string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.archiveOperationsTotal.WithLabelValues(operation, status).Inc()
	m.archiveOperationTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// Gatherer returns the gatherer the collectors are exposed through
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteToTextfile writes the current values in the text exposition format,
// for the node exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// ExportTextfile writes g to path every interval until ctx is done, and
// once more on the way out so the file reflects the final values.
func ExportTextfile(ctx context.Context, g prometheus.Gatherer, path string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := prometheus.WriteToTextfile(path, g); err != nil {
				return fmt.Errorf("write metrics textfile: %w", err)
			}
			return nil
		case <-ticker.C:
			if err := prometheus.WriteToTextfile(path, g); err != nil {
				return fmt.Errorf("write metrics textfile: %w", err)
			}
		}
	}
}
