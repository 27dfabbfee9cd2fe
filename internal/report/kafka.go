// Package report publishes decoded-traffic events to Kafka with batching
// and compression.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/metrics"
)

// Event is one dissected packet summary.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Length    uint32    `json:"length"`
	Layer     string    `json:"layer"`
	Protocol  uint32    `json:"protocol"`
	Src       string    `json:"src,omitempty"`
	Dst       string    `json:"dst,omitempty"`
	SrcPort   uint16    `json:"src_port,omitempty"`
	DstPort   uint16    `json:"dst_port,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// KafkaReporter sends events to a Kafka topic.
type KafkaReporter struct {
	writer *kafka.Writer

	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// NewKafkaReporter builds a reporter from the report section of the agent
// config. Returns nil when no brokers are configured.
func NewKafkaReporter(cfg config.ReportConfig) (*KafkaReporter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka reporter requires a topic")
	}
	batchTimeout := 100 * time.Millisecond
	if cfg.BatchTimeout != "" {
		d, err := time.ParseDuration(cfg.BatchTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid batch_timeout: %w", err)
		}
		batchTimeout = d
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	codec, err := compressionCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		Compression:  codec,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaReporter{writer: writer}, nil
}

func compressionCodec(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Compression(compress.Gzip), nil
	case "snappy":
		return kafka.Compression(compress.Snappy), nil
	case "lz4":
		return kafka.Compression(compress.Lz4), nil
	default:
		return 0, fmt.Errorf("unsupported compression: %s", name)
	}
}

// Report enqueues one event. The writer batches and flushes asynchronously.
func (r *KafkaReporter) Report(ctx context.Context, e Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(e.Src),
		Value: value,
	}
	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		metrics.ReporterErrorsTotal.WithLabelValues("kafka").Inc()
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	r.reportedCount.Add(1)
	return nil
}

// Stats returns the reported and errored event counts.
func (r *KafkaReporter) Stats() (reported, errors uint64) {
	return r.reportedCount.Load(), r.errorCount.Load()
}

// Close flushes pending batches and releases the writer.
func (r *KafkaReporter) Close() error {
	return r.writer.Close()
}
