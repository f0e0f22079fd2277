// Package kafka publishes segmented rows to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hive-weight-etl/internal/config"
	"github.com/couchcryptid/hive-weight-etl/internal/domain"
	"github.com/couchcryptid/hive-weight-etl/internal/observability"
)

// Writer produces one message per segmented row.
// It implements pipeline.SegmentPublisher.
type Writer struct {
	writer  *kafkago.Writer
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, clock: clock, metrics: metrics, logger: logger}
}

// PublishSegments serializes and publishes the rows in a single WriteMessages call. Rows of
// one scale share a key prefix and hash to the same partition.
func (w *Writer) PublishSegments(ctx context.Context, rows []domain.SegmentRow) error {
	if len(rows) == 0 {
		return nil
	}
	processedAt := w.clock.Now().UTC()
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(rows[i], processedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish segments: %w", err)
	}
	w.metrics.MessagesProduced.Add(float64(len(msgs)))
	w.logger.Info("segments published", "topic", w.writer.Topic, "messages", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// MessageKey returns the "{year}-{scale}-{segment}" key of a row.
func MessageKey(row domain.SegmentRow) string {
	return domain.ModelKey(row.Year, row.Scale) + "-" + strconv.Itoa(row.Segment)
}

// serializeToMessage marshals a SegmentRow into a Kafka message.
func serializeToMessage(row domain.SegmentRow, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize segment %s: %w", MessageKey(row), err)
	}
	return kafkago.Message{
		Key:   []byte(MessageKey(row)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scale", Value: []byte(row.Scale)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}
