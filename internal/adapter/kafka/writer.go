package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/forecast-etl/internal/config"
	"github.com/couchcryptid/forecast-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces forecast periods to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. Messages
// are hash-partitioned by key so every revision of a period lands on the same
// partition, which lets the topic be compacted.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes the periods of one cycle in a single
// WriteMessages call.
func (w *Writer) Publish(ctx context.Context, cycleID string, periods []domain.ForecastPeriod) error {
	if len(periods) == 0 {
		return nil
	}
	publishedAt := domain.Now()
	msgs := make([]kafkago.Message, len(periods))
	for i := range periods {
		msg, err := serializeToMessage(periods[i], cycleID, publishedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write forecast periods: %w", err)
	}
	w.logger.Debug("published forecast periods", "cycle_id", cycleID, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ForecastPeriod into a Kafka message keyed by location and start time.
func serializeToMessage(p domain.ForecastPeriod, cycleID string, publishedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize forecast period: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "cycle_id", Value: []byte(cycleID)},
			{Key: "location", Value: []byte(p.Location)},
			{Key: "published_at", Value: []byte(publishedAt.Format(time.RFC3339))},
		},
	}, nil
}
