package kafka

import (
	"context"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/civicdata/inspection-etl/internal/config"
	"github.com/civicdata/inspection-etl/internal/domain"
)

// Reader consumes raw inspection rows from a Kafka topic.
// It implements pipeline.BatchExtractor.
type Reader struct {
	reader        *kafkago.Reader
	logger        *slog.Logger
	flushInterval time.Duration
}

// NewReader creates a consumer-group reader for the configured source topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaSourceTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, logger: logger, flushInterval: cfg.BatchFlushInterval}
}

// ExtractBatch fetches up to batchSize messages. After the first message
// arrives, the remainder of the batch is bounded by the flush interval so a
// slow topic still produces timely partial batches.
func (r *Reader) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRowEvent, error) {
	events := make([]domain.RawRowEvent, 0, batchSize)

	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	events = append(events, r.withCommit(msg))

	flushCtx, cancel := context.WithTimeout(ctx, r.flushInterval)
	defer cancel()

	for len(events) < batchSize {
		msg, err := r.reader.FetchMessage(flushCtx)
		if err != nil {
			// Deadline or cancellation: ship what we have.
			break
		}
		events = append(events, r.withCommit(msg))
	}

	return events, nil
}

func (r *Reader) withCommit(msg kafkago.Message) domain.RawRowEvent {
	ev := mapMessageToRawEvent(msg)
	ev.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return ev
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessageToRawEvent converts a Kafka message into a domain raw event.
// The commit closure is attached separately so the mapping stays pure.
func mapMessageToRawEvent(msg kafkago.Message) domain.RawRowEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawRowEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}
