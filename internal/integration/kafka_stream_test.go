//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/civicdata/inspection-etl/internal/adapter/kafka"
	"github.com/civicdata/inspection-etl/internal/config"
	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/observability"
	"github.com/civicdata/inspection-etl/internal/pipeline"
)

const (
	testSourceTopic = "test-raw-rows"
	testSinkTopic   = "test-normalized"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "resolve kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err, "resolve controller")

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       group,
		BatchFlushInterval: 5 * time.Second,
	}
}

func sampleRawRows() []domain.RawRow {
	return []domain.RawRow{
		{
			"camis":                 "40512345",
			"inspection_date":       "2023-01-10T00:00:00.000",
			"score":                 "13",
			"grade":                 "A",
			"zipcode":               "10002",
			"violation_code":        "04L",
			"violation_description": "Evidence of rodent activity",
		},
		{
			"camis":           "41298765",
			"inspection_date": "2023-01-20",
			"score":           "7",
			"grade":           "N/A",
			"postal_code":     "11201",
		},
	}
}

// normalizedMessage holds a deserialized message read from the sink topic.
type normalizedMessage struct {
	Record  domain.InspectionRecord
	Key     string
	Headers map[string]string
}

func readNormalized(ctx context.Context, t *testing.T, consumer *kafkago.Reader) normalizedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.InspectionRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal sink message")

	return normalizedMessage{Record: rec, Key: string(msg.Key), Headers: headers}
}

// TestKafkaReaderWriter verifies the adapter layer: kafkaadapter.Reader and
// kafkaadapter.Writer correctly round-trip a message through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-reader-%d", time.Now().UnixNano()))

	payload, err := json.Marshal(sampleRawRows()[0])
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("40512345"),
		Value: payload,
	}))

	// Extract via the Reader. Retry because the consumer group may need
	// time to rebalance before partitions are assigned.
	reader := kafkaadapter.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawRowEvent
	for {
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("40512345"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	// Transform the raw event into a normalized record.
	transformer := pipeline.NewTransformer(nil, discardLogger())
	rec, err := transformer.Transform(ctx, raw)
	require.NoError(t, err)

	// Load via the Writer.
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.LoadBatch(ctx, []domain.InspectionRecord{rec}))

	// Read from the sink topic and verify headers and value.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	nm := readNormalized(ctx, t, consumer)
	assert.Equal(t, "40512345", nm.Key)
	assert.Equal(t, "A", nm.Headers["grade"])
	_, err = time.Parse(time.RFC3339, nm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, "40512345", nm.Record.EstablishmentID)
	require.NotNil(t, nm.Record.InspectionDate)
	assert.Equal(t, time.Date(2023, time.January, 10, 0, 0, 0, 0, time.UTC), *nm.Record.InspectionDate)
	assert.True(t, nm.Record.IsCritical, "rodent description should be flagged critical")
	require.NotNil(t, nm.Record.Zipcode)
	assert.Equal(t, "10002", *nm.Record.Zipcode)
}

// TestStreamEndToEnd wires the full stream (Reader, Transformer, Writer)
// against real Kafka and verifies every raw row comes out normalized.
func TestStreamEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-stream-%d", time.Now().UnixNano()))

	rows := sampleRawRows()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(rows))
	for _, row := range rows {
		payload, err := json.Marshal(row)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(row["camis"]),
			Value: payload,
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafkaadapter.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	stream := pipeline.NewStream(reader, pipeline.NewTransformer(nil, discardLogger()), writer, discardLogger(), metrics, 50)

	streamCtx, streamCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(streamCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make(map[string]normalizedMessage, len(rows))
	for len(received) < len(rows) {
		nm := readNormalized(ctx, t, consumer)
		received[nm.Record.EstablishmentID] = nm
	}

	streamCancel()
	require.NoError(t, <-errCh)

	first := received["40512345"].Record
	assert.True(t, first.IsCritical)
	require.NotNil(t, first.Score)
	assert.Equal(t, 13.0, *first.Score)

	// The second row exercises postal_code fallback and grade renaming.
	second := received["41298765"].Record
	require.NotNil(t, second.Zipcode)
	assert.Equal(t, "11201", *second.Zipcode)
	assert.Equal(t, domain.GradeNotApplicable, second.Grade)
	assert.False(t, second.ProcessedAt.IsZero())
}

// TestStreamTransformError verifies that a poison message is skipped and the
// stream keeps processing valid messages.
func TestStreamTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg := testConfig(broker, fmt.Sprintf("test-poison-%d", time.Now().UnixNano()))

	validPayload, err := json.Marshal(sampleRawRows()[0])
	require.NoError(t, err)

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: validPayload},
	))

	reader := kafkaadapter.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafkaadapter.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	stream := pipeline.NewStream(reader, pipeline.NewTransformer(nil, discardLogger()), writer, discardLogger(), metrics, 50)

	streamCtx, streamCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(streamCtx) }()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	nm := readNormalized(ctx, t, consumer)
	assert.Equal(t, "40512345", nm.Record.EstablishmentID)

	// Verify no second message arrives (the poison message was skipped).
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	streamCancel()
	require.NoError(t, <-errCh)
}
