package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/inspection-etl/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("40512345"),
		Value:     []byte(`{"camis":"40512345"}`),
		Topic:     "raw-inspection-rows",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("socrata")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("40512345"), raw.Key)
	assert.JSONEq(t, `{"camis":"40512345"}`, string(raw.Value))
	assert.Equal(t, "raw-inspection-rows", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "socrata", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	inspected := time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	rec := domain.InspectionRecord{
		EstablishmentID: "40512345",
		InspectionDate:  &inspected,
		Grade:           domain.GradeA,
		ProcessedAt:     now,
	}

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("40512345"), msg.Key)
	assert.Contains(t, string(msg.Value), `"grade":"A"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "grade", msg.Headers[0].Key)
	assert.Equal(t, []byte("A"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}
