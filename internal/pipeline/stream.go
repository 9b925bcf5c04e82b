package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/civicdata/inspection-etl/internal/domain"
	"github.com/civicdata/inspection-etl/internal/observability"
)

// BatchExtractor reads up to batchSize raw row events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRowEvent, error)
}

// Transformer converts a raw row event into a normalized inspection record.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawRowEvent) (domain.InspectionRecord, error)
}

// BatchLoader writes multiple normalized records to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.InspectionRecord) error
}

// Stream orchestrates the extract-transform-load loop for the
// streaming normalizer.
type Stream struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// NewStream creates a Stream with the given stages and observability.
func NewStream(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Stream {
	return &Stream{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil if the stream has processed at least one message,
// or an error describing why the service is not yet ready.
func (s *Stream) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("stream has not processed any messages yet")
	}
	return nil
}

// Run executes the ETL loop until the context is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	s.logger.Info("stream started", "batch_size", s.batchSize)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	// Keeps retry storms short while avoiding tight loops during Kafka outages.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stream stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !s.processBatch(ctx, &backoff, maxBackoff) {
			return nil
		}
	}
}

// processBatch runs one extract-transform-load cycle. Returns false if the stream should stop.
func (s *Stream) processBatch(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	start := time.Now()

	rawBatch, err := s.extractor.ExtractBatch(ctx, s.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Error("extract batch failed", "error", err)
		return s.backoffOrStop(ctx, backoff, maxBackoff)
	}

	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	s.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	s.metrics.BatchSize.Observe(float64(len(rawBatch)))
	*backoff = 200 * time.Millisecond

	loaded, ok := s.transformAndLoad(ctx, rawBatch, backoff, maxBackoff)
	if !ok {
		return false
	}

	if loaded > 0 {
		s.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		s.ready.Store(true)
	}
	return true
}

// transformAndLoad transforms each message in the batch, loads the successes,
// and commits offsets. Returns the number of successfully loaded messages and
// false if the stream should stop.
func (s *Stream) transformAndLoad(ctx context.Context, rawBatch []domain.RawRowEvent, backoff *time.Duration, maxBackoff time.Duration) (int, bool) {
	outBatch := make([]domain.InspectionRecord, 0, len(rawBatch))
	successfulRaws := make([]domain.RawRowEvent, 0, len(rawBatch))

	for _, raw := range rawBatch {
		rec, err := s.transformer.Transform(ctx, raw)
		if err != nil {
			s.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			s.metrics.TransformErrors.Inc()
			s.commitOffset(ctx, raw)
			continue
		}
		outBatch = append(outBatch, rec)
		successfulRaws = append(successfulRaws, raw)
	}

	if len(outBatch) == 0 {
		return 0, true
	}

	if err := s.loader.LoadBatch(ctx, outBatch); err != nil {
		s.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
		return 0, s.backoffOrStop(ctx, backoff, maxBackoff)
	}

	s.metrics.MessagesProduced.Add(float64(len(outBatch)))

	for _, raw := range successfulRaws {
		s.commitOffset(ctx, raw)
	}

	return len(outBatch), true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the stream should stop.
func (s *Stream) backoffOrStop(ctx context.Context, backoff *time.Duration, maxBackoff time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

// commitOffset commits the message offset if a commit function is available.
func (s *Stream) commitOffset(ctx context.Context, raw domain.RawRowEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		s.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
