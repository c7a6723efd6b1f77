// Package sink persists unified records to a store in fixed-size batches.
package sink

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/model"
)

// DefaultBatchSize is the number of records written per upsert call.
const DefaultBatchSize = 1000

// Writer is the store capability the sink needs.
type Writer interface {
	UpsertRecords(ctx context.Context, recs []model.UnifiedRecord) (int64, error)
}

// BatchWriteError records a batch the store rejected.
type BatchWriteError struct {
	Offset int
	Size   int
	Err    error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("sink: batch at offset %d (%d records): %v", e.Offset, e.Size, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Offset int
	Size   int
	Err    *BatchWriteError
}

// BatchReport summarizes a Persist call.
type BatchReport struct {
	Batches   []BatchResult
	Succeeded int // records in successful batches
	Failed    int // records in failed batches
}

// Failures returns the failed batches in order.
func (r BatchReport) Failures() []*BatchWriteError {
	var out []*BatchWriteError
	for _, b := range r.Batches {
		if b.Err != nil {
			out = append(out, b.Err)
		}
	}
	return out
}

// Sink writes records through a Writer.
type Sink struct {
	w         Writer
	batchSize int
	timeout   time.Duration
}

// New creates a Sink. batchSize <= 0 uses DefaultBatchSize; timeout <= 0 disables the per-batch deadline.
func New(w Writer, batchSize int, timeout time.Duration) *Sink {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Sink{w: w, batchSize: batchSize, timeout: timeout}
}

// Persist upserts recs batch by batch. A failed batch is recorded and the
// remaining batches still run. It stops early only when ctx is done.
func (s *Sink) Persist(ctx context.Context, recs []model.UnifiedRecord) BatchReport {
	log := zap.L().With(zap.String("component", "sink"))
	var report BatchReport

	for offset := 0; offset < len(recs); offset += s.batchSize {
		end := min(offset+s.batchSize, len(recs))
		batch := recs[offset:end]
		result := BatchResult{Offset: offset, Size: len(batch)}

		if err := ctx.Err(); err != nil {
			result.Err = &BatchWriteError{Offset: offset, Size: len(batch), Err: err}
		} else if err := s.write(ctx, batch); err != nil {
			result.Err = &BatchWriteError{Offset: offset, Size: len(batch), Err: err}
		}

		if result.Err != nil {
			report.Failed += result.Size
			log.Error("batch write failed",
				zap.Int("offset", offset),
				zap.Int("size", result.Size),
				zap.Error(result.Err.Err),
			)
		} else {
			report.Succeeded += result.Size
			log.Debug("batch written", zap.Int("offset", offset), zap.Int("size", result.Size))
		}
		report.Batches = append(report.Batches, result)
	}

	log.Info("persist complete",
		zap.Int("batches", len(report.Batches)),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *Sink) write(ctx context.Context, batch []model.UnifiedRecord) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err := s.w.UpsertRecords(ctx, batch)
	return err
}
