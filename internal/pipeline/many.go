package pipeline

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one batch in RunMany.
type Outcome struct {
	Source string
	Result *Result
	Err    error
}

// RunMany scores independent batches concurrently, at most limit at a time.
// Outcomes are returned in batch order; one batch failing does not cancel the
// others.
func RunMany(ctx context.Context, s Scorer, batches []Batch, limit int) []Outcome {
	out := make([]Outcome, len(batches))
	if len(batches) == 0 {
		return out
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	var succeeded, failed atomic.Int64

	for i, b := range batches {
		g.Go(func() error {
			res, err := s.Run(gctx, b)
			out[i] = Outcome{Source: b.Source, Result: res, Err: err}
			if err != nil {
				failed.Add(1)
				zap.L().Error("pipeline: batch failed", zap.String("source", b.Source), zap.Error(err))
				return nil // don't abort the other batches
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("pipeline: batches complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return out
}
