package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/store"
)

// Record runs the batch through s and keeps the run, its outcome and the
// scored records in st. A failed run is still recorded; the scoring error is
// returned.
func Record(ctx context.Context, st store.Store, s Scorer, b Batch) (*model.Run, *Result, error) {
	policy := b.Policy
	if policy == "" {
		policy = DefaultPolicy
	}
	run, err := st.CreateRun(ctx, model.Run{
		Source:      b.Source,
		Policy:      policy,
		GroupBy:     strings.Join(b.GroupBy, ","),
		ContentHash: Fingerprint(b),
		Records:     len(b.Records),
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID), zap.String("source", b.Source))

	res, runErr := s.Run(ctx, b)
	if runErr != nil {
		if err := st.CompleteRun(ctx, run.ID, &model.RunResult{Error: runErr.Error()}); err != nil {
			log.Error("pipeline: failed to record run failure", zap.Error(err))
		}
		return run, nil, runErr
	}

	if err := st.SaveScores(ctx, run.ID, res.Scored); err != nil {
		return run, res, eris.Wrap(err, "pipeline: save scores")
	}
	result := &model.RunResult{
		Units:    len(res.Scored),
		MeanESG:  res.Summary.MeanESG,
		CacheHit: res.CacheHit,
	}
	if err := st.CompleteRun(ctx, run.ID, result); err != nil {
		return run, res, eris.Wrap(err, "pipeline: complete run")
	}
	run.Status = model.RunStatusComplete
	run.Result = result

	log.Info("pipeline: run recorded", zap.Int("units", result.Units))
	return run, res, nil
}
