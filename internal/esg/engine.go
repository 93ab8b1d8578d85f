package esg

import (
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

// Pillar names used as component key prefixes.
const (
	PillarEnvironment = "environment"
	PillarSocial      = "social"
	PillarGovernance  = "governance"
)

// Engine scores batches of aggregates under one policy. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine validates the policy and returns an Engine for it.
func NewEngine(p Policy) (*Engine, error) {
	p = p.WithDefaults()
	if err := ValidatePolicy(p); err != nil {
		return nil, err
	}
	return &Engine{policy: p}, nil
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Score returns one ScoredRecord per aggregate, in input order. Scores are
// relative to the batch. It fails only on an empty batch.
func (e *Engine) Score(batch []model.AggregateRecord) ([]model.ScoredRecord, error) {
	if len(batch) == 0 {
		return nil, model.EmptyBatch("score")
	}

	out := make([]model.ScoredRecord, len(batch))
	for i, rec := range batch {
		out[i] = model.ScoredRecord{
			AggregateRecord: rec,
			Components:      make(map[string]float64),
		}
	}

	e.scorePillar(batch, out, PillarEnvironment, e.policy.Environment)
	e.scorePillar(batch, out, PillarSocial, e.policy.Social)
	if e.policy.GovernanceMode == GovernanceCertification {
		e.scoreCertification(out)
	} else {
		e.scorePillar(batch, out, PillarGovernance, e.policy.Governance)
	}

	w := e.policy.Weights
	for i := range out {
		out[i].ESGScore = w.Environment*out[i].EScore + w.Social*out[i].SScore + w.Governance*out[i].GScore
	}

	zap.L().Debug("esg: scored batch",
		zap.String("policy", e.policy.Slug),
		zap.Int("records", len(out)),
	)
	return out, nil
}

// scorePillar sets each record's pillar score to the mean of its available
// metric scores, or NeutralScore when it has none.
func (e *Engine) scorePillar(batch []model.AggregateRecord, out []model.ScoredRecord, pillar string, metrics []MetricSpec) {
	sums := make([]float64, len(batch))
	counts := make([]int, len(batch))

	for _, m := range metrics {
		col := m.SourceColumn()
		values := make([]*float64, len(batch))
		found := false
		for i := range batch {
			values[i] = batch[i].Metrics.Ptr(col)
			if values[i] != nil {
				found = true
			}
		}
		if !found {
			zap.L().Debug("esg: metric absent from batch",
				zap.String("pillar", pillar),
				zap.String("metric", m.Name),
			)
			continue
		}

		var scores []*float64
		if m.Method == Threshold {
			scores = thresholdScores(values, m.Thresholds, m.Direction)
		} else {
			scores = PercentileScores(values, m.Direction)
		}

		key := pillar + "." + m.Name
		for i, s := range scores {
			if s == nil {
				continue
			}
			sums[i] += *s
			counts[i]++
			out[i].Components[key] = *s
		}
	}

	for i := range out {
		score := NeutralScore
		if counts[i] > 0 {
			score = sums[i] / float64(counts[i])
		}
		setPillar(&out[i], pillar, score)
	}
}

// scoreCertification sets governance from the certification tier. When no
// record in the batch carries a scheme the pillar is neutral.
func (e *Engine) scoreCertification(out []model.ScoredRecord) {
	col := e.policy.CertificationColumn
	supplied := false
	for i := range out {
		if out[i].Attribute(col) != "" {
			supplied = true
			break
		}
	}

	for i := range out {
		if !supplied {
			out[i].GScore = NeutralScore
			continue
		}
		tier := Classify(out[i].Attribute(col))
		out[i].Tier = string(tier)
		out[i].GScore = TierScore(tier)
		out[i].Components[PillarGovernance+"."+col] = out[i].GScore
	}
}

func setPillar(r *model.ScoredRecord, pillar string, score float64) {
	switch pillar {
	case PillarEnvironment:
		r.EScore = score
	case PillarSocial:
		r.SScore = score
	case PillarGovernance:
		r.GScore = score
	}
}
