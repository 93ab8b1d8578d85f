// Package pipeline runs the scoring stages end to end: KPI calculation,
// optional-data merge, aggregation and ESG scoring.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/aggregate"
	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/esg"
	"github.com/sells-group/agri-esg/internal/ingest"
	"github.com/sells-group/agri-esg/internal/kpi"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/sfi"
)

// DefaultPolicy is used when a batch does not name one.
const DefaultPolicy = "dashboard"

// Batch is one scoring request.
type Batch struct {
	Source string `json:"source"`
	// Header, when set, is checked against the policy's required columns
	// before any stage runs.
	Header   []string               `json:"header,omitempty"`
	Records  []model.ActivityRecord `json:"records"`
	Optional []model.ActivityRecord `json:"optional,omitempty"`
	Policy   string                 `json:"policy,omitempty"`
	// GroupBy overrides the policy's default analysis unit.
	GroupBy []string `json:"group_by,omitempty"`
}

// Result is the outcome of one run.
type Result struct {
	Source     string               `json:"source"`
	Policy     string               `json:"policy"`
	PolicyName string               `json:"policy_name"`
	GroupBy    []string             `json:"group_by"`
	Records    int                  `json:"records"`
	Scored     []model.ScoredRecord `json:"scored"`
	Summary    esg.Summary          `json:"summary"`
	Readiness  []sfi.Readiness      `json:"sfi_readiness,omitempty"`
	CacheHit   bool                 `json:"cache_hit"`
}

// Scorer runs a batch. Engine and Cached both implement it.
type Scorer interface {
	Run(ctx context.Context, b Batch) (*Result, error)
}

// Options configures an Engine.
type Options struct {
	Factors  config.EmissionFactors
	Missing  kpi.MissingPolicy
	Registry *esg.Registry
}

// Engine is the pure scoring pipeline. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	calc     *kpi.Calculator
	registry *esg.Registry
	missing  []string
}

// NewEngine creates an Engine. A nil registry means the built-in policies.
func NewEngine(opts Options) (*Engine, error) {
	reg := opts.Registry
	if reg == nil {
		var err error
		reg, err = esg.NewRegistry()
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: build registry")
		}
	}
	missing := append([]string(nil), opts.Missing.ZeroAsMissing...)
	sort.Strings(missing)
	return &Engine{
		calc:     kpi.NewCalculator(opts.Factors, opts.Missing),
		registry: reg,
		missing:  missing,
	}, nil
}

// Registry returns the policies the engine can score with.
func (e *Engine) Registry() *esg.Registry {
	return e.registry
}

// CacheKey identifies a batch together with the settings its result depends
// on: emission factors, zero-as-missing columns and the resolved policy. A
// policy file that redefines a slug therefore changes the key.
func (e *Engine) CacheKey(b Batch) string {
	slug := b.Policy
	if slug == "" {
		slug = DefaultPolicy
	}
	settings := struct {
		Factors       config.EmissionFactors `json:"factors"`
		ZeroAsMissing []string               `json:"zero_as_missing"`
		Policy        *esg.Policy            `json:"policy"`
	}{Factors: e.calc.Factors(), ZeroAsMissing: e.missing}
	if p, err := e.registry.Lookup(slug); err == nil {
		settings.Policy = &p
	}
	data, _ := json.Marshal(settings)

	h := sha256.New()
	h.Write(data)                   //nolint:errcheck
	h.Write([]byte{0x1e})           //nolint:errcheck
	h.Write([]byte(Fingerprint(b))) //nolint:errcheck
	return hex.EncodeToString(h.Sum(nil))
}

// Run scores one batch.
func (e *Engine) Run(ctx context.Context, b Batch) (*Result, error) {
	slug := b.Policy
	if slug == "" {
		slug = DefaultPolicy
	}
	policy, err := e.registry.Lookup(slug)
	if err != nil {
		return nil, err
	}

	if b.Header != nil {
		if err := ingest.SchemaFor(policy.Aggregation).Check(b.Header); err != nil {
			return nil, err
		}
	}

	spec := SpecFor(policy)
	if len(b.GroupBy) > 0 {
		spec = spec.WithGroupBy(b.GroupBy)
	}

	log := zap.L().With(
		zap.String("source", b.Source),
		zap.String("policy", policy.Slug),
		zap.Strings("group_by", spec.GroupBy),
	)

	// Stage 1: KPIs
	kpis := e.calc.Compute(b.Records)
	log.Debug("pipeline: kpis computed", zap.Int("records", len(kpis)))
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled after kpi")
	}

	// Stage 2: aggregate, then merge optional data
	aggs, err := aggregate.Aggregate(kpis, spec)
	if err != nil {
		return nil, err
	}
	if len(b.Optional) > 0 {
		aggs, err = e.mergeOptional(aggs, b.Optional, spec.GroupBy)
		if err != nil {
			return nil, err
		}
	}
	log.Debug("pipeline: aggregated", zap.Int("units", len(aggs)))
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled after aggregate")
	}

	// Stage 3: score
	scorer, err := esg.NewEngine(policy)
	if err != nil {
		return nil, err
	}
	scored, err := scorer.Score(aggs)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Source:     b.Source,
		Policy:     policy.Slug,
		PolicyName: policy.Name,
		GroupBy:    spec.GroupBy,
		Records:    len(b.Records),
		Scored:     scored,
		Summary:    esg.Summarise(scored),
	}
	if policy.Aggregation == esg.AggregationField {
		res.Readiness = sfi.AssessBatch(aggs, b.Records)
	}

	log.Info("pipeline: scored",
		zap.Int("units", len(scored)),
		zap.Float64("mean_esg", res.Summary.MeanESG),
	)
	return res, nil
}

// mergeOptional aggregates the optional table on the same key and left-joins
// it. Optional rows with no usable key are ignored rather than failing the run.
func (e *Engine) mergeOptional(base []model.AggregateRecord, optional []model.ActivityRecord, groupBy []string) ([]model.AggregateRecord, error) {
	opt, err := aggregate.Aggregate(e.calc.Compute(optional), aggregate.OptionalSpec().WithGroupBy(groupBy))
	if err != nil {
		if model.IsInputError(err) {
			zap.L().Warn("pipeline: optional data skipped", zap.Error(err))
			return base, nil
		}
		return nil, eris.Wrap(err, "pipeline: aggregate optional data")
	}
	return aggregate.Merge(base, opt), nil
}

// SpecFor returns the aggregation spec a policy's metrics are defined on.
func SpecFor(p esg.Policy) aggregate.Spec {
	if p.Aggregation == esg.AggregationField {
		return aggregate.FieldSpec()
	}
	return aggregate.DashboardSpec()
}
