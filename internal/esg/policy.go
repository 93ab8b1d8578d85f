// Package esg converts farm-level aggregates into batch-relative
// Environment, Social and Governance pillar scores and a weighted composite.
package esg

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agri-esg/internal/model"
)

// Direction says whether larger metric values are better.
type Direction string

const (
	Higher Direction = "higher"
	Lower  Direction = "lower"
)

// Method selects how a metric is turned into a 0-100 score.
type Method string

const (
	// Percentile ranks the metric within the batch.
	Percentile Method = "percentile"
	// Threshold scores the metric against absolute bands.
	Threshold Method = "threshold"
)

// GovernanceMode selects the governance strategy.
type GovernanceMode string

const (
	// GovernancePercentile scores the governance metric list like any pillar.
	GovernancePercentile GovernanceMode = "percentile"
	// GovernanceCertification scores the certification tier of each record.
	GovernanceCertification GovernanceMode = "certification"
)

// Aggregation names the roll-up a policy expects its input to come from.
const (
	AggregationDashboard = "dashboard"
	AggregationField     = "field"
)

// MetricSpec configures one scored metric.
type MetricSpec struct {
	Name       string    `yaml:"name" json:"name"`
	Column     string    `yaml:"column,omitempty" json:"column,omitempty"`
	Direction  Direction `yaml:"direction" json:"direction"`
	Method     Method    `yaml:"method,omitempty" json:"method,omitempty"`
	Thresholds []float64 `yaml:"thresholds,omitempty" json:"thresholds,omitempty"`
}

// SourceColumn returns the aggregate column the metric reads.
func (m MetricSpec) SourceColumn() string {
	if m.Column != "" {
		return m.Column
	}
	return m.Name
}

// Weights are the pillar weights of the composite score. They sum to 1.
type Weights struct {
	Environment float64 `yaml:"environment" json:"environment"`
	Social      float64 `yaml:"social" json:"social"`
	Governance  float64 `yaml:"governance" json:"governance"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Environment + w.Social + w.Governance
}

// DefaultWeights is the 50/30/20 split.
func DefaultWeights() Weights {
	return Weights{Environment: 0.5, Social: 0.3, Governance: 0.2}
}

// Policy is a complete scoring configuration. Alternative scoring schemes are
// different Policy values run through the same Engine.
type Policy struct {
	Name        string  `yaml:"name" json:"name"`
	Slug        string  `yaml:"slug" json:"slug"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Aggregation string  `yaml:"aggregation,omitempty" json:"aggregation"`
	Weights     Weights `yaml:"weights" json:"weights"`

	Environment []MetricSpec `yaml:"environment" json:"environment"`
	Social      []MetricSpec `yaml:"social" json:"social"`
	Governance  []MetricSpec `yaml:"governance,omitempty" json:"governance,omitempty"`

	GovernanceMode      GovernanceMode `yaml:"governance_mode,omitempty" json:"governance_mode"`
	CertificationColumn string         `yaml:"certification_column,omitempty" json:"certification_column,omitempty"`
}

// WithDefaults fills in omitted optional settings.
func (p Policy) WithDefaults() Policy {
	if p.Aggregation == "" {
		p.Aggregation = AggregationDashboard
	}
	if p.GovernanceMode == "" {
		p.GovernanceMode = GovernancePercentile
	}
	if p.GovernanceMode == GovernanceCertification && p.CertificationColumn == "" {
		p.CertificationColumn = model.ColCertificationScheme
	}
	p.Environment = metricDefaults(p.Environment)
	p.Social = metricDefaults(p.Social)
	p.Governance = metricDefaults(p.Governance)
	return p
}

func metricDefaults(in []MetricSpec) []MetricSpec {
	out := make([]MetricSpec, len(in))
	for i, m := range in {
		if m.Method == "" {
			m.Method = Percentile
		}
		out[i] = m
	}
	return out
}

// ValidatePolicy checks that a policy is internally consistent.
func ValidatePolicy(p Policy) error {
	var errs []string

	if strings.TrimSpace(p.Slug) == "" {
		errs = append(errs, "slug is required")
	}

	w := p.Weights
	if w.Environment < 0 || w.Social < 0 || w.Governance < 0 {
		errs = append(errs, "weights must be >= 0")
	}
	if math.Abs(w.Sum()-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", w.Sum()))
	}

	switch p.Aggregation {
	case "", AggregationDashboard, AggregationField:
	default:
		errs = append(errs, fmt.Sprintf("unknown aggregation %q", p.Aggregation))
	}

	switch p.GovernanceMode {
	case "", GovernancePercentile, GovernanceCertification:
	default:
		errs = append(errs, fmt.Sprintf("unknown governance_mode %q", p.GovernanceMode))
	}

	errs = append(errs, validateMetrics("environment", p.Environment)...)
	errs = append(errs, validateMetrics("social", p.Social)...)
	errs = append(errs, validateMetrics("governance", p.Governance)...)

	if len(errs) > 0 {
		return eris.Errorf("esg: policy %q invalid: %s", p.Slug, strings.Join(errs, "; "))
	}
	return nil
}

func validateMetrics(pillar string, metrics []MetricSpec) []string {
	var errs []string
	seen := make(map[string]bool)
	for i, m := range metrics {
		if strings.TrimSpace(m.Name) == "" {
			errs = append(errs, fmt.Sprintf("%s metric %d: name is required", pillar, i))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Sprintf("%s.%s: duplicate metric", pillar, m.Name))
		}
		seen[m.Name] = true

		if m.Direction != Higher && m.Direction != Lower {
			errs = append(errs, fmt.Sprintf("%s.%s: unknown direction %q", pillar, m.Name, m.Direction))
		}
		switch m.Method {
		case "", Percentile:
			if len(m.Thresholds) > 0 {
				errs = append(errs, fmt.Sprintf("%s.%s: thresholds only apply to method threshold", pillar, m.Name))
			}
		case Threshold:
			if msg := checkBands(m.Thresholds, m.Direction); msg != "" {
				errs = append(errs, fmt.Sprintf("%s.%s: %s", pillar, m.Name, msg))
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.%s: unknown method %q", pillar, m.Name, m.Method))
		}
	}
	return errs
}

func checkBands(bands []float64, dir Direction) string {
	if len(bands) != 4 {
		return fmt.Sprintf("thresholds need 4 bands, got %d", len(bands))
	}
	for i := 1; i < len(bands); i++ {
		if dir == Lower && bands[i] < bands[i-1] {
			return "thresholds must ascend for lower-is-better metrics"
		}
		if dir == Higher && bands[i] > bands[i-1] {
			return "thresholds must descend for higher-is-better metrics"
		}
	}
	return ""
}

// Registry holds policies by slug.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry returns a registry of the built-in policies plus extra. Extra
// policies replace built-ins with the same slug.
func NewRegistry(extra ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy)}
	for _, p := range append(Builtins(), extra...) {
		p = p.WithDefaults()
		if err := ValidatePolicy(p); err != nil {
			return nil, err
		}
		r.policies[p.Slug] = p
	}
	return r, nil
}

// Lookup returns the policy with the given slug.
func (r *Registry) Lookup(slug string) (Policy, error) {
	p, ok := r.policies[slug]
	if !ok {
		return Policy{}, eris.Errorf("esg: unknown policy %q (available: %s)", slug, strings.Join(r.Slugs(), ", "))
	}
	return p, nil
}

// Slugs returns the registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	slugs := make([]string, 0, len(r.policies))
	for s := range r.policies {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

// List returns all policies sorted by slug.
func (r *Registry) List() []Policy {
	out := make([]Policy, 0, len(r.policies))
	for _, s := range r.Slugs() {
		out = append(out, r.policies[s])
	}
	return out
}
