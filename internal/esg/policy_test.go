package esg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinsValid(t *testing.T) {
	for _, p := range Builtins() {
		t.Run(p.Slug, func(t *testing.T) {
			assert.NoError(t, ValidatePolicy(p.WithDefaults()))
			assert.InDelta(t, 1.0, p.Weights.Sum(), 1e-9)
			assert.NotEmpty(t, p.Environment)
			assert.NotEmpty(t, p.Social)
		})
	}
}

func TestValidatePolicy(t *testing.T) {
	valid := func() Policy {
		return Policy{
			Slug:        "p",
			Weights:     DefaultWeights(),
			Environment: []MetricSpec{{Name: "emissions_per_ha", Direction: Lower}},
			Social:      []MetricSpec{{Name: "female_share", Direction: Higher}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(p *Policy)
		wantErr string
	}{
		{"valid", func(*Policy) {}, ""},
		{"weights within tolerance", func(p *Policy) { p.Weights.Governance = 0.205 }, ""},
		{"missing slug", func(p *Policy) { p.Slug = " " }, "slug is required"},
		{"negative weight", func(p *Policy) { p.Weights = Weights{Environment: 1.2, Social: -0.2} }, "weights must be >= 0"},
		{"weights do not sum to one", func(p *Policy) { p.Weights.Environment = 0.7 }, "weights should sum to 1"},
		{"empty metric name", func(p *Policy) { p.Social = append(p.Social, MetricSpec{Direction: Higher}) }, "name is required"},
		{"duplicate metric", func(p *Policy) { p.Environment = append(p.Environment, p.Environment[0]) }, "duplicate metric"},
		{"unknown direction", func(p *Policy) { p.Environment[0].Direction = "sideways" }, "unknown direction"},
		{"unknown method", func(p *Policy) { p.Environment[0].Method = "zscore" }, "unknown method"},
		{"threshold needs four bands", func(p *Policy) {
			p.Environment[0].Method = Threshold
			p.Environment[0].Thresholds = []float64{1, 2}
		}, "need 4 bands"},
		{"lower thresholds must ascend", func(p *Policy) {
			p.Environment[0].Method = Threshold
			p.Environment[0].Thresholds = []float64{4, 3, 2, 1}
		}, "must ascend"},
		{"higher thresholds must descend", func(p *Policy) {
			p.Social[0].Method = Threshold
			p.Social[0].Thresholds = []float64{0.1, 0.2, 0.3, 0.4}
		}, "must descend"},
		{"thresholds on percentile metric", func(p *Policy) { p.Social[0].Thresholds = []float64{1, 1, 1, 1} }, "only apply"},
		{"unknown governance mode", func(p *Policy) { p.GovernanceMode = "vibes" }, "unknown governance_mode"},
		{"unknown aggregation", func(p *Policy) { p.Aggregation = "county" }, "unknown aggregation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid()
			tt.mutate(&p)
			err := ValidatePolicy(p)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithDefaults(t *testing.T) {
	p := Policy{
		Slug:           "x",
		GovernanceMode: GovernanceCertification,
		Environment:    []MetricSpec{{Name: "a", Direction: Lower}},
	}.WithDefaults()

	assert.Equal(t, AggregationDashboard, p.Aggregation)
	assert.Equal(t, "certification_scheme", p.CertificationColumn)
	assert.Equal(t, Percentile, p.Environment[0].Method)
	assert.Equal(t, "a", p.Environment[0].SourceColumn())

	p = Policy{Slug: "y"}.WithDefaults()
	assert.Equal(t, GovernancePercentile, p.GovernanceMode)
	assert.Empty(t, p.CertificationColumn)
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"certification", "dashboard", "hybrid", "sfi"}, reg.Slugs())
	assert.Len(t, reg.List(), 4)

	p, err := reg.Lookup("sfi")
	require.NoError(t, err)
	assert.Equal(t, AggregationField, p.Aggregation)

	_, err = reg.Lookup("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: certification, dashboard, hybrid, sfi")
}

func TestRegistry_ExtraOverridesBuiltin(t *testing.T) {
	custom := Policy{
		Name:        "Custom dashboard",
		Slug:        PolicyDashboard,
		Weights:     Weights{Environment: 0.6, Social: 0.2, Governance: 0.2},
		Environment: []MetricSpec{{Name: "emissions_per_tonne", Direction: Lower}},
		Social:      []MetricSpec{{Name: "female_share", Direction: Higher}},
	}
	reg, err := NewRegistry(custom)
	require.NoError(t, err)

	p, err := reg.Lookup(PolicyDashboard)
	require.NoError(t, err)
	assert.Equal(t, "Custom dashboard", p.Name)
	assert.Len(t, reg.List(), 4)

	_, err = NewRegistry(Policy{Slug: "bad"})
	assert.Error(t, err)
}

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.yaml")
	content := `
policies:
  - name: Water first
    slug: water
    weights: {environment: 0.7, social: 0.2, governance: 0.1}
    environment:
      - name: water_per_tonne
        direction: lower
      - name: emissions
        column: emissions_per_tonne
        direction: lower
        method: threshold
        thresholds: [300, 450, 600, 800]
    social:
      - name: female_share
        direction: higher
    governance_mode: certification
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	policies, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Len(t, policies, 1)

	p := policies[0]
	assert.Equal(t, "water", p.Slug)
	assert.InDelta(t, 0.7, p.Weights.Environment, 1e-9)
	assert.Equal(t, Percentile, p.Environment[0].Method)
	assert.Equal(t, Threshold, p.Environment[1].Method)
	assert.Equal(t, "emissions_per_tonne", p.Environment[1].SourceColumn())
	assert.Equal(t, []float64{300, 450, 600, 800}, p.Environment[1].Thresholds)
	assert.Equal(t, GovernanceCertification, p.GovernanceMode)
	assert.Equal(t, "certification_scheme", p.CertificationColumn)
	assert.Equal(t, AggregationDashboard, p.Aggregation)
}

func TestLoadPolicies_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadPolicies(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("policies: [unclosed"), 0o644))
	_, err = LoadPolicies(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("other: 1\n"), 0o644))
	_, err = LoadPolicies(empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no policies")

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte(`
policies:
  - slug: broken
    weights: {environment: 0.9, social: 0.9, governance: 0.9}
`), 0o644))
	_, err = LoadPolicies(invalid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights should sum to 1")
}
