package aggregate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func kpi(src model.ActivityRecord, m model.Metrics) model.KpiRecord {
	if m == nil {
		m = model.Metrics{}
	}
	return model.KpiRecord{Source: src, Metrics: m}
}

func TestAggregate_EmptyBatch(t *testing.T) {
	_, err := Aggregate(nil, DashboardSpec())
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))
}

func TestAggregate_InvalidSpec(t *testing.T) {
	_, err := Aggregate([]model.KpiRecord{kpi(model.ActivityRecord{"farm_id": "A"}, nil)}, Spec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "group_by")
}

func TestAggregate_CombinationRules(t *testing.T) {
	records := []model.KpiRecord{
		kpi(model.ActivityRecord{"farm_id": "B", "organisation_name": "", "country": "UK", "certification": "yes"},
			model.Metrics{"area_ha": 10, "emissions_per_ha": 100, "certification": 1}),
		kpi(model.ActivityRecord{"farm_id": "A", "organisation_name": "Org A", "country": "UK"},
			model.Metrics{"area_ha": 5, "emissions_per_ha": 50}),
		kpi(model.ActivityRecord{"farm_id": "B", "organisation_name": "Org B", "country": "FR", "certification": "no"},
			model.Metrics{"area_ha": 20, "certification": 0}),
		kpi(model.ActivityRecord{"farm_id": "B", "organisation_name": "Org B2", "certification": "TRUE"},
			model.Metrics{"emissions_per_ha": 300}),
	}

	out, err := Aggregate(records, DashboardSpec())
	require.NoError(t, err)
	require.Len(t, out, 2)

	a, b := out[0], out[1]
	assert.Equal(t, "A", a.Key.String())
	assert.Equal(t, "B", b.Key.String())

	assert.Equal(t, "Org B", b.Attribute("organisation_name"))
	assert.Equal(t, "UK", b.Attribute("country"))
	assert.Equal(t, "B", b.Attribute("farm_id"))
	assert.Equal(t, 3, b.Rows)

	v, ok := b.Metrics.Get("area_ha")
	require.True(t, ok)
	assert.InDelta(t, 30, v, 1e-9)
	assert.Equal(t, 1, b.Missing["area_ha"])

	v, ok = b.Metrics.Get("emissions_per_ha")
	require.True(t, ok)
	assert.InDelta(t, 200, v, 1e-9)

	// Third row has no metric; its raw cell is encoded instead.
	v, ok = b.Metrics.Get("certification")
	require.True(t, ok)
	assert.InDelta(t, 2.0/3.0, v, 1e-9)

	// Farm A never supplied certification.
	_, ok = a.Metrics.Get("certification")
	assert.False(t, ok)
	// Summed columns nobody supplied are omitted.
	_, ok = a.Metrics.Get("water_m3")
	assert.False(t, ok)
}

func TestAggregate_MeanOfNothingIsMissing(t *testing.T) {
	records := []model.KpiRecord{
		kpi(model.ActivityRecord{"farm_id": "A"}, model.Metrics{"area_ha": 1}),
		kpi(model.ActivityRecord{"farm_id": "B"}, model.Metrics{"area_ha": 2, "female_share": 0.4}),
	}
	out, err := Aggregate(records, DashboardSpec())
	require.NoError(t, err)

	_, ok := out[0].Metrics.Get("female_share")
	assert.False(t, ok)
	v, ok := out[1].Metrics.Get("female_share")
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)
}

func TestAggregate_SumOfAllMissingIsZeroWithMissingCount(t *testing.T) {
	records := []model.KpiRecord{
		kpi(model.ActivityRecord{"farm_id": "A"}, model.Metrics{"yield_tonnes": 10}),
		kpi(model.ActivityRecord{"farm_id": "B"}, nil),
		kpi(model.ActivityRecord{"farm_id": "B"}, nil),
	}
	out, err := Aggregate(records, DashboardSpec())
	require.NoError(t, err)

	v, ok := out[1].Metrics.Get("yield_tonnes")
	require.True(t, ok)
	assert.Zero(t, v)
	assert.Equal(t, 2, out[1].Missing["yield_tonnes"])
	assert.Zero(t, out[0].Missing["yield_tonnes"])
}

func TestAggregate_BlankKeySkipped(t *testing.T) {
	records := []model.KpiRecord{
		kpi(model.ActivityRecord{"farm_id": " "}, model.Metrics{"area_ha": 1}),
		kpi(model.ActivityRecord{"farm_id": "A"}, model.Metrics{"area_ha": 2}),
	}
	out, err := Aggregate(records, DashboardSpec())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].Rows)

	_, err = Aggregate(records[:1], DashboardSpec())
	require.Error(t, err)
	assert.True(t, model.IsInputError(err))
}

func TestAggregate_CompositeKeyAndRename(t *testing.T) {
	records := []model.KpiRecord{
		kpi(model.ActivityRecord{"farm_id": "F1", "year": "2024", "sfi_soil_standard": "yes"}, model.Metrics{"sfi_soil_standard": 1}),
		kpi(model.ActivityRecord{"farm_id": "F1", "year": "2023", "sfi_soil_standard": "no"}, model.Metrics{"sfi_soil_standard": 0}),
		kpi(model.ActivityRecord{"farm_id": "F1", "year": "2024", "sfi_soil_standard": "no"}, model.Metrics{"sfi_soil_standard": 0}),
	}
	out, err := Aggregate(records, FieldSpec())
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "F1/2023", out[0].Key.String())
	assert.Equal(t, "F1/2024", out[1].Key.String())
	assert.Equal(t, "2024", out[1].Attribute("year"))

	v, ok := out[1].Metrics.Get("sfi_soil_compliance_rate")
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
	_, ok = out[1].Metrics.Get("sfi_soil_standard")
	assert.False(t, ok)
}

func TestAggregate_PermutationInvariant(t *testing.T) {
	var records []model.KpiRecord
	for i := 0; i < 60; i++ {
		farm := []string{"A", "B", "C"}[i%3]
		records = append(records, kpi(
			model.ActivityRecord{"farm_id": farm},
			model.Metrics{
				"area_ha":          0.1 * float64(i+1),
				"total_emissions":  1.37 * float64(i*i+1),
				"emissions_per_ha": 3.3 / float64(i+1),
			},
		))
	}

	want, err := Aggregate(records, DashboardSpec())
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		shuffled := append([]model.KpiRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := Aggregate(shuffled, DashboardSpec())
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.Equal(t, want[i].Key, got[i].Key)
			assert.Equal(t, want[i].Metrics, got[i].Metrics)
		}
	}
}

func TestSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{"dashboard", DashboardSpec(), ""},
		{"field", FieldSpec(), ""},
		{"optional", OptionalSpec(), ""},
		{"no group by", Spec{Rules: []Rule{{Column: "a", Op: OpSum}}}, "group_by"},
		{"blank column", Spec{GroupBy: []string{"k"}, Rules: []Rule{{Op: OpSum}}}, "column is required"},
		{"unknown op", Spec{GroupBy: []string{"k"}, Rules: []Rule{{Column: "a", Op: "median"}}}, "unknown op"},
		{"duplicate output", Spec{GroupBy: []string{"k"}, Rules: []Rule{{Column: "a", Op: OpSum}, {Column: "b", Op: OpMean, As: "a"}}}, "duplicate output"},
		{"collides with key", Spec{GroupBy: []string{"k"}, Rules: []Rule{{Column: "k", Op: OpFirst}}}, "collides"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSpec_WithGroupBy(t *testing.T) {
	s := DashboardSpec().WithGroupBy([]string{"farm_id", "year"})
	assert.Equal(t, []string{"farm_id", "year"}, s.GroupBy)
	assert.NoError(t, s.Validate())

	// Rules for a column that became part of the key are dropped.
	s = DashboardSpec().WithGroupBy([]string{"country"})
	for _, r := range s.Rules {
		assert.NotEqual(t, "country", r.Column)
	}
	assert.NoError(t, s.Validate())
}

func TestMerge(t *testing.T) {
	base := []model.AggregateRecord{
		{
			Key:        model.GroupKey{Columns: []string{"farm_id", "year"}, Values: []string{"F1", "2024"}},
			Attributes: map[string]string{"farm_name": "Hill"},
			Metrics:    model.Metrics{"area_ha": 10, "water_m3": 5},
			Rows:       2,
		},
		{
			Key:     model.GroupKey{Columns: []string{"farm_id", "year"}, Values: []string{"F2", "2024"}},
			Metrics: model.Metrics{"area_ha": 4},
			Rows:    1,
		},
	}
	optional := []model.AggregateRecord{
		{
			Key:     model.GroupKey{Columns: []string{"farm_id", "year"}, Values: []string{"F1", "2024"}},
			Metrics: model.Metrics{"soil_ph": 6.5, "water_m3": 99},
		},
		{
			Key:     model.GroupKey{Columns: []string{"farm_id", "year"}, Values: []string{"F9", "2024"}},
			Metrics: model.Metrics{"soil_ph": 7},
		},
	}

	out := Merge(base, optional)
	require.Len(t, out, 2)
	assert.Equal(t, model.Metrics{"area_ha": 10, "water_m3": 5, "soil_ph": 6.5}, out[0].Metrics)
	assert.Equal(t, 2, out[0].Rows)
	assert.Equal(t, model.Metrics{"area_ha": 4}, out[1].Metrics)

	// Base is not mutated.
	_, ok := base[0].Metrics.Get("soil_ph")
	assert.False(t, ok)

	assert.Equal(t, base, Merge(base, nil))
}
