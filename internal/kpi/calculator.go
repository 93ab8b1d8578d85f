// Package kpi derives per-unit intensities, emissions and social ratios from
// raw activity records.
package kpi

import (
	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/model"
)

// MissingPolicy lists the denominator columns whose exact-zero value is
// treated as "no value".
type MissingPolicy struct {
	ZeroAsMissing []string `yaml:"zero_as_missing" mapstructure:"zero_as_missing"`
}

// DefaultMissingPolicy treats zero area, yield and workforce as missing.
func DefaultMissingPolicy() MissingPolicy {
	return MissingPolicy{ZeroAsMissing: []string{model.ColArea, model.ColYield, model.ColWorkersTotal}}
}

// DefaultEmissionFactors returns the kg CO2e factors used when none are configured.
func DefaultEmissionFactors() config.EmissionFactors {
	return config.EmissionFactors{
		Nitrogen:    5.5,
		Diesel:      2.7,
		Electricity: 0.5,
	}
}

// Calculator computes KPI records. It holds no mutable state and is safe for
// concurrent use.
type Calculator struct {
	factors     config.EmissionFactors
	zeroMissing map[string]bool
}

// NewCalculator creates a Calculator with the given factors and missing policy.
func NewCalculator(factors config.EmissionFactors, policy MissingPolicy) *Calculator {
	zm := make(map[string]bool, len(policy.ZeroAsMissing))
	for _, col := range policy.ZeroAsMissing {
		zm[col] = true
	}
	return &Calculator{factors: factors, zeroMissing: zm}
}

// Factors returns the emission factors in use.
func (c *Calculator) Factors() config.EmissionFactors {
	return c.factors
}

// Compute returns one KpiRecord per input record, in input order.
func (c *Calculator) Compute(records []model.ActivityRecord) []model.KpiRecord {
	out := make([]model.KpiRecord, len(records))
	for i, r := range records {
		out[i] = c.ComputeOne(r)
	}
	zap.L().Debug("kpi: computed records", zap.Int("records", len(out)))
	return out
}

// ComputeOne derives the KPI metrics for a single record. Bad cells become
// missing values; it never fails.
func (c *Calculator) ComputeOne(r model.ActivityRecord) model.KpiRecord {
	m := make(model.Metrics)

	for _, col := range model.NumericInputColumns {
		v, ok := r.Float(col)
		if ok && v == 0 && c.zeroMissing[col] {
			ok = false
		}
		m.SetIf(col, v, ok)
	}
	for _, col := range model.OptionalNumericColumns {
		v, ok := r.Float(col)
		m.SetIf(col, v, ok)
	}
	for _, col := range model.FlagColumns {
		if r.Has(col) {
			m.Set(col, r.Flag(col))
		}
	}

	ratio(m, model.KPIYieldPerHa, model.ColYield, model.ColArea, 1)
	ratio(m, model.KPINPerHa, model.ColNitrogen, model.ColArea, 1)
	ratio(m, model.KPIPPerHa, model.ColPhosphate, model.ColArea, 1)
	ratio(m, model.KPIKPerHa, model.ColPotash, model.ColArea, 1)
	ratio(m, model.KPIWaterPerTonne, model.ColWater, model.ColYield, 1)
	ratio(m, model.KPILabourHoursPerHa, model.ColLabourHours, model.ColArea, 1)

	c.emissions(m)

	ratio(m, model.KPIEmissionsPerHa, model.KPITotalEmissions, model.ColArea, 1)
	ratio(m, model.KPIEmissionsPerTonne, model.KPITotalEmissions, model.ColYield, 1)
	ratio(m, model.KPIFemaleShare, model.ColWorkersFemale, model.ColWorkersTotal, 1)
	ratio(m, model.KPIAccidentRate, model.ColAccidents, model.ColWorkersTotal, 100)

	return model.KpiRecord{Source: r, Metrics: m}
}

// emissions sets the per-activity components, the scopes and the total. A
// missing input contributes zero to the total; the total itself is missing
// only when every component is.
func (c *Calculator) emissions(m model.Metrics) {
	var fert float64
	var fertOK bool
	for _, in := range []struct {
		col string
		ef  float64
	}{
		{model.ColNitrogen, c.factors.Nitrogen},
		{model.ColPhosphate, c.factors.Phosphate},
		{model.ColPotash, c.factors.Potash},
	} {
		if v, ok := m.Get(in.col); ok {
			fert += v * in.ef
			fertOK = true
		}
	}
	m.SetIf(model.KPIEmissionsFertilizer, fert, fertOK)

	diesel, dieselOK := m.Get(model.ColDiesel)
	m.SetIf(model.KPIEmissionsDiesel, diesel*c.factors.Diesel, dieselOK)

	elec, elecOK := m.Get(model.ColElectricity)
	m.SetIf(model.KPIEmissionsElectric, elec*c.factors.Electricity, elecOK)

	m.SetIf(model.KPIScope1Emissions, diesel*c.factors.Diesel, dieselOK)
	m.SetIf(model.KPIScope2Emissions, elec*c.factors.Electricity, elecOK)
	m.SetIf(model.KPIScope3Emissions, fert, fertOK)

	if fertOK || dieselOK || elecOK {
		total := fert
		if dieselOK {
			total += diesel * c.factors.Diesel
		}
		if elecOK {
			total += elec * c.factors.Electricity
		}
		m.Set(model.KPITotalEmissions, total)
	}
}

// ratio sets name = num/den*scale when both are present and den is non-zero.
func ratio(m model.Metrics, name, num, den string, scale float64) {
	n, ok := m.Get(num)
	if !ok {
		return
	}
	d, ok := m.Get(den)
	if !ok || d == 0 {
		return
	}
	m.Set(name, n/d*scale)
}
