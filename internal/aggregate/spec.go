// Package aggregate rolls per-record KPI rows up to analysis units such as
// farm-year.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agri-esg/internal/model"
)

// Op is the combination rule applied to one column within a group.
type Op string

const (
	// OpFirst takes the first non-blank text value (identifiers, categories).
	OpFirst Op = "first"
	// OpSum adds extensive quantities, missing counted as zero.
	OpSum Op = "sum"
	// OpMean averages the non-missing values of intensity and share ratios.
	OpMean Op = "mean"
	// OpRate averages the 0/1 encoding of a yes/no column.
	OpRate Op = "rate"
)

// Rule combines one input column into one output column.
type Rule struct {
	Column string `yaml:"column"`
	Op     Op     `yaml:"op"`
	As     string `yaml:"as,omitempty"`
}

// Output returns the output column name.
func (r Rule) Output() string {
	if r.As != "" {
		return r.As
	}
	return r.Column
}

// Spec is the full aggregation configuration.
type Spec struct {
	GroupBy []string `yaml:"group_by"`
	Rules   []Rule   `yaml:"rules"`
}

// WithGroupBy returns a copy of s grouped on cols.
func (s Spec) WithGroupBy(cols []string) Spec {
	out := Spec{GroupBy: append([]string(nil), cols...)}
	for _, r := range s.Rules {
		if contains(cols, r.Column) {
			continue
		}
		out.Rules = append(out.Rules, r)
	}
	return out
}

// Validate checks that the spec is usable.
func (s Spec) Validate() error {
	var errs []string
	if len(s.GroupBy) == 0 {
		errs = append(errs, "group_by must name at least one column")
	}
	seen := make(map[string]bool)
	for i, r := range s.Rules {
		if r.Column == "" {
			errs = append(errs, fmt.Sprintf("rule %d: column is required", i))
			continue
		}
		switch r.Op {
		case OpFirst, OpSum, OpMean, OpRate:
		default:
			errs = append(errs, fmt.Sprintf("rule %s: unknown op %q", r.Column, r.Op))
		}
		if contains(s.GroupBy, r.Output()) {
			errs = append(errs, fmt.Sprintf("rule %s: output %q collides with group key", r.Column, r.Output()))
		}
		if seen[r.Output()] {
			errs = append(errs, fmt.Sprintf("rule %s: duplicate output %q", r.Column, r.Output()))
		}
		seen[r.Output()] = true
	}
	if len(errs) > 0 {
		return eris.Errorf("aggregate: invalid spec: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DashboardSpec reproduces the farm-level dashboard roll-up.
func DashboardSpec() Spec {
	rules := []Rule{
		{Column: model.ColOrganisation, Op: OpFirst},
		{Column: model.ColFarmName, Op: OpFirst},
		{Column: model.ColCountry, Op: OpFirst},
		{Column: model.ColCrop, Op: OpFirst},
		{Column: model.ColCertificationScheme, Op: OpFirst},

		{Column: model.ColArea, Op: OpSum},
		{Column: model.ColYield, Op: OpSum},
		{Column: model.ColWater, Op: OpSum},
		{Column: model.KPITotalEmissions, Op: OpSum},
		{Column: model.KPIEmissionsFertilizer, Op: OpSum},
		{Column: model.KPIEmissionsDiesel, Op: OpSum},
		{Column: model.KPIEmissionsElectric, Op: OpSum},
		{Column: model.KPIScope1Emissions, Op: OpSum},
		{Column: model.KPIScope2Emissions, Op: OpSum},
		{Column: model.KPIScope3Emissions, Op: OpSum},
		{Column: model.ColWorkersTotal, Op: OpSum},
		{Column: model.ColWorkersFemale, Op: OpSum},
		{Column: model.ColAccidents, Op: OpSum},

		{Column: model.KPIEmissionsPerHa, Op: OpMean},
		{Column: model.KPIEmissionsPerTonne, Op: OpMean},
		{Column: model.KPINPerHa, Op: OpMean},
		{Column: model.KPIWaterPerTonne, Op: OpMean},
		{Column: model.KPIYieldPerHa, Op: OpMean},
		{Column: model.KPIFemaleShare, Op: OpMean},
		{Column: model.KPIAccidentRate, Op: OpMean},
	}
	for _, col := range GovernanceFlags {
		rules = append(rules, Rule{Column: col, Op: OpRate})
	}
	return Spec{GroupBy: []string{model.ColFarmID}, Rules: rules}
}

// GovernanceFlags are the yes/no governance indicators of the dashboard variant.
var GovernanceFlags = []string{
	"certification",
	"farm_safety_policy",
	"grievance_mechanism",
	"pesticide_handling_training",
	"living_wage_paid",
}

// FieldSpec reproduces the field-month to farm-year roll-up with SFI
// compliance rates, followed by the optional soil and biodiversity columns.
func FieldSpec() Spec {
	rules := []Rule{
		{Column: model.ColFarmName, Op: OpFirst},
		{Column: model.ColCertificationScheme, Op: OpFirst},

		{Column: model.ColArea, Op: OpSum},
		{Column: model.KPITotalEmissions, Op: OpSum},
		{Column: model.KPIEmissionsFertilizer, Op: OpSum},
		{Column: model.KPIEmissionsDiesel, Op: OpSum},
		{Column: model.KPIScope1Emissions, Op: OpSum},
		{Column: model.KPIScope3Emissions, Op: OpSum},
		{Column: model.ColLabourHours, Op: OpSum},

		{Column: model.KPINPerHa, Op: OpMean},
		{Column: model.KPIPPerHa, Op: OpMean},
		{Column: model.KPIKPerHa, Op: OpMean},
		{Column: model.KPIEmissionsPerHa, Op: OpMean},
		{Column: model.KPILabourHoursPerHa, Op: OpMean},

		{Column: "pesticide_applied", Op: OpRate, As: "pesticide_use_rate"},
		{Column: "irrigation_applied", Op: OpRate, As: "irrigation_rate"},
		{Column: "livestock_present", Op: OpRate, As: "livestock_presence"},
		{Column: "sfi_soil_standard", Op: OpRate, As: "sfi_soil_compliance_rate"},
		{Column: "sfi_nutrient_management", Op: OpRate, As: "sfi_nutrient_compliance_rate"},
		{Column: "sfi_hedgerows", Op: OpRate, As: "sfi_hedgerow_compliance_rate"},
	}
	rules = append(rules, OptionalSpec().Rules...)
	return Spec{GroupBy: []string{model.ColFarmID, model.ColYear}, Rules: rules}
}

// OptionalSpec aggregates a supplementary soil, biodiversity and workforce
// dataset to farm-year before it is merged onto the base aggregate.
func OptionalSpec() Spec {
	return Spec{
		GroupBy: []string{model.ColFarmID, model.ColYear},
		Rules: []Rule{
			{Column: "soil_organic_matter_pct", Op: OpMean},
			{Column: "soil_ph", Op: OpMean},
			{Column: "cover_crop_planted", Op: OpRate},
			{Column: "hedgerow_length_m", Op: OpSum},
			{Column: "wildflower_area_ha", Op: OpSum},
			{Column: "buffer_strip_area_ha", Op: OpSum},
			{Column: "trees_planted_count", Op: OpSum},
			{Column: "reduced_tillage", Op: OpRate},
			{Column: "integrated_pest_management", Op: OpRate},
			{Column: model.ColWater, Op: OpSum},
			{Column: "labour_hs_training_done", Op: OpRate},
			{Column: "worker_contracts_formalised", Op: OpRate},
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
