package esg

import "github.com/sells-group/agri-esg/internal/model"

// Built-in policy slugs.
const (
	PolicyDashboard     = "dashboard"
	PolicySFI           = "sfi"
	PolicyCertification = "certification"
	PolicyHybrid        = "hybrid"
)

func dashboardEnvironment() []MetricSpec {
	return []MetricSpec{
		{Name: model.KPIEmissionsPerHa, Direction: Lower},
		{Name: model.KPIEmissionsPerTonne, Direction: Lower},
		{Name: model.KPINPerHa, Direction: Lower},
		{Name: model.KPIWaterPerTonne, Direction: Lower},
	}
}

func dashboardSocial() []MetricSpec {
	return []MetricSpec{
		{Name: model.KPIFemaleShare, Direction: Higher},
		{Name: model.KPIAccidentRate, Direction: Lower},
	}
}

// Builtins returns the built-in scoring policies.
func Builtins() []Policy {
	return []Policy{
		{
			Name:        "Farm dashboard",
			Slug:        PolicyDashboard,
			Description: "Percentile scoring of emissions, nutrient and water intensity, workforce and governance flags.",
			Aggregation: AggregationDashboard,
			Weights:     DefaultWeights(),
			Environment: dashboardEnvironment(),
			Social:      dashboardSocial(),
			Governance: []MetricSpec{
				{Name: "certification", Direction: Higher},
				{Name: "farm_safety_policy", Direction: Higher},
				{Name: "grievance_mechanism", Direction: Higher},
				{Name: "pesticide_handling_training", Direction: Higher},
				{Name: "living_wage_paid", Direction: Higher},
			},
			GovernanceMode: GovernancePercentile,
		},
		{
			Name:        "SFI field compliance",
			Slug:        PolicySFI,
			Description: "Farm-year scoring from field records with biodiversity, soil and SFI compliance metrics.",
			Aggregation: AggregationField,
			Weights:     DefaultWeights(),
			Environment: []MetricSpec{
				{Name: model.KPIEmissionsPerHa, Direction: Lower},
				{Name: model.KPINPerHa, Direction: Lower},
				{Name: "pesticide_use_rate", Direction: Lower},
				{Name: "hedgerow_length_m", Direction: Higher},
				{Name: "wildflower_area_ha", Direction: Higher},
				{Name: "soil_organic_matter_pct", Direction: Higher},
				{Name: "cover_crop_planted", Direction: Higher},
			},
			Social: []MetricSpec{
				{Name: model.KPILabourHoursPerHa, Direction: Higher},
				{Name: "labour_hs_training_done", Direction: Higher},
				{Name: "worker_contracts_formalised", Direction: Higher},
			},
			Governance: []MetricSpec{
				{Name: "sfi_soil_compliance_rate", Direction: Higher},
				{Name: "sfi_nutrient_compliance_rate", Direction: Higher},
				{Name: "sfi_hedgerow_compliance_rate", Direction: Higher},
				{Name: "reduced_tillage", Direction: Higher},
				{Name: "integrated_pest_management", Direction: Higher},
			},
			GovernanceMode: GovernancePercentile,
		},
		{
			Name:                "Certification governance",
			Slug:                PolicyCertification,
			Description:         "Dashboard environment and social metrics; governance from the certification scheme tier.",
			Aggregation:         AggregationDashboard,
			Weights:             DefaultWeights(),
			Environment:         dashboardEnvironment(),
			Social:              dashboardSocial(),
			GovernanceMode:      GovernanceCertification,
			CertificationColumn: model.ColCertificationScheme,
		},
		{
			Name:        "Balanced UK standard",
			Slug:        PolicyHybrid,
			Description: "Absolute threshold bands for environment and social metrics; governance from the certification scheme tier.",
			Aggregation: AggregationDashboard,
			Weights:     DefaultWeights(),
			Environment: []MetricSpec{
				{Name: model.KPIEmissionsPerTonne, Direction: Lower, Method: Threshold, Thresholds: []float64{300, 450, 600, 800}},
				{Name: model.KPIWaterPerTonne, Direction: Lower, Method: Threshold, Thresholds: []float64{2, 4, 7, 10}},
				{Name: model.KPINPerHa, Direction: Lower, Method: Threshold, Thresholds: []float64{90, 120, 160, 200}},
			},
			Social: []MetricSpec{
				{Name: model.KPIFemaleShare, Direction: Higher, Method: Threshold, Thresholds: []float64{0.4, 0.3, 0.2, 0.1}},
				{Name: model.KPIAccidentRate, Direction: Lower, Method: Threshold, Thresholds: []float64{0, 5, 10, 20}},
			},
			GovernanceMode:      GovernanceCertification,
			CertificationColumn: model.ColCertificationScheme,
		},
	}
}
