package model

// Canonical input column names. The ingest layer maps variant headers onto these.
const (
	ColOrganisation        = "organisation_name"
	ColFarmID              = "farm_id"
	ColFarmName            = "farm_name"
	ColFieldID             = "field_id"
	ColFieldName           = "field_name"
	ColCountry             = "country"
	ColCrop                = "crop"
	ColYear                = "year"
	ColMonth               = "month"
	ColArea                = "area_ha"
	ColYield               = "yield_tonnes"
	ColNitrogen            = "fertilizer_n_kg"
	ColPhosphate           = "fertilizer_p_kg"
	ColPotash              = "fertilizer_k_kg"
	ColDiesel              = "diesel_litres"
	ColElectricity         = "electricity_kwh"
	ColWater               = "water_m3"
	ColWorkersTotal        = "workers_total"
	ColWorkersFemale       = "workers_female"
	ColAccidents           = "accidents_count"
	ColLabourHours         = "labour_hours"
	ColCertificationScheme = "certification_scheme"
)

// Derived KPI names produced by the KPI calculator.
const (
	KPIYieldPerHa          = "yield_per_ha"
	KPINPerHa              = "n_per_ha"
	KPIPPerHa              = "p_per_ha"
	KPIKPerHa              = "k_per_ha"
	KPIWaterPerTonne       = "water_per_tonne"
	KPILabourHoursPerHa    = "labour_hours_per_ha"
	KPIEmissionsFertilizer = "emissions_fertilizer"
	KPIEmissionsDiesel     = "emissions_diesel"
	KPIEmissionsElectric   = "emissions_electric"
	KPITotalEmissions      = "total_emissions"
	KPIEmissionsPerHa      = "emissions_per_ha"
	KPIEmissionsPerTonne   = "emissions_per_tonne"
	KPIScope1Emissions     = "scope1_emissions"
	KPIScope2Emissions     = "scope2_emissions"
	KPIScope3Emissions     = "scope3_emissions"
	KPIFemaleShare         = "female_share"
	KPIAccidentRate        = "accidents_per_100_workers"
)

// NumericInputColumns are parsed from every record when present.
var NumericInputColumns = []string{
	ColArea, ColYield,
	ColNitrogen, ColPhosphate, ColPotash,
	ColDiesel, ColElectricity, ColWater,
	ColWorkersTotal, ColWorkersFemale, ColAccidents,
	ColLabourHours,
}

// OptionalNumericColumns carry soil and biodiversity measurements through
// to aggregation unchanged.
var OptionalNumericColumns = []string{
	"soil_organic_matter_pct",
	"soil_ph",
	"hedgerow_length_m",
	"wildflower_area_ha",
	"buffer_strip_area_ha",
	"trees_planted_count",
}

// FlagColumns are yes/no practice, compliance and governance indicators.
// They are 0/1 encoded when present on a record.
var FlagColumns = []string{
	"pesticide_applied",
	"irrigation_applied",
	"livestock_present",
	"sfi_soil_standard",
	"sfi_nutrient_management",
	"sfi_hedgerows",
	"cover_crop_planted",
	"reduced_tillage",
	"integrated_pest_management",
	"labour_hs_training_done",
	"worker_contracts_formalised",
	"certification",
	"farm_safety_policy",
	"grievance_mechanism",
	"pesticide_handling_training",
	"living_wage_paid",
}
