package report

import (
	"strings"

	"github.com/sells-group/agri-esg/internal/model"
)

// FarmProfile identifies the farm and period an emissions report covers.
type FarmProfile struct {
	FarmName   string `json:"farm_name"`
	ReportYear int    `json:"report_year"`
	BaseYear   int    `json:"base_year"`
}

// EmissionsReport is the lender-facing emissions summary of one farm.
// Totals are tCO2e; intensities are kg CO2e per hectare.
type EmissionsReport struct {
	FarmProfile

	Fields      int     `json:"number_of_fields"`
	TotalAreaHa float64 `json:"total_area_ha"`

	Scope1Total float64 `json:"scope1_total"`
	Scope2Total float64 `json:"scope2_total"`
	Scope3Total float64 `json:"scope3_total"`
	Total       float64 `json:"total_emissions"`

	Scope1Intensity float64 `json:"scope1_intensity_kg_per_ha"`
	Scope2Intensity float64 `json:"scope2_intensity_kg_per_ha"`
	Scope3Intensity float64 `json:"scope3_intensity_kg_per_ha"`
	Intensity       float64 `json:"intensity_kg_per_ha"`

	TopDrivers string `json:"top_drivers_sentence"`
}

// BuildEmissionsReport sums the scope emissions of a farm's KPI records.
// Intensities are zero when no area is recorded.
func BuildEmissionsReport(profile FarmProfile, records []model.KpiRecord) EmissionsReport {
	var area, s1, s2, s3 float64
	fields := make(map[string]bool)
	for _, r := range records {
		area += value(r.Metrics, model.ColArea)
		s1 += value(r.Metrics, model.KPIScope1Emissions)
		s2 += value(r.Metrics, model.KPIScope2Emissions)
		s3 += value(r.Metrics, model.KPIScope3Emissions)

		id := r.Source.Text(model.ColFieldID)
		if id == "" {
			id = r.Source.Text(model.ColFieldName)
		}
		if id != "" {
			fields[id] = true
		}
	}

	rep := EmissionsReport{
		FarmProfile: profile,
		Fields:      len(fields),
		TotalAreaHa: area,
		Scope1Total: s1 / 1000,
		Scope2Total: s2 / 1000,
		Scope3Total: s3 / 1000,
		Total:       (s1 + s2 + s3) / 1000,
		TopDrivers:  driversSentence(s1, s2, s3),
	}
	if area > 0 {
		rep.Scope1Intensity = s1 / area
		rep.Scope2Intensity = s2 / area
		rep.Scope3Intensity = s3 / area
		rep.Intensity = (s1 + s2 + s3) / area
	}
	return rep
}

func value(m model.Metrics, name string) float64 {
	v, _ := m.Get(name)
	return v
}

func driversSentence(s1, s2, s3 float64) string {
	var drivers []string
	if s1 > 0 {
		drivers = append(drivers, "diesel use")
	}
	if s2 > 0 {
		drivers = append(drivers, "electricity use")
	}
	if s3 > 0 {
		drivers = append(drivers, "fertiliser use")
	}

	switch len(drivers) {
	case 0:
		return "No major emissions sources identified in the current dataset."
	case 1:
		return "Emissions are mainly driven by " + drivers[0] + "."
	default:
		last := len(drivers) - 1
		return "Emissions are mainly driven by " + strings.Join(drivers[:last], ", ") + " and " + drivers[last] + "."
	}
}
