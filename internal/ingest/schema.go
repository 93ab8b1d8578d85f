package ingest

import "github.com/sells-group/agri-esg/internal/model"

// Schema is a named set of required columns.
type Schema struct {
	Name     string
	Required []string
}

// DashboardSchema is the minimum farm-level activity table.
var DashboardSchema = Schema{
	Name: "dashboard",
	Required: []string{
		model.ColOrganisation, model.ColFarmID, model.ColCountry, model.ColYear, model.ColCrop,
		model.ColArea, model.ColYield,
		model.ColNitrogen, model.ColDiesel, model.ColElectricity, model.ColWater,
		model.ColWorkersTotal, model.ColWorkersFemale, model.ColAccidents,
	},
}

// FieldSchema is the minimum field-month activity table.
var FieldSchema = Schema{
	Name: "field",
	Required: []string{
		model.ColFarmID, model.ColFarmName, model.ColYear,
		model.ColArea, model.ColNitrogen, model.ColDiesel,
	},
}

// SchemaFor returns the schema matching an aggregation name.
func SchemaFor(aggregation string) Schema {
	if aggregation == FieldSchema.Name {
		return FieldSchema
	}
	return DashboardSchema
}

// Check returns a *model.SchemaError naming every required column absent from
// header, or nil.
func (s Schema) Check(header []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, col := range s.Required {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &model.SchemaError{Missing: missing}
	}
	return nil
}
