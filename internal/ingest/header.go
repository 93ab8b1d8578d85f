// Package ingest reads tabular activity data from CSV and XLSX files into
// canonical ActivityRecords and checks it against a required column set.
package ingest

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/agri-esg/internal/model"
)

// aliases maps normalised variant headers onto canonical column names.
var aliases = map[string]string{
	"field_area_ha":       model.ColArea,
	"farm_area_ha":        model.ColArea,
	"fertiliser_kgn":      model.ColNitrogen,
	"fertiliser_kgp2o5":   model.ColPhosphate,
	"fertiliser_kgk2o":    model.ColPotash,
	"fertilizer_kgn":      model.ColNitrogen,
	"fertilizer_kgp2o5":   model.ColPhosphate,
	"fertilizer_kgk2o":    model.ColPotash,
	"water_volume_m3":     model.ColWater,
	"diesel_l":            model.ColDiesel,
	"organisation":        model.ColOrganisation,
	"organization":        model.ColOrganisation,
	"organization_name":   model.ColOrganisation,
	"crop_type":           model.ColCrop,
	"yield_t":             model.ColYield,
	"accidents":           model.ColAccidents,
	"female_workers":      model.ColWorkersFemale,
	"total_workers":       model.ColWorkersTotal,
	"certification_type":  model.ColCertificationScheme,
	"labour_hours_total":  model.ColLabourHours,
	"soil_organic_matter": "soil_organic_matter_pct",
}

// NormaliseHeader folds a header cell to its canonical column name: trimmed,
// case-folded, separators replaced by "_", a trailing "_yes_no" removed and
// known aliases resolved.
func NormaliseHeader(h string) string {
	s := cases.Fold().String(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '/', '(', ')':
			return '_'
		}
		return r
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	s = strings.Trim(s, "_")
	s = strings.TrimSuffix(s, "_yes_no")
	if canon, ok := aliases[s]; ok {
		return canon
	}
	return s
}
