package report

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/sfi"
)

var scoreColumns = []string{"E_score", "S_score", "G_score", "ESG_score", "certification_tier", "band"}

// Table flattens scored records into a header and string rows: key columns,
// attributes, metrics, then scores. Missing metrics are blank.
func Table(scored []model.ScoredRecord) ([]string, [][]string) {
	var keyCols []string
	attrSet := make(map[string]bool)
	metricSet := make(map[string]bool)
	for _, r := range scored {
		if keyCols == nil {
			keyCols = r.Key.Columns
		}
		for k := range r.Attributes {
			attrSet[k] = true
		}
		for k := range r.Metrics {
			metricSet[k] = true
		}
	}
	attrs := sortedKeys(attrSet)
	metrics := sortedKeys(metricSet)

	header := make([]string, 0, len(keyCols)+len(attrs)+len(metrics)+len(scoreColumns))
	header = append(header, keyCols...)
	header = append(header, attrs...)
	header = append(header, metrics...)
	header = append(header, scoreColumns...)

	rows := make([][]string, 0, len(scored))
	for _, r := range scored {
		row := make([]string, 0, len(header))
		row = append(row, r.Key.Values...)
		for _, a := range attrs {
			row = append(row, r.Attributes[a])
		}
		for _, m := range metrics {
			if v, ok := r.Metrics.Get(m); ok {
				row = append(row, formatFloat(v))
			} else {
				row = append(row, "")
			}
		}
		row = append(row,
			formatFloat(r.EScore),
			formatFloat(r.SScore),
			formatFloat(r.GScore),
			formatFloat(r.ESGScore),
			r.Tier,
			Band(r.ESGScore),
		)
		rows = append(rows, row)
	}
	return header, rows
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteCSV writes the scored table as CSV.
func WriteCSV(w io.Writer, scored []model.ScoredRecord) error {
	header, rows := Table(scored)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	if err := cw.WriteAll(rows); err != nil {
		return eris.Wrap(err, "report: write csv rows")
	}
	return nil
}

// sfiPlanHeader is the column layout of the SFI plan snapshot.
var sfiPlanHeader = []string{
	"Key", "SFI Soil Compliance (%)", "SFI Nutrient Compliance (%)",
	"SFI Hedgerow Compliance (%)", "Overall SFI Readiness (%)",
	"Soil Action Coverage (%)", "Policy Layer",
}

// WriteSFIPlanCSV writes the SFI readiness snapshot, one row per unit.
func WriteSFIPlanCSV(w io.Writer, readiness []sfi.Readiness) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sfiPlanHeader); err != nil {
		return eris.Wrap(err, "report: write sfi header")
	}
	for _, r := range readiness {
		policy := r.PolicyName
		if policy == "" {
			policy = "SFI"
		}
		row := []string{
			r.Key,
			formatFloat(r.SoilPct),
			formatFloat(r.NutrientPct),
			formatFloat(r.HedgerowPct),
			formatFloat(r.ReadinessPct),
			formatFloat(r.SoilActionPct),
			policy,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "report: write sfi row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush sfi csv")
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "report: encode json")
}

// Workbook is the content of an Excel export. Empty parts are omitted.
type Workbook struct {
	Scored    []model.ScoredRecord
	Insights  []string
	Emissions []EmissionsReport
	Readiness []sfi.Readiness
}

// WriteExcel writes the workbook as .xlsx with one sheet per part.
func WriteExcel(w io.Writer, wb Workbook) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Scores")
	if err != nil {
		return eris.Wrap(err, "report: add scores sheet")
	}
	header, rows := Table(wb.Scored)
	addStringRow(sheet, header)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			c := r.AddCell()
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				c.SetFloat(n)
			} else {
				c.SetString(v)
			}
		}
	}

	if len(wb.Insights) > 0 {
		sheet, err := f.AddSheet("Insights")
		if err != nil {
			return eris.Wrap(err, "report: add insights sheet")
		}
		for _, line := range wb.Insights {
			addStringRow(sheet, []string{line})
		}
	}

	if len(wb.Emissions) > 0 {
		sheet, err := f.AddSheet("Emissions")
		if err != nil {
			return eris.Wrap(err, "report: add emissions sheet")
		}
		addStringRow(sheet, []string{
			"Farm", "Report Year", "Fields", "Area (ha)",
			"Scope 1 (tCO2e)", "Scope 2 (tCO2e)", "Scope 3 (tCO2e)", "Total (tCO2e)",
			"Intensity (kg CO2e/ha)", "Top Drivers",
		})
		for _, e := range wb.Emissions {
			r := sheet.AddRow()
			r.AddCell().SetString(e.FarmName)
			r.AddCell().SetInt(e.ReportYear)
			r.AddCell().SetInt(e.Fields)
			r.AddCell().SetFloat(e.TotalAreaHa)
			r.AddCell().SetFloat(e.Scope1Total)
			r.AddCell().SetFloat(e.Scope2Total)
			r.AddCell().SetFloat(e.Scope3Total)
			r.AddCell().SetFloat(e.Total)
			r.AddCell().SetFloat(e.Intensity)
			r.AddCell().SetString(e.TopDrivers)
		}
	}

	if len(wb.Readiness) > 0 {
		sheet, err := f.AddSheet("SFI Plan")
		if err != nil {
			return eris.Wrap(err, "report: add sfi sheet")
		}
		addStringRow(sheet, sfiPlanHeader)
		for _, rd := range wb.Readiness {
			r := sheet.AddRow()
			r.AddCell().SetString(rd.Key)
			r.AddCell().SetFloat(rd.SoilPct)
			r.AddCell().SetFloat(rd.NutrientPct)
			r.AddCell().SetFloat(rd.HedgerowPct)
			r.AddCell().SetFloat(rd.ReadinessPct)
			r.AddCell().SetFloat(rd.SoilActionPct)
			r.AddCell().SetString(rd.PolicyName)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
