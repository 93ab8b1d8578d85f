package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agri-esg/internal/config"
	"github.com/sells-group/agri-esg/internal/esg"
	"github.com/sells-group/agri-esg/internal/kpi"
	"github.com/sells-group/agri-esg/internal/model"
	"github.com/sells-group/agri-esg/internal/narrative"
	"github.com/sells-group/agri-esg/internal/pipeline"
	"github.com/sells-group/agri-esg/internal/report"
)

const (
	formatTable = "table"
	formatCSV   = "csv"
	formatJSON  = "json"
	formatXLSX  = "xlsx"
)

func validFormat(f string) bool {
	switch f {
	case formatTable, formatCSV, formatJSON, formatXLSX:
		return true
	}
	return false
}

// scoreOutput is a scored result with its derived reports.
type scoreOutput struct {
	*pipeline.Result
	Insights  []string                 `json:"insights"`
	Peers     report.PeerAverages      `json:"peer_averages"`
	Emissions []report.EmissionsReport `json:"emissions,omitempty"`
	Advice    []narrative.Advice       `json:"advice,omitempty"`
}

func newScoreOutput(res *pipeline.Result) scoreOutput {
	return scoreOutput{
		Result:   res,
		Insights: report.Insights(res.Scored),
		Peers:    report.Peers(res.Scored),
	}
}

// writeOutput renders out in the given format.
func writeOutput(w io.Writer, out scoreOutput, format string) error {
	switch format {
	case formatTable:
		printScores(w, out)
		return nil
	case formatCSV:
		return report.WriteCSV(w, out.Scored)
	case formatJSON:
		return report.WriteJSON(w, out)
	case formatXLSX:
		return report.WriteExcel(w, report.Workbook{
			Scored:    out.Scored,
			Insights:  out.Insights,
			Emissions: out.Emissions,
			Readiness: out.Readiness,
		})
	default:
		return eris.Errorf("unknown format %q", format)
	}
}

// printScores writes a tabular score listing followed by insights, SFI
// readiness and advice.
func printScores(out io.Writer, res scoreOutput) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Policy:\t%s (%s)\n", res.PolicyName, res.Policy)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", res.Records)
	_, _ = fmt.Fprintf(w, "Units:\t%d\n", res.Summary.Count)
	if res.CacheHit {
		_, _ = fmt.Fprintln(w, "Cache:\thit")
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "UNIT\tE\tS\tG\tESG\tBAND\tTIER")
	_, _ = fmt.Fprintln(w, "----\t-\t-\t-\t---\t----\t----")
	for _, r := range res.Scored {
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.1f\t%s\t%s\n",
			r.Key, r.EScore, r.SScore, r.GScore, r.ESGScore, report.Band(r.ESGScore), r.Tier)
	}
	_ = w.Flush()

	if len(res.Insights) > 0 {
		_, _ = fmt.Fprintln(out, "\nInsights:")
		for _, line := range res.Insights {
			_, _ = fmt.Fprintf(out, "  - %s\n", line)
		}
	}

	if len(res.Readiness) > 0 {
		_, _ = fmt.Fprintln(out, "\nSFI readiness:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "UNIT\tSOIL%\tNUTRIENT%\tHEDGEROW%\tREADINESS%")
		for _, rd := range res.Readiness {
			_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.1f\t%.1f\n",
				rd.Key, rd.SoilPct, rd.NutrientPct, rd.HedgerowPct, rd.ReadinessPct)
		}
		_ = w.Flush()
	}

	for _, a := range res.Advice {
		_, _ = fmt.Fprintf(out, "\nAdvice for %s:\n", a.Key)
		for _, line := range a.Lines {
			_, _ = fmt.Fprintf(out, "  - %s\n", line)
		}
	}
}

// emissionsByFarm builds one emissions report per farm_id, in farm order.
// Records without a farm_id are left out.
func emissionsByFarm(c *config.Config, records []model.ActivityRecord) []report.EmissionsReport {
	calc := kpi.NewCalculator(c.EmissionFactors, missingPolicy(c))

	byFarm := make(map[string][]model.KpiRecord)
	profiles := make(map[string]*report.FarmProfile)
	for _, kr := range calc.Compute(records) {
		id := kr.Source.Text(model.ColFarmID)
		if id == "" {
			continue
		}
		byFarm[id] = append(byFarm[id], kr)

		p, ok := profiles[id]
		if !ok {
			p = &report.FarmProfile{FarmName: id}
			profiles[id] = p
		}
		if name := kr.Source.Text(model.ColFarmName); name != "" && p.FarmName == id {
			p.FarmName = name
		}
		if y, err := strconv.Atoi(kr.Source.Text(model.ColYear)); err == nil {
			if y > p.ReportYear {
				p.ReportYear = y
			}
			if p.BaseYear == 0 || y < p.BaseYear {
				p.BaseYear = y
			}
		}
	}

	ids := make([]string, 0, len(byFarm))
	for id := range byFarm {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]report.EmissionsReport, 0, len(ids))
	for _, id := range ids {
		out = append(out, report.BuildEmissionsReport(*profiles[id], byFarm[id]))
	}
	return out
}

// printPolicies writes the registered policies to w.
func printPolicies(out io.Writer, policies []esg.Policy) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SLUG\tNAME\tAGGREGATION\tWEIGHTS (E/S/G)\tGOVERNANCE")
	_, _ = fmt.Fprintln(w, "----\t----\t-----------\t---------------\t----------")
	for _, p := range policies {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%.2f/%.2f/%.2f\t%s\n",
			p.Slug, p.Name, p.Aggregation,
			p.Weights.Environment, p.Weights.Social, p.Weights.Governance,
			p.GovernanceMode,
		)
	}
	_ = w.Flush()
}
