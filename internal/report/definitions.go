// Package report turns scored batches into stakeholder reports: emissions
// summaries, static insights, peer benchmarks and CSV/JSON/Excel exports.
package report

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Format is an export format offered for a report.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "xlsx"
	FormatPDF   Format = "pdf"
)

// Definition describes one stakeholder report.
type Definition struct {
	Key         string   `json:"key"`
	Label       string   `json:"label"`
	Stakeholder string   `json:"stakeholder"`
	Formats     []Format `json:"formats"`
}

// Supports reports whether the definition offers f.
func (d Definition) Supports(f Format) bool {
	for _, have := range d.Formats {
		if have == f {
			return true
		}
	}
	return false
}

// Definitions lists the reports by key. PDF rendering is listed for the
// stakeholders that expect it but is not produced here.
var Definitions = map[string]Definition{
	"emissions_performance": {
		Key:         "emissions_performance",
		Label:       "Emissions & Performance",
		Stakeholder: "Banks / lenders",
		Formats:     []Format{FormatPDF, FormatExcel},
	},
	"scope3_supply_chain": {
		Key:         "scope3_supply_chain",
		Label:       "Scope 3 Supply Chain Report",
		Stakeholder: "Supermarkets / buyers",
		Formats:     []Format{FormatExcel, FormatCSV},
	},
	"sfi_plan": {
		Key:         "sfi_plan",
		Label:       "SFI Plan",
		Stakeholder: "SFI / Government",
		Formats:     []Format{FormatCSV},
	},
	"csv_esg_summary": {
		Key:         "csv_esg_summary",
		Label:       "CSV & ESG Summary",
		Stakeholder: "Advisors, agronomists",
		Formats:     []Format{FormatCSV},
	},
	"sustainability_summary": {
		Key:         "sustainability_summary",
		Label:       "Sustainability Summary",
		Stakeholder: "Farmers",
		Formats:     []Format{FormatPDF},
	},
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, error) {
	d, ok := Definitions[key]
	if !ok {
		return Definition{}, eris.Errorf("report: unknown report %q", key)
	}
	return d, nil
}

// Keys returns the report keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(Definitions))
	for k := range Definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Band maps a 0-100 score onto a traffic-light band.
func Band(score float64) string {
	switch {
	case score >= 80:
		return "green"
	case score >= 60:
		return "amber"
	case score >= 40:
		return "orange"
	default:
		return "red"
	}
}
