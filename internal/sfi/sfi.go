// Package sfi assesses farm readiness for the Sustainable Farming Incentive
// from aggregated compliance rates and field-level soil actions.
package sfi

import (
	"math"
	"strings"

	"github.com/sells-group/agri-esg/internal/model"
)

// ActionType is a field-level practice counted towards SFI soil standards.
type ActionType string

const (
	ActionCoverCrop      ActionType = "cover_crop"
	ActionReducedTillage ActionType = "reduced_tillage"
)

// Action is one practice adopted on one field in one year.
type Action struct {
	FieldID string     `json:"field_id"`
	Type    ActionType `json:"action_type"`
	Year    string     `json:"year"`
}

// actionColumns maps yes/no columns onto the action they record.
var actionColumns = []struct {
	col    string
	action ActionType
}{
	{"cover_crop_planted", ActionCoverCrop},
	{"reduced_tillage", ActionReducedTillage},
}

// Readiness is the SFI assessment of one analysis unit. Percentages are 0-100.
type Readiness struct {
	Policy        string  `json:"policy"`
	PolicyName    string  `json:"policy_name"`
	Key           string  `json:"key"`
	SoilPct       float64 `json:"soil_pct"`
	NutrientPct   float64 `json:"nutrient_pct"`
	HedgerowPct   float64 `json:"hedgerow_pct"`
	ReadinessPct  float64 `json:"readiness_pct"`
	SoilActionPct float64 `json:"soil_action_pct"`
	Fields        int     `json:"fields"`
	Actions       int     `json:"actions"`
}

// ExtractActions returns the soil actions recorded on each row. The field is
// identified by field_id, falling back to field_name.
func ExtractActions(records []model.ActivityRecord) []Action {
	var out []Action
	for _, r := range records {
		fid := fieldID(r)
		for _, ac := range actionColumns {
			if r.Has(ac.col) && r.Flag(ac.col) == 1 {
				out = append(out, Action{FieldID: fid, Type: ac.action, Year: r.Text(model.ColYear)})
			}
		}
	}
	return out
}

// Assess computes the readiness of one aggregate from its compliance rates
// and the raw records it was built from. Missing rates count as zero.
func Assess(agg model.AggregateRecord, records []model.ActivityRecord) Readiness {
	r := Readiness{
		Policy:      "sfi",
		PolicyName:  "Sustainable Farming Incentive",
		Key:         agg.Key.String(),
		SoilPct:     pct(agg.Metrics, "sfi_soil_compliance_rate"),
		NutrientPct: pct(agg.Metrics, "sfi_nutrient_compliance_rate"),
		HedgerowPct: pct(agg.Metrics, "sfi_hedgerow_compliance_rate"),
	}
	r.ReadinessPct = (r.SoilPct + r.NutrientPct + r.HedgerowPct) / 3

	fields := make(map[string]bool)
	for _, rec := range records {
		if id := fieldID(rec); id != "" {
			fields[id] = true
		}
	}
	actions := ExtractActions(records)
	r.Fields = len(fields)
	r.Actions = len(actions)
	r.SoilActionPct = math.Min(100, float64(len(actions))/float64(max(len(fields), 1))*100)
	return r
}

// AssessBatch partitions records by each aggregate's group key and assesses
// every aggregate, in order.
func AssessBatch(aggs []model.AggregateRecord, records []model.ActivityRecord) []Readiness {
	byKey := make(map[string][]model.ActivityRecord)
	for _, agg := range aggs {
		byKey[agg.Key.String()] = nil
	}
	for _, rec := range records {
		if len(aggs) == 0 {
			break
		}
		vals := make([]string, len(aggs[0].Key.Columns))
		for i, col := range aggs[0].Key.Columns {
			vals[i] = rec.Text(col)
		}
		k := strings.Join(vals, "/")
		if _, ok := byKey[k]; ok {
			byKey[k] = append(byKey[k], rec)
		}
	}

	out := make([]Readiness, len(aggs))
	for i, agg := range aggs {
		out[i] = Assess(agg, byKey[agg.Key.String()])
	}
	return out
}

func fieldID(r model.ActivityRecord) string {
	if id := r.Text(model.ColFieldID); id != "" {
		return id
	}
	return r.Text(model.ColFieldName)
}

func pct(m model.Metrics, name string) float64 {
	v, ok := m.Get(name)
	if !ok {
		return 0
	}
	return v * 100
}
