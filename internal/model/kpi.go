package model

import "strings"

// KpiRecord is an ActivityRecord extended with parsed inputs and derived
// per-unit metrics. Ratios with a missing denominator are absent from Metrics.
type KpiRecord struct {
	Source  ActivityRecord `json:"source"`
	Metrics Metrics        `json:"metrics"`
}

// GroupKey identifies one analysis unit (typically farm x year).
type GroupKey struct {
	Columns []string `json:"columns"`
	Values  []string `json:"values"`
}

// String joins the key values with "/".
func (k GroupKey) String() string {
	return strings.Join(k.Values, "/")
}

// Value returns the key value for col.
func (k GroupKey) Value(col string) (string, bool) {
	for i, c := range k.Columns {
		if c == col && i < len(k.Values) {
			return k.Values[i], true
		}
	}
	return "", false
}

// AggregateRecord is one row per analysis unit produced by the aggregator.
type AggregateRecord struct {
	Key        GroupKey          `json:"key"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Metrics    Metrics           `json:"metrics"`
	Rows       int               `json:"rows"`
	// Missing counts the rows that had no value for each summed column.
	Missing map[string]int `json:"missing,omitempty"`
}

// Attribute returns an identifier or categorical value, looking at the group
// key first.
func (a AggregateRecord) Attribute(col string) string {
	if v, ok := a.Key.Value(col); ok {
		return v
	}
	return a.Attributes[col]
}

// ScoredRecord is an AggregateRecord with pillar and composite scores. Scores
// are relative to the batch they were computed against.
type ScoredRecord struct {
	AggregateRecord
	EScore   float64 `json:"E_score"`
	SScore   float64 `json:"S_score"`
	GScore   float64 `json:"G_score"`
	ESGScore float64 `json:"ESG_score"`

	// Components holds each per-metric score keyed "<pillar>.<metric>".
	Components map[string]float64 `json:"components,omitempty"`
	// Tier is the certification tier when governance is scored categorically.
	Tier string `json:"certification_tier,omitempty"`
}
