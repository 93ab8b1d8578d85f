package model

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// ActivityRecord is one raw input row (a field or farm for one period) keyed
// by canonical column name. Values are kept as delivered; numeric coercion
// happens on read.
type ActivityRecord map[string]string

// Has reports whether the column exists on the record, even if blank.
func (r ActivityRecord) Has(col string) bool {
	_, ok := r[col]
	return ok
}

// Text returns the trimmed cell value.
func (r ActivityRecord) Text(col string) string {
	return strings.TrimSpace(r[col])
}

// Float parses a numeric cell. Blank, non-numeric and non-finite cells
// report ok=false.
func (r ActivityRecord) Float(col string) (float64, bool) {
	return ParseFloat(r[col])
}

// Flag returns the 0/1 encoding of a yes/no cell.
func (r ActivityRecord) Flag(col string) float64 {
	return ParseFlag(r[col])
}

// Columns returns the record's column names in sorted order.
func (r ActivityRecord) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// ParseFloat converts a cell to a finite float64.
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseFlag maps yes/true/1 (any case) to 1 and everything else to 0.
func ParseFlag(s string) float64 {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return 1
	default:
		return 0
	}
}
