package ingest

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

// Table is a parsed input file: canonical header plus one record per data row.
type Table struct {
	Source  string                 `json:"source"`
	Header  []string               `json:"header"`
	Records []model.ActivityRecord `json:"records"`
}

// NewTable builds a Table from a raw header and data rows. Header cells are
// normalised; duplicate columns keep their first occurrence. Blank rows are
// dropped and short rows are padded with empty cells.
func NewTable(source string, header []string, rows [][]string) *Table {
	t := &Table{Source: source}

	cols := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := NormaliseHeader(h)
		if name == "" || seen[name] {
			if name != "" {
				zap.L().Warn("ingest: duplicate column ignored",
					zap.String("source", source),
					zap.String("column", name),
				)
			}
			continue
		}
		seen[name] = true
		cols[i] = name
		t.Header = append(t.Header, name)
	}

	for _, row := range rows {
		if blank(row) {
			continue
		}
		rec := make(model.ActivityRecord, len(t.Header))
		for i, col := range cols {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			} else {
				rec[col] = ""
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t
}

// Has reports whether the table has the column.
func (t *Table) Has(col string) bool {
	for _, h := range t.Header {
		if h == col {
			return true
		}
	}
	return false
}

// OptionalPresent returns the known optional columns present in the table,
// in canonical order.
func (t *Table) OptionalPresent() []string {
	var out []string
	for _, group := range [][]string{
		model.OptionalNumericColumns,
		model.FlagColumns,
		{model.ColCertificationScheme, model.ColLabourHours},
	} {
		for _, col := range group {
			if t.Has(col) {
				out = append(out, col)
			}
		}
	}
	return out
}

// Check validates the table against a schema.
func (t *Table) Check(s Schema) error {
	return s.Check(t.Header)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
