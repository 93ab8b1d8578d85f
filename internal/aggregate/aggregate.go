package aggregate

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/agri-esg/internal/model"
)

const keySep = "\x1f"

type group struct {
	values []string
	rows   []*model.KpiRecord
}

// Aggregate groups records on spec.GroupBy and combines each group's columns
// according to spec.Rules. Records with a blank key value are skipped. The
// result is sorted by key so it does not depend on input order.
func Aggregate(records []model.KpiRecord, spec Spec) ([]model.AggregateRecord, error) {
	if len(records) == 0 {
		return nil, model.EmptyBatch("aggregate")
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	groups := make(map[string]*group)
	skipped := 0
	for i := range records {
		vals, ok := keyValues(records[i].Source, spec.GroupBy)
		if !ok {
			skipped++
			continue
		}
		id := strings.Join(vals, keySep)
		g, ok := groups[id]
		if !ok {
			g = &group{values: vals}
			groups[id] = g
		}
		g.rows = append(g.rows, &records[i])
	}
	if skipped > 0 {
		zap.L().Warn("aggregate: skipped records without a group key",
			zap.Int("skipped", skipped),
			zap.Strings("group_by", spec.GroupBy),
		)
	}
	if len(groups) == 0 {
		return nil, &model.InputError{Stage: "aggregate", Reason: "no record carries a group key"}
	}

	present := presentColumns(records, spec)

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return lessValues(ordered[i].values, ordered[j].values)
	})

	out := make([]model.AggregateRecord, 0, len(ordered))
	for _, g := range ordered {
		out = append(out, combine(g, spec, present))
	}

	zap.L().Debug("aggregate: grouped records",
		zap.Int("records", len(records)),
		zap.Int("groups", len(out)),
	)
	return out, nil
}

func combine(g *group, spec Spec, present map[string]bool) model.AggregateRecord {
	agg := model.AggregateRecord{
		Key:        model.GroupKey{Columns: append([]string(nil), spec.GroupBy...), Values: g.values},
		Attributes: make(map[string]string),
		Metrics:    make(model.Metrics),
		Rows:       len(g.rows),
	}

	for _, r := range spec.Rules {
		name := r.Output()
		switch r.Op {
		case OpFirst:
			for _, row := range g.rows {
				if v := row.Source.Text(r.Column); v != "" {
					agg.Attributes[name] = v
					break
				}
			}

		case OpSum:
			if !present[r.Column] {
				continue
			}
			vals, missing := collect(g.rows, r.Column, false)
			agg.Metrics.Set(name, sum(vals))
			if missing > 0 {
				if agg.Missing == nil {
					agg.Missing = make(map[string]int)
				}
				agg.Missing[name] = missing
			}

		case OpMean, OpRate:
			vals, _ := collect(g.rows, r.Column, r.Op == OpRate)
			if len(vals) > 0 {
				agg.Metrics.Set(name, sum(vals)/float64(len(vals)))
			}
		}
	}
	return agg
}

// collect returns the group's non-missing values for col. For rates a record
// without the metric falls back to the 0/1 encoding of its raw cell.
func collect(rows []*model.KpiRecord, col string, rate bool) ([]float64, int) {
	vals := make([]float64, 0, len(rows))
	missing := 0
	for _, row := range rows {
		if v, ok := row.Metrics.Get(col); ok {
			vals = append(vals, v)
			continue
		}
		if rate && row.Source.Has(col) {
			vals = append(vals, row.Source.Flag(col))
			continue
		}
		missing++
	}
	return vals, missing
}

// sum adds values in ascending order so the result is independent of row order.
func sum(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	var total float64
	for _, v := range sorted {
		total += v
	}
	return total
}

// presentColumns reports which summed columns carry a value somewhere in the
// batch. A sum over a column nobody supplied is omitted rather than zero.
func presentColumns(records []model.KpiRecord, spec Spec) map[string]bool {
	present := make(map[string]bool)
	for _, r := range spec.Rules {
		if r.Op != OpSum {
			continue
		}
		for i := range records {
			if _, ok := records[i].Metrics.Get(r.Column); ok {
				present[r.Column] = true
				break
			}
		}
	}
	return present
}

func keyValues(src model.ActivityRecord, cols []string) ([]string, bool) {
	vals := make([]string, len(cols))
	for i, c := range cols {
		v := src.Text(c)
		if v == "" {
			return nil, false
		}
		vals[i] = v
	}
	return vals, true
}

func lessValues(a, b []string) bool {
	for i := range a {
		if i >= len(b) {
			return false
		}
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Merge left-joins optional onto base by group key. Values already on a base
// record win; base records without a match are returned unchanged.
func Merge(base, optional []model.AggregateRecord) []model.AggregateRecord {
	out := make([]model.AggregateRecord, len(base))
	if len(optional) == 0 {
		copy(out, base)
		return out
	}

	matched := 0
	for i, b := range base {
		rec := b
		rec.Metrics = b.Metrics.Clone()
		rec.Attributes = cloneStrings(b.Attributes)

		if opt, ok := findByKey(optional, b.Key); ok {
			matched++
			for name, v := range opt.Metrics {
				if _, exists := rec.Metrics[name]; !exists {
					rec.Metrics[name] = v
				}
			}
			for name, v := range opt.Attributes {
				if _, exists := rec.Attributes[name]; !exists {
					rec.Attributes[name] = v
				}
			}
		}
		out[i] = rec
	}

	zap.L().Debug("aggregate: merged optional data",
		zap.Int("base", len(base)),
		zap.Int("optional", len(optional)),
		zap.Int("matched", matched),
	)
	return out
}

// findByKey returns the first optional record whose values for every key
// column equal key's.
func findByKey(optional []model.AggregateRecord, key model.GroupKey) (model.AggregateRecord, bool) {
	for _, opt := range optional {
		match := true
		for i, col := range key.Columns {
			if opt.Attribute(col) != key.Values[i] {
				match = false
				break
			}
		}
		if match {
			return opt, true
		}
	}
	return model.AggregateRecord{}, false
}

func cloneStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
