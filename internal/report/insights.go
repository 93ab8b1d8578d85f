package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/agri-esg/internal/model"
)

// Insights returns the static narrative sentences for a scored batch.
func Insights(scored []model.ScoredRecord) []string {
	if len(scored) == 0 {
		return []string{"No insights available: no farms after filtering."}
	}

	var out []string

	var sum float64
	for _, r := range scored {
		sum += r.ESGScore
	}
	out = append(out, fmt.Sprintf("Average ESG score across %d farms is %.1f/100.", len(scored), sum/float64(len(scored))))

	byESG := ordered(scored, func(r model.ScoredRecord) (float64, bool) { return r.ESGScore, true })
	top, bottom := byESG[0], byESG[len(byESG)-1]
	out = append(out,
		fmt.Sprintf("Farm %s%s is the current ESG leader with a score of %.1f.", top.Key, where(top), top.ESGScore),
		fmt.Sprintf("Farm %s%s has the lowest ESG score (%.1f), indicating a priority candidate for support.", bottom.Key, where(bottom), bottom.ESGScore),
	)

	hot := ordered(scored, metric(model.KPIEmissionsPerHa))
	if len(hot) > 0 {
		if len(hot) > 3 {
			hot = hot[:3]
		}
		keys := make([]string, len(hot))
		for i, r := range hot {
			keys[i] = r.Key.String()
		}
		out = append(out, fmt.Sprintf("Highest emissions per hectare are observed in farms: %s. These are key hotspots for mitigation actions.", strings.Join(keys, ", ")))
	}

	if gender := ordered(scored, metric(model.KPIFemaleShare)); len(gender) > 0 {
		best := gender[0]
		out = append(out, fmt.Sprintf("Best gender inclusion: Farm %s with %.0f%% female workers.", best.Key, best.Metrics[model.KPIFemaleShare]*100))
	}

	if safety := ordered(scored, metric(model.KPIAccidentRate)); len(safety) > 0 {
		worst := safety[0]
		out = append(out, fmt.Sprintf("Safety concern: Farm %s records %.1f accidents per 100 workers.", worst.Key, worst.Metrics[model.KPIAccidentRate]))
	}

	return out
}

// ordered returns the records that have a value, highest first. Ties keep
// batch order.
func ordered(scored []model.ScoredRecord, val func(model.ScoredRecord) (float64, bool)) []model.ScoredRecord {
	type entry struct {
		r model.ScoredRecord
		v float64
	}
	var entries []entry
	for _, r := range scored {
		if v, ok := val(r); ok {
			entries = append(entries, entry{r, v})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].v > entries[j].v })

	out := make([]model.ScoredRecord, len(entries))
	for i, e := range entries {
		out[i] = e.r
	}
	return out
}

func metric(name string) func(model.ScoredRecord) (float64, bool) {
	return func(r model.ScoredRecord) (float64, bool) {
		return r.Metrics.Get(name)
	}
}

func where(r model.ScoredRecord) string {
	if c := r.Attribute(model.ColCountry); c != "" {
		return " in " + c
	}
	return ""
}

// PeerAverages are anonymous batch means used to benchmark one farm without
// disclosing any other farm's results. A nil field means no farm reported it.
type PeerAverages struct {
	EmissionsPerTonne *float64 `json:"emissions_per_tonne,omitempty"`
	WaterPerTonne     *float64 `json:"water_per_tonne,omitempty"`
	FemaleShare       *float64 `json:"female_share,omitempty"`
	AccidentRate      *float64 `json:"accidents_per_100_workers,omitempty"`
}

// Peers computes the batch means over the records that carry each metric.
func Peers(scored []model.ScoredRecord) PeerAverages {
	return PeerAverages{
		EmissionsPerTonne: mean(scored, model.KPIEmissionsPerTonne),
		WaterPerTonne:     mean(scored, model.KPIWaterPerTonne),
		FemaleShare:       mean(scored, model.KPIFemaleShare),
		AccidentRate:      mean(scored, model.KPIAccidentRate),
	}
}

func mean(scored []model.ScoredRecord, name string) *float64 {
	var sum float64
	var n int
	for _, r := range scored {
		if v, ok := r.Metrics.Get(name); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	m := sum / float64(n)
	return &m
}

// Benchmark writes the farm-level narrative for one record against its
// anonymous peers.
func Benchmark(r model.ScoredRecord, peers PeerAverages) []string {
	lines := []string{fmt.Sprintf("ESG narrative for %s", r.Key)}
	if org := r.Attribute(model.ColOrganisation); org != "" {
		lines[0] += " (" + org + ")"
	}

	if v, ok := r.Metrics.Get(model.KPIEmissionsPerTonne); ok {
		lines = append(lines, fmt.Sprintf("Emissions per tonne: %.1f kg CO2e/t%s.", v, versus(peers.EmissionsPerTonne, "%.1f")))
	}
	if v, ok := r.Metrics.Get(model.KPIWaterPerTonne); ok {
		lines = append(lines, fmt.Sprintf("Water per tonne: %.1f m3/t%s.", v, versus(peers.WaterPerTonne, "%.1f")))
	}
	if v, ok := r.Metrics.Get(model.KPIFemaleShare); ok {
		lines = append(lines, fmt.Sprintf("Female workforce: %.0f%%%s.", v*100, versus(scale(peers.FemaleShare, 100), "%.0f%%")))
	}
	if v, ok := r.Metrics.Get(model.KPIAccidentRate); ok {
		lines = append(lines, fmt.Sprintf("Accident rate: %.1f per 100 workers%s.", v, versus(peers.AccidentRate, "%.1f")))
	}

	cert := r.Attribute(model.ColCertificationScheme)
	if cert == "" {
		cert = "None"
	}
	lines = append(lines,
		"Certification: "+cert+".",
		fmt.Sprintf("Scores: Environment %.0f, Social %.0f, Governance %.0f, overall ESG %.0f/100 (%s).",
			r.EScore, r.SScore, r.GScore, r.ESGScore, Band(r.ESGScore)),
	)
	return lines
}

func versus(peer *float64, verb string) string {
	if peer == nil {
		return ""
	}
	return fmt.Sprintf(" (peer average "+verb+")", *peer)
}

func scale(v *float64, by float64) *float64 {
	if v == nil {
		return nil
	}
	s := *v * by
	return &s
}
