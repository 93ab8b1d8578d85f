package esg

import (
	"math"
	"sort"
)

// NeutralScore is assigned when there is no relative signal to rank.
const NeutralScore = 50.0

// PercentileScores ranks values against each other and maps the rank to a
// 0-100 score in the given direction. Nil entries are missing and receive a
// nil score. Ties share their average rank; the lowest value ranks 0 and the
// highest ranks 1. When fewer than two distinct values are present every
// entry, missing or not, scores NeutralScore.
func PercentileScores(values []*float64, dir Direction) []*float64 {
	out := make([]*float64, len(values))

	type entry struct {
		idx int
		v   float64
	}
	present := make([]entry, 0, len(values))
	for i, v := range values {
		if v != nil {
			present = append(present, entry{idx: i, v: *v})
		}
	}

	if distinct(present, func(e entry) float64 { return e.v }) <= 1 {
		for i := range out {
			out[i] = ptr(NeutralScore)
		}
		return out
	}

	sort.SliceStable(present, func(a, b int) bool { return present[a].v < present[b].v })

	n := len(present)
	for start := 0; start < n; {
		end := start
		for end+1 < n && present[end+1].v == present[start].v {
			end++
		}
		// 1-based ranks start+1..end+1 share their average.
		avg := float64(start+end)/2 + 1
		rank := (avg - 1) / float64(n-1)

		score := rank * 100
		if dir == Lower {
			score = (1 - rank) * 100
		}
		score = round1(score)
		for k := start; k <= end; k++ {
			out[present[k].idx] = ptr(score)
		}
		start = end + 1
	}
	return out
}

func distinct[T any](items []T, val func(T) float64) int {
	seen := make(map[float64]struct{}, len(items))
	for _, it := range items {
		seen[val(it)] = struct{}{}
	}
	return len(seen)
}

func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}

func ptr(v float64) *float64 {
	return &v
}
