package esg

// ThresholdScore maps an absolute value onto the bands
// [excellent, good, moderate, high], scoring 100, 75, 50, 25 or 0.
//
// For lower-is-better metrics the bands ascend and a value scores the first
// band it is strictly below, so a value on a boundary falls into the worse
// band. An excellent band of exactly 0 also admits 0, so a zero accident
// rate scores 100. For higher-is-better metrics the bands descend and a value
// scores the first band it reaches or exceeds.
func ThresholdScore(v float64, bands []float64, dir Direction) float64 {
	scores := [...]float64{100, 75, 50, 25}
	for i, b := range bands {
		if i >= len(scores) {
			break
		}
		switch dir {
		case Lower:
			if v < b || (i == 0 && b == 0 && v == 0) {
				return scores[i]
			}
		default:
			if v >= b {
				return scores[i]
			}
		}
	}
	return 0
}

// thresholdScores applies ThresholdScore to every present value.
func thresholdScores(values []*float64, bands []float64, dir Direction) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = ptr(ThresholdScore(*v, bands, dir))
		}
	}
	return out
}
