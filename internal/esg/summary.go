package esg

import "github.com/sells-group/agri-esg/internal/model"

// Summary holds batch-level statistics of a scored batch.
type Summary struct {
	Count        int     `json:"count"`
	MeanESG      float64 `json:"mean_esg"`
	MeanE        float64 `json:"mean_e"`
	MeanS        float64 `json:"mean_s"`
	MeanG        float64 `json:"mean_g"`
	Leader       string  `json:"leader"`
	LeaderScore  float64 `json:"leader_score"`
	Laggard      string  `json:"laggard"`
	LaggardScore float64 `json:"laggard_score"`
}

// Summarise computes the batch means and the highest and lowest composite
// scores. Ties go to the earlier record.
func Summarise(scored []model.ScoredRecord) Summary {
	var s Summary
	if len(scored) == 0 {
		return s
	}
	s.Count = len(scored)
	lead, lag := 0, 0
	for i, r := range scored {
		s.MeanESG += r.ESGScore
		s.MeanE += r.EScore
		s.MeanS += r.SScore
		s.MeanG += r.GScore
		if r.ESGScore > scored[lead].ESGScore {
			lead = i
		}
		if r.ESGScore < scored[lag].ESGScore {
			lag = i
		}
	}
	n := float64(len(scored))
	s.MeanESG /= n
	s.MeanE /= n
	s.MeanS /= n
	s.MeanG /= n
	s.Leader = scored[lead].Key.String()
	s.LeaderScore = scored[lead].ESGScore
	s.Laggard = scored[lag].Key.String()
	s.LaggardScore = scored[lag].ESGScore
	return s
}
