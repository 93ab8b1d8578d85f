package esg

import (
	"strings"

	"golang.org/x/text/cases"
)

// Tier is a closed classification of free-text certification schemes.
type Tier string

const (
	TierPremium Tier = "premium"
	TierAssured Tier = "assured"
	TierOther   Tier = "other"
	TierNone    Tier = "none"
)

// tierPatterns is checked in order; the first tier with a matching pattern wins.
var tierPatterns = []struct {
	tier     Tier
	patterns []string
}{
	{TierPremium, []string{"organic", "leaf", "soil association", "rainforest alliance"}},
	{TierAssured, []string{"red tractor", "assured", "globalg.a.p", "global g.a.p", "globalgap"}},
}

// noneValues are scheme texts meaning "not certified".
var noneValues = map[string]bool{
	"":     true,
	"none": true,
	"no":   true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"-":    true,
}

// tierScores is the fixed ordinal score of each tier.
var tierScores = map[Tier]float64{
	TierPremium: 100,
	TierAssured: 80,
	TierOther:   60,
	TierNone:    40,
}

// Classify maps a certification scheme text onto a Tier. Matching is
// case-insensitive; any unrecognised non-empty scheme is TierOther.
func Classify(scheme string) Tier {
	s := strings.Join(strings.Fields(cases.Fold().String(scheme)), " ")
	if noneValues[s] {
		return TierNone
	}
	for _, tp := range tierPatterns {
		for _, p := range tp.patterns {
			if strings.Contains(s, p) {
				return tp.tier
			}
		}
	}
	return TierOther
}

// TierScore returns the governance score of a tier.
func TierScore(t Tier) float64 {
	if s, ok := tierScores[t]; ok {
		return s
	}
	return tierScores[TierNone]
}
