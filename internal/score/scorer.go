// Package score combines detector signals into per-account suspicion scores.
package score

import (
	"math"
	"sort"

	"github.com/opensource-finance/mulerift/internal/domain"
)

// Scorer folds all detection signals into one suspicion score per account
// using a deterministic weighted sum over pattern types.
type Scorer struct {
	cfg domain.ScoringConfig
}

// NewScorer creates a scorer with the given thresholds and weights.
func NewScorer(cfg domain.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Result holds scoring output plus diagnostics. Scores covers every account
// that produced at least one signal, including those below the reporting
// threshold; nothing is dropped silently.
type Result struct {
	// Accounts are the entries that met the reporting threshold, ordered by
	// account id. Final report ordering happens at assembly.
	Accounts []domain.SuspiciousAccount

	// Scores maps every signalling account to its combined score.
	Scores map[string]float64

	// SignalsTotal and BelowThreshold feed run diagnostics.
	SignalsTotal   int
	BelowThreshold int
}

// Score combines signal strengths per account. Within one pattern the
// strongest signal wins; across patterns the weighted strengths sum, scaled
// to [0,100] and capped.
func (s *Scorer) Score(signals []domain.DetectionSignal) *Result {
	// account -> pattern -> strongest signal
	strongest := make(map[string]map[string]float64)
	for _, sig := range signals {
		perPattern, ok := strongest[sig.AccountID]
		if !ok {
			perPattern = make(map[string]float64)
			strongest[sig.AccountID] = perPattern
		}
		if sig.Strength > perPattern[sig.Pattern] {
			perPattern[sig.Pattern] = sig.Strength
		}
	}

	result := &Result{
		Scores:       make(map[string]float64, len(strongest)),
		SignalsTotal: len(signals),
	}

	for accountID, perPattern := range strongest {
		var weighted float64
		var patterns []string

		for pattern, strength := range perPattern {
			weight, ok := s.cfg.Weights[pattern]
			if !ok {
				weight = 1.0
			}
			weighted += weight * strength

			// Pattern labeling uses its own floor, independent of the
			// reporting threshold.
			if strength > s.cfg.PatternFloor {
				patterns = append(patterns, pattern)
			}
		}
		sort.Strings(patterns)

		combined := round1(math.Min(100, weighted*100))
		result.Scores[accountID] = combined

		if combined < s.cfg.ReportingThreshold {
			result.BelowThreshold++
			continue
		}
		result.Accounts = append(result.Accounts, domain.SuspiciousAccount{
			AccountID:        accountID,
			SuspicionScore:   combined,
			DetectedPatterns: patterns,
		})
	}

	sort.Slice(result.Accounts, func(i, j int) bool {
		return result.Accounts[i].AccountID < result.Accounts[j].AccountID
	})

	return result
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
