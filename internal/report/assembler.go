// Package report assembles and serializes the final analysis result.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// Assemble merges scored accounts and rings into the immutable result.
/// It enforces the output invariants before returning: a breach means a
// detector or aggregator bug and is surfaced, never silently corrected.
func Assemble(accounts []domain.SuspiciousAccount, rings []domain.FraudRing, assignment map[string]string, g *graph.Graph, elapsed time.Duration) (*domain.AnalysisResult, error) {
	ringIDs := make(map[string]struct{}, len(rings))
	for _, r := range rings {
		ringIDs[r.RingID] = struct{}{}
		for _, member := range r.MemberAccounts {
			if !g.HasNode(member) {
				return nil, fmt.Errorf("%w: ring %s references unknown account %s",
					domain.ErrInvariant, r.RingID, member)
			}
		}
	}

	out := make([]domain.SuspiciousAccount, len(accounts))
	copy(out, accounts)
	for i := range out {
		if out[i].DetectedPatterns == nil {
			out[i].DetectedPatterns = []string{}
		}
		if ringID, ok := assignment[out[i].AccountID]; ok {
			if _, exists := ringIDs[ringID]; !exists {
				return nil, fmt.Errorf("%w: account %s assigned to unknown ring %s",
					domain.ErrInvariant, out[i].AccountID, ringID)
			}
			id := ringID
			out[i].RingID = &id
		}
	}

	// Accounts by score descending, then id; rings by risk descending, then id.
	sort.Slice(out, func(i, j int) bool {
		if out[i].SuspicionScore != out[j].SuspicionScore {
			return out[i].SuspicionScore > out[j].SuspicionScore
		}
		return out[i].AccountID < out[j].AccountID
	})

	sortedRings := make([]domain.FraudRing, len(rings))
	copy(sortedRings, rings)
	sort.Slice(sortedRings, func(i, j int) bool {
		if sortedRings[i].RiskScore != sortedRings[j].RiskScore {
			return sortedRings[i].RiskScore > sortedRings[j].RiskScore
		}
		return sortedRings[i].RingID < sortedRings[j].RingID
	})

	return &domain.AnalysisResult{
		SuspiciousAccounts: out,
		FraudRings:         sortedRings,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     g.NodeCount(),
			SuspiciousAccountsFlagged: len(out),
			FraudRingsDetected:        len(sortedRings),
			ProcessingTimeSeconds:     math.Round(elapsed.Seconds()*1000) / 1000,
		},
	}, nil
}

// Marshal serializes a result in the wire format consumed downstream.
func Marshal(result *domain.AnalysisResult) ([]byte, error) {
	return json.MarshalIndent(result, "", "  ")
}
