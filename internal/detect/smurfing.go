package detect

import (
	"context"
	"math"
	"sort"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// SmurfingDetector finds structuring hubs: many distinct counterparties
// moving sub-ceiling amounts through one account inside a short window,
// either fan-in or fan-out.
type SmurfingDetector struct {
	cfg domain.SmurfingConfig
}

// NewSmurfingDetector creates a smurfing detector with the given thresholds.
func NewSmurfingDetector(cfg domain.SmurfingConfig) *SmurfingDetector {
	return &SmurfingDetector{cfg: cfg}
}

// Name implements Detector.
func (d *SmurfingDetector) Name() string { return domain.PatternSmurfing }

// Detect checks every node as a potential hub in both directions.
func (d *SmurfingDetector) Detect(ctx context.Context, g *graph.Graph) []domain.DetectionSignal {
	var signals []domain.DetectionSignal

	for _, hub := range g.NodeIDs() {
		if ctx.Err() != nil {
			return nil
		}
		if sig, ok := d.checkHub(g, hub, g.InEdges(hub), false); ok {
			signals = append(signals, sig...)
		}
		if sig, ok := d.checkHub(g, hub, g.OutEdges(hub), true); ok {
			signals = append(signals, sig...)
		}
	}
	return signals
}

// checkHub slides a time window over the hub's sub-ceiling legs and looks
// for the densest distinct-counterparty window. Edges arrive oldest first.
func (d *SmurfingDetector) checkHub(g *graph.Graph, hub string, edges []graph.Edge, fanOut bool) ([]domain.DetectionSignal, bool) {
	legs := make([]graph.Edge, 0, len(edges))
	for _, edge := range edges {
		if edge.Source == edge.Target {
			continue // degenerate
		}
		if edge.Amount.LessThan(d.cfg.AmountCeiling) {
			legs = append(legs, edge)
		}
	}
	if len(legs) <= d.cfg.FanThreshold {
		return nil, false
	}

	counterparty := func(e graph.Edge) string {
		if fanOut {
			return e.Target
		}
		return e.Source
	}

	// Two-pointer sweep for the window with the most distinct counterparties.
	var (
		counts         = make(map[string]int)
		distinct       int
		bestDistinct   int
		bestLo, bestHi int
		lo             int
	)
	for hi := range legs {
		cp := counterparty(legs[hi])
		if counts[cp] == 0 {
			distinct++
		}
		counts[cp]++

		for legs[hi].Timestamp.Sub(legs[lo].Timestamp) > d.cfg.Window {
			out := counterparty(legs[lo])
			counts[out]--
			if counts[out] == 0 {
				distinct--
			}
			lo++
		}
		if distinct > bestDistinct {
			bestDistinct = distinct
			bestLo, bestHi = lo, hi
		}
	}

	if bestDistinct <= d.cfg.FanThreshold {
		return nil, false
	}

	window := legs[bestLo : bestHi+1]
	strength := d.strength(bestDistinct, window)

	memberSet := map[string]struct{}{hub: {}}
	for _, edge := range window {
		memberSet[counterparty(edge)] = struct{}{}
	}
	members := make([]string, 0, len(memberSet))
	for id := range memberSet {
		members = append(members, id)
	}
	sort.Strings(members)

	signals := make([]domain.DetectionSignal, 0, len(members))
	for _, id := range members {
		s := strength
		if id != hub {
			// Counterparties are implicated, the hub is the structure.
			s = strength * spokeFactor
		}
		signals = append(signals, domain.DetectionSignal{
			AccountID: id,
			Pattern:   domain.PatternSmurfing,
			Strength:  s,
			RingHint:  members,
		})
	}
	return signals, true
}

// spokeFactor discounts the non-hub participants of a smurfing structure.
const spokeFactor = 0.6

// strength grows with fan count and shrinks as the leg amounts spread out:
// uniform small amounts are the structuring signature.
func (d *SmurfingDetector) strength(fan int, window []graph.Edge) float64 {
	fanFactor := float64(fan) / float64(fan+d.cfg.FanThreshold/2)

	var sum, sumSq float64
	for _, edge := range window {
		v, _ := edge.Amount.Float64()
		sum += v
		sumSq += v * v
	}
	n := float64(len(window))
	mean := sum / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}
	return fanFactor / (1 + cv)
}
