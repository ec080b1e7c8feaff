package detect

import (
	"context"
	"sort"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// ShellDetector finds pass-through accounts: in-volume tracking out-volume
// within a tolerance, funds forwarded quickly, nothing retained.
type ShellDetector struct {
	cfg domain.ShellConfig
}

// NewShellDetector creates a shell detector with the given thresholds.
func NewShellDetector(cfg domain.ShellConfig) *ShellDetector {
	return &ShellDetector{cfg: cfg}
}

// Name implements Detector.
func (d *ShellDetector) Name() string { return domain.PatternShell }

// Detect evaluates every node with both inbound and outbound activity.
// Counterparties with only one leg of a transfer never qualify.
func (d *ShellDetector) Detect(ctx context.Context, g *graph.Graph) []domain.DetectionSignal {
	var signals []domain.DetectionSignal

	for _, id := range g.NodeIDs() {
		if ctx.Err() != nil {
			return nil
		}
		node := g.Node(id)
		if node.InDegree == 0 || node.OutDegree == 0 {
			continue
		}
		if node.InVolume.IsZero() {
			continue
		}

		ratio, _ := node.OutVolume.Div(node.InVolume).Float64()
		deviation := ratio - 1
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > d.cfg.PassThroughTolerance {
			continue
		}

		dwell, ok := medianDwell(g.InEdges(id), g.OutEdges(id))
		if !ok || dwell >= d.cfg.MaxDwell {
			continue
		}

		strength := d.strength(deviation, dwell)
		signals = append(signals, domain.DetectionSignal{
			AccountID: id,
			Pattern:   domain.PatternShell,
			Strength:  strength,
			RingHint:  flowNeighborhood(g, id),
		})
	}
	return signals
}

// strength rises as the pass-through ratio approaches 1 and as funds leave
// faster.
func (d *ShellDetector) strength(deviation float64, dwell time.Duration) float64 {
	closeness := 1 - deviation/d.cfg.PassThroughTolerance
	speed := 1 - float64(dwell)/float64(d.cfg.MaxDwell)
	return closeness * speed
}

// medianDwell computes the median delay between each inbound transaction and
// the next outbound one. Inbound funds that are never forwarded contribute
// nothing; no forwarded pair at all disqualifies the account.
func medianDwell(in, out []graph.Edge) (time.Duration, bool) {
	var delays []time.Duration
	j := 0
	for _, inEdge := range in {
		for j < len(out) && out[j].Timestamp.Before(inEdge.Timestamp) {
			j++
		}
		if j == len(out) {
			break
		}
		delays = append(delays, out[j].Timestamp.Sub(inEdge.Timestamp))
	}
	if len(delays) == 0 {
		return 0, false
	}
	sort.Slice(delays, func(i, j int) bool { return delays[i] < delays[j] })
	return delays[len(delays)/2], true
}

// flowNeighborhood is the shell plus its immediate upstream and downstream
// counterparties, sorted.
func flowNeighborhood(g *graph.Graph, id string) []string {
	memberSet := map[string]struct{}{id: {}}
	for _, edge := range g.InEdges(id) {
		memberSet[edge.Source] = struct{}{}
	}
	for _, edge := range g.OutEdges(id) {
		memberSet[edge.Target] = struct{}{}
	}
	members := make([]string, 0, len(memberSet))
	for m := range memberSet {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}
