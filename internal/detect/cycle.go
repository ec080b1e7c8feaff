package detect

import (
	"context"
	"sort"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// CycleDetector finds closed money-routing loops of bounded length.
type CycleDetector struct {
	cfg domain.CycleConfig
}

// NewCycleDetector creates a cycle detector with the given bounds.
func NewCycleDetector(cfg domain.CycleConfig) *CycleDetector {
	return &CycleDetector{cfg: cfg}
}

// Name implements Detector.
func (d *CycleDetector) Name() string { return domain.PatternCycle }

// Detect runs a depth-first search from every node. Each cycle is found
// exactly once in canonical rotation: the search only descends into nodes
// lexicographically greater than the start, so the start is always the
// smallest member.
func (d *CycleDetector) Detect(ctx context.Context, g *graph.Graph) []domain.DetectionSignal {
	var cycles [][]string

	state := &cycleSearch{
		graph:  g,
		onPath: make(map[string]bool),
	}

	for _, start := range g.NodeIDs() {
		if ctx.Err() != nil {
			return nil
		}
		state.start = start
		state.path = state.path[:0]
		d.dfs(state, start, &cycles)
	}

	var signals []domain.DetectionSignal
	for _, cycle := range cycles {
		strength := d.strength(g, cycle)
		members := append([]string(nil), cycle...)
		sort.Strings(members)

		for _, member := range cycle {
			signals = append(signals, domain.DetectionSignal{
				AccountID: member,
				Pattern:   domain.PatternCycle,
				Strength:  strength,
				RingHint:  members,
			})
		}
	}
	return signals
}

type cycleSearch struct {
	graph  *graph.Graph
	start  string
	path   []string
	onPath map[string]bool
}

func (d *CycleDetector) dfs(s *cycleSearch, node string, cycles *[][]string) {
	s.path = append(s.path, node)
	s.onPath[node] = true

	for _, next := range successors(s.graph, node) {
		if next == s.start {
			if len(s.path) >= d.cfg.MinLength {
				*cycles = append(*cycles, append([]string(nil), s.path...))
			}
			continue
		}
		// Canonical rotation: never descend below the start id.
		if next <= s.start || s.onPath[next] {
			continue
		}
		if len(s.path) >= d.cfg.MaxLength {
			continue
		}
		d.dfs(s, next, cycles)
	}

	s.onPath[node] = false
	s.path = s.path[:len(s.path)-1]
}

// strength scales with 1/length and with temporal tightness: cycles whose
// hops span more than the window are down-weighted, not discarded.
func (d *CycleDetector) strength(g *graph.Graph, cycle []string) float64 {
	base := float64(d.cfg.MinLength) / float64(len(cycle))

	span, ok := cycleSpan(g, cycle)
	if !ok {
		return base
	}
	tightness := 1.0
	if d.cfg.Window > 0 && span > d.cfg.Window {
		tightness = float64(d.cfg.Window) / float64(span)
	}
	return base * tightness
}

// cycleSpan measures the time between the earliest and latest hop of the
// loop, taking the earliest transaction on each hop.
func cycleSpan(g *graph.Graph, cycle []string) (time.Duration, bool) {
	var earliest, latest time.Time
	for i := range cycle {
		src := cycle[i]
		dst := cycle[(i+1)%len(cycle)]

		edge, ok := firstEdge(g, src, dst)
		if !ok {
			return 0, false
		}
		if earliest.IsZero() || edge.Timestamp.Before(earliest) {
			earliest = edge.Timestamp
		}
		if edge.Timestamp.After(latest) {
			latest = edge.Timestamp
		}
	}
	return latest.Sub(earliest), true
}

// firstEdge returns the oldest transaction from src to dst.
func firstEdge(g *graph.Graph, src, dst string) (graph.Edge, bool) {
	for _, edge := range g.OutEdges(src) {
		if edge.Target == dst {
			return edge, true
		}
	}
	return graph.Edge{}, false
}

// successors returns the distinct forward neighbors of a node in sorted
// order, excluding self-loops.
func successors(g *graph.Graph, node string) []string {
	seen := make(map[string]struct{})
	var next []string
	for _, edge := range g.OutEdges(node) {
		if edge.Target == node {
			continue
		}
		if _, ok := seen[edge.Target]; ok {
			continue
		}
		seen[edge.Target] = struct{}{}
		next = append(next, edge.Target)
	}
	sort.Strings(next)
	return next
}
