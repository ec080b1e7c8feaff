// Package detect implements the pattern detectors that mine the account
// graph for laundering structures.
package detect

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

// Detector is one pattern analyzer. Detect must treat the graph as
// read-only and should return early when ctx is cancelled.
type Detector interface {
	Name() string
	Detect(ctx context.Context, g *graph.Graph) []domain.DetectionSignal
}

// All returns the standard detector set for a configuration.
func All(cfg *domain.Config) []Detector {
	return []Detector{
		NewCycleDetector(cfg.Cycle),
		NewSmurfingDetector(cfg.Smurfing),
		NewShellDetector(cfg.Shell),
	}
}

// Run executes the detectors in parallel over the same immutable graph and
// merges their signals behind a single synchronization point. The merged
// output is sorted by (pattern, account id) for determinism.
func Run(ctx context.Context, g *graph.Graph, detectors []Detector) ([]domain.DetectionSignal, error) {
	results := make([][]domain.DetectionSignal, len(detectors))
	var wg sync.WaitGroup

	for i, det := range detectors {
		wg.Add(1)
		go func(idx int, d Detector) {
			defer wg.Done()

			start := time.Now()
			signals := d.Detect(ctx, g)
			results[idx] = signals

			slog.Debug("detector finished",
				"detector", d.Name(),
				"signals", len(signals),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}(i, det)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var merged []domain.DetectionSignal
	for _, signals := range results {
		merged = append(merged, signals...)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Pattern != merged[j].Pattern {
			return merged[i].Pattern < merged[j].Pattern
		}
		return merged[i].AccountID < merged[j].AccountID
	})

	return merged, nil
}
