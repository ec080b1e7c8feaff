package detect

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

func tx(id, source, target string, amount float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Source:    source,
		Target:    target,
		Amount:    decimal.NewFromFloat(amount),
		Timestamp: at,
	}
}

func cycleConfig() domain.CycleConfig {
	return domain.CycleConfig{
		MinLength: 3,
		MaxLength: 8,
		Window:    30 * 24 * time.Hour,
	}
}

func TestCycleDetectsTriangle(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 1000, base),
		tx("T2", "B", "C", 990, base.Add(time.Hour)),
		tx("T3", "C", "A", 980, base.Add(2*time.Hour)),
	})

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)
	if len(signals) != 3 {
		t.Fatalf("expected 3 signals, got %d", len(signals))
	}

	seen := make(map[string]bool)
	for _, s := range signals {
		seen[s.AccountID] = true
		if s.Pattern != domain.PatternCycle {
			t.Errorf("unexpected pattern %s", s.Pattern)
		}
		// A tight minimum-length cycle carries full strength.
		if s.Strength != 1.0 {
			t.Errorf("expected strength 1.0, got %v", s.Strength)
		}
		if len(s.RingHint) != 3 {
			t.Errorf("expected 3 ring members, got %v", s.RingHint)
		}
	}
	for _, id := range []string{"A", "B", "C"} {
		if !seen[id] {
			t.Errorf("missing signal for %s", id)
		}
	}
}

func TestCycleFoundOncePerRotation(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 100, base),
		tx("T2", "B", "C", 100, base),
		tx("T3", "C", "D", 100, base),
		tx("T4", "D", "A", 100, base),
	})

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)

	// One 4-cycle, one signal per member. If rotations were double
	// counted this would be a multiple of 4 greater than 4.
	if len(signals) != 4 {
		t.Fatalf("expected 4 signals, got %d", len(signals))
	}
}

func TestCycleIgnoresTwoNodeLoop(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 100, base),
		tx("T2", "B", "A", 100, base.Add(time.Hour)),
	})

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("round trip below min length flagged: %v", signals)
	}
}

func TestCycleIgnoresSelfLoop(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "A", 100, base),
	})

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("self-loop flagged as a cycle: %v", signals)
	}
}

func TestCycleRespectsMaxLength(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 9-node loop with MaxLength 8 must not be reported.
	nodes := []string{"A", "B", "C", "D", "E", "F", "G", "H", "I"}
	var txs []domain.Transaction
	for i := range nodes {
		txs = append(txs, tx(
			nodes[i]+"-out", nodes[i], nodes[(i+1)%len(nodes)], 100, base.Add(time.Duration(i)*time.Hour),
		))
	}
	g := graph.Build(txs)

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("cycle above max length flagged: %d signals", len(signals))
	}
}

func TestCycleSlowLoopDownWeighted(t *testing.T) {
	cfg := cycleConfig()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Hops spread over twice the window.
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 100, base),
		tx("T2", "B", "C", 100, base.Add(30*24*time.Hour)),
		tx("T3", "C", "A", 100, base.Add(60*24*time.Hour)),
	})

	signals := NewCycleDetector(cfg).Detect(context.Background(), g)
	if len(signals) != 3 {
		t.Fatalf("slow cycle should still signal, got %d", len(signals))
	}
	if signals[0].Strength >= 1.0 {
		t.Errorf("slow cycle not down-weighted: %v", signals[0].Strength)
	}
	if signals[0].Strength <= 0 {
		t.Errorf("strength collapsed to zero: %v", signals[0].Strength)
	}
}

func TestCycleLongerLoopWeakerThanTriangle(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 100, base),
		tx("T2", "B", "C", 100, base),
		tx("T3", "C", "D", 100, base),
		tx("T4", "D", "E", 100, base),
		tx("T5", "E", "A", 100, base),
	})

	signals := NewCycleDetector(cycleConfig()).Detect(context.Background(), g)
	if len(signals) != 5 {
		t.Fatalf("expected 5 signals, got %d", len(signals))
	}
	if signals[0].Strength >= 1.0 {
		t.Errorf("5-cycle should be weaker than a triangle, got %v", signals[0].Strength)
	}
}

func TestCycleClosingEdgeRaisesStrength(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := []domain.Transaction{
		tx("T1", "A", "B", 1000, base),
		tx("T2", "B", "C", 990, base.Add(time.Hour)),
	}

	// Open path: no account has any cycle strength.
	open := NewCycleDetector(cycleConfig()).Detect(context.Background(), graph.Build(path))
	if len(open) != 0 {
		t.Fatalf("open path produced signals: %v", open)
	}

	// The single edge closing the loop must lift every member above zero.
	closed := NewCycleDetector(cycleConfig()).Detect(context.Background(), graph.Build(append(path,
		tx("T3", "C", "A", 980, base.Add(2*time.Hour)),
	)))
	if len(closed) != 3 {
		t.Fatalf("expected 3 signals after closing the loop, got %d", len(closed))
	}

	strengths := make(map[string]float64)
	for _, s := range closed {
		strengths[s.AccountID] = s.Strength
	}
	for _, id := range []string{"A", "B", "C"} {
		if strengths[id] <= 0 {
			t.Errorf("%s strength %v did not increase from zero", id, strengths[id])
		}
	}
}

func TestCycleCancelledContext(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build([]domain.Transaction{
		tx("T1", "A", "B", 100, base),
		tx("T2", "B", "C", 100, base),
		tx("T3", "C", "A", 100, base),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	signals := NewCycleDetector(cycleConfig()).Detect(ctx, g)
	if signals != nil {
		t.Errorf("expected nil signals after cancellation, got %v", signals)
	}
}
