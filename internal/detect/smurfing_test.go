package detect

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

func smurfingConfig() domain.SmurfingConfig {
	cfg := domain.DefaultConfig()
	return cfg.Smurfing
}

// fanIn builds n senders paying the hub the same amount, minutes apart.
func fanIn(hub string, n int, amount float64, base time.Time) []domain.Transaction {
	var txs []domain.Transaction
	for i := 0; i < n; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i+1),
			fmt.Sprintf("S%02d", i+1),
			hub,
			amount,
			base.Add(time.Duration(i)*10*time.Minute),
		))
	}
	return txs
}

func TestSmurfingDetectsFanIn(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	g := graph.Build(fanIn("HUB", 10, 500, base))

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)

	// Hub plus 10 senders.
	if len(signals) != 11 {
		t.Fatalf("expected 11 signals, got %d", len(signals))
	}

	var hubStrength, spokeStrength float64
	for _, s := range signals {
		if s.Pattern != domain.PatternSmurfing {
			t.Errorf("unexpected pattern %s", s.Pattern)
		}
		if s.AccountID == "HUB" {
			hubStrength = s.Strength
		} else {
			spokeStrength = s.Strength
		}
		if len(s.RingHint) != 11 {
			t.Errorf("expected 11 ring members, got %d", len(s.RingHint))
		}
	}

	// Uniform amounts: cv = 0, strength = 10/(10+4).
	want := 10.0 / 14.0
	if math.Abs(hubStrength-want) > 1e-9 {
		t.Errorf("hub strength = %v, want %v", hubStrength, want)
	}
	if math.Abs(spokeStrength-want*0.6) > 1e-9 {
		t.Errorf("spoke strength = %v, want %v", spokeStrength, want*0.6)
	}
}

func TestSmurfingDetectsFanOut(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i+1),
			"HUB",
			fmt.Sprintf("R%02d", i+1),
			450,
			base.Add(time.Duration(i)*15*time.Minute),
		))
	}
	g := graph.Build(txs)

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)
	if len(signals) != 11 {
		t.Fatalf("expected 11 signals, got %d", len(signals))
	}
}

func TestSmurfingBelowThresholdIgnored(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Exactly the threshold count: must exceed, not meet.
	g := graph.Build(fanIn("HUB", 8, 500, base))

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("threshold count flagged: %d signals", len(signals))
	}
}

func TestSmurfingLargeAmountsIgnored(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Legs at the ceiling don't count as structuring.
	g := graph.Build(fanIn("HUB", 10, 10000, base))

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("ceiling-amount legs flagged: %d signals", len(signals))
	}
}

func TestSmurfingOutsideWindowIgnored(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// 10 senders spread over 10 weeks: never more than a few inside 72h.
	var txs []domain.Transaction
	for i := 0; i < 10; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i+1),
			fmt.Sprintf("S%02d", i+1),
			"HUB",
			500,
			base.Add(time.Duration(i)*7*24*time.Hour),
		))
	}
	g := graph.Build(txs)

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("spread-out deposits flagged: %d signals", len(signals))
	}
}

func TestSmurfingRepeatSenderNotDistinct(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// One sender making many deposits is a forwarder, not a smurf network.
	var txs []domain.Transaction
	for i := 0; i < 12; i++ {
		txs = append(txs, tx(
			fmt.Sprintf("T%02d", i+1),
			"ONLY_SENDER",
			"HUB",
			500,
			base.Add(time.Duration(i)*time.Hour),
		))
	}
	g := graph.Build(txs)

	signals := NewSmurfingDetector(smurfingConfig()).Detect(context.Background(), g)
	if len(signals) != 0 {
		t.Errorf("single counterparty flagged: %d signals", len(signals))
	}
}

func TestSmurfingVariedAmountsWeaker(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	uniform := graph.Build(fanIn("HUB", 10, 500, base))

	var varied []domain.Transaction
	for i := 0; i < 10; i++ {
		varied = append(varied, tx(
			fmt.Sprintf("T%02d", i+1),
			fmt.Sprintf("S%02d", i+1),
			"HUB",
			100+float64(i)*900,
			base.Add(time.Duration(i)*10*time.Minute),
		))
	}
	spread := graph.Build(varied)

	det := NewSmurfingDetector(smurfingConfig())
	uni := det.Detect(context.Background(), uniform)
	var uniHub float64
	for _, s := range uni {
		if s.AccountID == "HUB" {
			uniHub = s.Strength
		}
	}
	var spreadHub float64
	for _, s := range det.Detect(context.Background(), spread) {
		if s.AccountID == "HUB" {
			spreadHub = s.Strength
		}
	}

	if spreadHub >= uniHub {
		t.Errorf("varied amounts should weaken the signal: uniform=%v varied=%v", uniHub, spreadHub)
	}
}
