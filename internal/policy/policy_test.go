package policy

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulerift/internal/domain"
	"github.com/opensource-finance/mulerift/internal/graph"
)

func testGraph() *graph.Graph {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return graph.Build([]domain.Transaction{
		{ID: "T1", Source: "SETTLE", Target: "B", Amount: decimal.NewFromInt(1000), Timestamp: base},
		{ID: "T2", Source: "A", Target: "SETTLE", Amount: decimal.NewFromInt(1000), Timestamp: base},
	})
}

func TestEngineNoPoliciesIsNoOp(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if engine.PolicyCount() != 0 {
		t.Errorf("expected 0 policies, got %d", engine.PolicyCount())
	}

	accounts := []domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 80},
	}
	out := engine.Apply(accounts, testGraph())
	if len(out) != 1 || out[0].SuspicionScore != 80 {
		t.Errorf("no-op engine changed accounts: %v", out)
	}
}

func TestLoadInvalidExpression(t *testing.T) {
	engine, _ := NewEngine()

	err := engine.Load([]Policy{{
		ID:         "broken",
		Expression: "this is not CEL !!!",
		Action:     ActionSuppress,
		Enabled:    true,
	}})
	if err == nil {
		t.Fatal("expected compile error")
	}
	if !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestLoadNonBoolExpression(t *testing.T) {
	engine, _ := NewEngine()

	err := engine.Load([]Policy{{
		ID:         "numeric",
		Expression: "score * 2.0",
		Action:     ActionBoost,
		Enabled:    true,
	}})
	if err == nil {
		t.Fatal("expected error for non-bool expression")
	}
}

func TestLoadUnknownAction(t *testing.T) {
	engine, _ := NewEngine()

	err := engine.Load([]Policy{{
		ID:         "weird",
		Expression: "true",
		Action:     "escalate",
		Enabled:    true,
	}})
	if err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestDisabledPolicySkipped(t *testing.T) {
	engine, _ := NewEngine()

	if err := engine.Load([]Policy{{
		ID:         "off",
		Expression: "true",
		Action:     ActionSuppress,
		Enabled:    false,
	}}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if engine.PolicyCount() != 0 {
		t.Errorf("disabled policy loaded, count = %d", engine.PolicyCount())
	}
}

func TestSuppressRemovesAccount(t *testing.T) {
	engine, _ := NewEngine()
	if err := engine.Load([]Policy{{
		ID:         "settlement-allowlist",
		Expression: `account_id == "SETTLE"`,
		Action:     ActionSuppress,
		Enabled:    true,
	}}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	accounts := []domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 60},
		{AccountID: "SETTLE", SuspicionScore: 95},
	}
	out := engine.Apply(accounts, testGraph())

	if len(out) != 1 || out[0].AccountID != "A" {
		t.Errorf("expected only A to survive, got %v", out)
	}
}

func TestBoostScalesAndCaps(t *testing.T) {
	engine, _ := NewEngine()
	if err := engine.Load([]Policy{{
		ID:         "high-volume-boost",
		Expression: "score >= 50.0",
		Action:     ActionBoost,
		Weight:     1.5,
		Enabled:    true,
	}}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	accounts := []domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 60},
		{AccountID: "B", SuspicionScore: 90},
		{AccountID: "C", SuspicionScore: 40},
	}
	out := engine.Apply(accounts, testGraph())

	byID := make(map[string]float64)
	for _, a := range out {
		byID[a.AccountID] = a.SuspicionScore
	}
	if byID["A"] != 90 {
		t.Errorf("A boosted to %v, want 90", byID["A"])
	}
	if byID["B"] != 100 {
		t.Errorf("B boosted to %v, want capped 100", byID["B"])
	}
	if byID["C"] != 40 {
		t.Errorf("C changed to %v, want unchanged 40", byID["C"])
	}
}

func TestGraphFieldsAvailable(t *testing.T) {
	engine, _ := NewEngine()
	if err := engine.Load([]Policy{{
		ID:         "volume-check",
		Expression: "in_volume >= 1000.0 && out_volume >= 1000.0",
		Action:     ActionSuppress,
		Enabled:    true,
	}}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	accounts := []domain.SuspiciousAccount{
		{AccountID: "SETTLE", SuspicionScore: 70},
		{AccountID: "A", SuspicionScore: 70},
	}
	out := engine.Apply(accounts, testGraph())

	// SETTLE has both legs; A only sends.
	if len(out) != 1 || out[0].AccountID != "A" {
		t.Errorf("expected SETTLE suppressed on volume, got %v", out)
	}
}

func TestPatternListAvailable(t *testing.T) {
	engine, _ := NewEngine()
	if err := engine.Load([]Policy{{
		ID:         "shell-only",
		Expression: `patterns.exists(p, p == "shell")`,
		Action:     ActionBoost,
		Weight:     1.2,
		Enabled:    true,
	}}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	accounts := []domain.SuspiciousAccount{
		{AccountID: "A", SuspicionScore: 50, DetectedPatterns: []string{"shell"}},
		{AccountID: "B", SuspicionScore: 50, DetectedPatterns: []string{"cycle"}},
	}
	out := engine.Apply(accounts, testGraph())

	byID := make(map[string]float64)
	for _, a := range out {
		byID[a.AccountID] = a.SuspicionScore
	}
	if byID["A"] != 60 {
		t.Errorf("A = %v, want 60", byID["A"])
	}
	if byID["B"] != 50 {
		t.Errorf("B = %v, want unchanged 50", byID["B"])
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	body := `[
  {"id": "p1", "expression": "score > 90.0", "action": "boost", "weight": 1.1, "enabled": true},
  {"id": "p2", "expression": "true", "action": "suppress", "enabled": false}
]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	engine, _ := NewEngine()
	if err := engine.LoadFile(path); err != nil {
		t.Fatalf("load file failed: %v", err)
	}
	if engine.PolicyCount() != 1 {
		t.Errorf("expected 1 enabled policy, got %d", engine.PolicyCount())
	}
}

func TestLoadFileMissing(t *testing.T) {
	engine, _ := NewEngine()
	err := engine.LoadFile("/nonexistent/policies.json")
	if !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}
