package archive

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
)

func testReport() *domain.AnalysisResult {
	ringID := "cycle-abcd1234"
	return &domain.AnalysisResult{
		SuspiciousAccounts: []domain.SuspiciousAccount{
			{AccountID: "A", SuspicionScore: 100, DetectedPatterns: []string{"cycle"}, RingID: &ringID},
			{AccountID: "B", SuspicionScore: 100, DetectedPatterns: []string{"cycle"}, RingID: &ringID},
		},
		FraudRings: []domain.FraudRing{
			{RingID: ringID, MemberAccounts: []string{"A", "B", "C"}, PatternType: "cycle", RiskScore: 100},
		},
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     3,
			SuspiciousAccountsFlagged: 2,
			FraudRingsDetected:        1,
			ProcessingTimeSeconds:     0.042,
		},
	}
}

func TestSQLiteArchive(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "mulerift-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	arch, err := New(domain.ArchiveConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer arch.Close()

	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := arch.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetRun", func(t *testing.T) {
		run := &domain.RunRecord{
			RunID:           "run-001",
			Source:          "ledger.csv",
			StartedAt:       time.Now().UTC().Truncate(time.Second),
			DurationSeconds: 0.042,
			Report:          testReport(),
		}

		if err := arch.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		got, err := arch.GetRun(ctx, "run-001")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.RunID != "run-001" || got.Source != "ledger.csv" {
			t.Errorf("unexpected run: %+v", got)
		}
		if got.Report == nil {
			t.Fatal("report not restored")
		}
		if len(got.Report.SuspiciousAccounts) != 2 {
			t.Errorf("accounts = %d", len(got.Report.SuspiciousAccounts))
		}
		if got.Report.FraudRings[0].RingID != "cycle-abcd1234" {
			t.Errorf("ring = %+v", got.Report.FraudRings[0])
		}
		if got.Report.SuspiciousAccounts[0].RingID == nil {
			t.Error("ring assignment lost")
		}
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		_, err := arch.GetRun(ctx, "no-such-run")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveRunValidation", func(t *testing.T) {
		if err := arch.SaveRun(ctx, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("nil run: %v", err)
		}
		if err := arch.SaveRun(ctx, &domain.RunRecord{RunID: "r"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("missing report: %v", err)
		}
	})

	t.Run("ListRuns", func(t *testing.T) {
		older := &domain.RunRecord{
			RunID:           "run-002",
			Source:          "earlier.csv",
			StartedAt:       time.Now().UTC().Add(-time.Hour),
			DurationSeconds: 0.1,
			Report:          testReport(),
		}
		if err := arch.SaveRun(ctx, older); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}

		runs, err := arch.ListRuns(ctx, 10)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		// Newest first.
		if runs[0].RunID != "run-001" || runs[1].RunID != "run-002" {
			t.Errorf("unexpected order: %s, %s", runs[0].RunID, runs[1].RunID)
		}
		// Headers only.
		if runs[0].Report != nil {
			t.Error("list should not load reports")
		}
	})

	t.Run("ListRunsLimit", func(t *testing.T) {
		runs, err := arch.ListRuns(ctx, 1)
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(runs) != 1 {
			t.Errorf("expected 1 run, got %d", len(runs))
		}
	})
}

func TestNewDisabled(t *testing.T) {
	arch, err := New(domain.ArchiveConfig{Driver: ""})
	if err != nil {
		t.Fatalf("disabled archive should not error: %v", err)
	}
	if arch != nil {
		t.Errorf("expected nil archive when disabled, got %T", arch)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	_, err := New(domain.ArchiveConfig{Driver: "oracle"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLArchive{driver: "postgres"}
	got := pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}

	lite := &SQLArchive{driver: "sqlite"}
	passthrough := "SELECT * FROM t WHERE a = ?"
	if lite.rebind(passthrough) != passthrough {
		t.Errorf("sqlite rebind altered query: %q", lite.rebind(passthrough))
	}
}
