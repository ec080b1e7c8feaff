// Package archive persists finished analysis runs for later querying.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opensource-finance/mulerift/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLArchive implements domain.Archive using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLArchive struct {
	db     *sql.DB
	driver string
}

// New creates an archive based on configuration.
func New(cfg domain.ArchiveConfig) (domain.Archive, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "":
		// Archiving disabled.
		return nil, nil
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	a := &SQLArchive{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return a, nil
}

func (a *SQLArchive) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := a.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun stores a run with its flagged accounts and rings.
func (a *SQLArchive) SaveRun(ctx context.Context, run *domain.RunRecord) error {
	if run == nil || run.RunID == "" {
		return fmt.Errorf("%w: run with id is required", ErrInvalidInput)
	}
	if run.Report == nil {
		return fmt.Errorf("%w: run report is required", ErrInvalidInput)
	}

	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO runs (
			run_id, source, started_at, duration_seconds,
			total_accounts, flagged_accounts, rings_detected, report
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, a.rebind(query),
		run.RunID, run.Source, run.StartedAt, run.DurationSeconds,
		run.Report.Summary.TotalAccountsAnalyzed,
		run.Report.Summary.SuspiciousAccountsFlagged,
		run.Report.Summary.FraudRingsDetected,
		string(report),
	)
	if err != nil {
		return err
	}

	accountQuery := `
		INSERT INTO suspicious_accounts (
			run_id, account_id, suspicion_score, detected_patterns, ring_id
		) VALUES (?, ?, ?, ?, ?)
	`
	for _, account := range run.Report.SuspiciousAccounts {
		patterns := strings.Join(account.DetectedPatterns, ",")
		var ringID sql.NullString
		if account.RingID != nil {
			ringID = sql.NullString{String: *account.RingID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, a.rebind(accountQuery),
			run.RunID, account.AccountID, account.SuspicionScore, patterns, ringID,
		); err != nil {
			return err
		}
	}

	ringQuery := `
		INSERT INTO fraud_rings (
			run_id, ring_id, pattern_type, risk_score, member_accounts
		) VALUES (?, ?, ?, ?, ?)
	`
	for _, ring := range run.Report.FraudRings {
		if _, err := tx.ExecContext(ctx, a.rebind(ringQuery),
			run.RunID, ring.RingID, ring.PatternType, ring.RiskScore,
			strings.Join(ring.MemberAccounts, ","),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun retrieves a run with its full report.
func (a *SQLArchive) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	if runID == "" {
		return nil, fmt.Errorf("%w: runID is required", ErrInvalidInput)
	}

	query := `
		SELECT run_id, source, started_at, duration_seconds, report
		FROM runs
		WHERE run_id = ?
	`

	var run domain.RunRecord
	var report string

	err := a.db.QueryRowContext(ctx, a.rebind(query), runID).Scan(
		&run.RunID, &run.Source, &run.StartedAt, &run.DurationSeconds, &report,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &run, nil
}

// ListRuns retrieves recent run headers, newest first. Reports are not
// loaded; fetch them per run via GetRun.
func (a *SQLArchive) ListRuns(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT run_id, source, started_at, duration_seconds
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := a.db.QueryContext(ctx, a.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunRecord
	for rows.Next() {
		var run domain.RunRecord
		if err := rows.Scan(&run.RunID, &run.Source, &run.StartedAt, &run.DurationSeconds); err != nil {
			return nil, err
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (a *SQLArchive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the database connection.
func (a *SQLArchive) Close() error {
	return a.db.Close()
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (a *SQLArchive) rebind(query string) string {
	if a.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
