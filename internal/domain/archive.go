package domain

import (
	"context"
	"time"
)

// RunRecord is one archived analysis run.
type RunRecord struct {
	RunID           string          `json:"runId"`
	Source          string          `json:"source"` // e.g. file name or "upload"
	StartedAt       time.Time       `json:"startedAt"`
	DurationSeconds float64         `json:"durationSeconds"`
	Report          *AnalysisResult `json:"report"`
}

// Archive persists finished runs for later querying. It is optional: batch
// mode runs without one unless a driver is configured.
type Archive interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ArchiveConfig holds configuration for archive initialization.
type ArchiveConfig struct {
	// Driver is the database driver: "" (disabled), "sqlite" or "postgres".
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
