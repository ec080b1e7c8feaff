package archive

// Schema definitions for the findings archive.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    duration_seconds REAL NOT NULL,
    total_accounts INTEGER NOT NULL,
    flagged_accounts INTEGER NOT NULL,
    rings_detected INTEGER NOT NULL,
    report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
`

const schemaSuspiciousAccounts = `
CREATE TABLE IF NOT EXISTS suspicious_accounts (
    run_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    suspicion_score REAL NOT NULL,
    detected_patterns TEXT NOT NULL,
    ring_id TEXT,
    PRIMARY KEY (run_id, account_id)
);

CREATE INDEX IF NOT EXISTS idx_suspicious_accounts_account ON suspicious_accounts(account_id);
`

const schemaFraudRings = `
CREATE TABLE IF NOT EXISTS fraud_rings (
    run_id TEXT NOT NULL,
    ring_id TEXT NOT NULL,
    pattern_type TEXT NOT NULL,
    risk_score REAL NOT NULL,
    member_accounts TEXT NOT NULL,
    PRIMARY KEY (run_id, ring_id)
);

CREATE INDEX IF NOT EXISTS idx_fraud_rings_pattern ON fraud_rings(pattern_type);
`

// AllSchemas returns all schema definitions in creation order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaSuspiciousAccounts,
		schemaFraudRings,
	}
}
