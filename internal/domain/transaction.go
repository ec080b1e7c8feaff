// Package domain defines the core types and interfaces for MuleRift.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single validated ledger row. Immutable once loaded.
type Transaction struct {
	ID        string          `json:"id"`
	Source    string          `json:"source_account"`
	Target    string          `json:"target_account"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// SelfLoop reports whether the transaction sends funds back to its own source.
// Self-loops stay in the graph but are excluded from cycle and smurfing analysis.
func (t *Transaction) SelfLoop() bool {
	return t.Source == t.Target
}

// LoadStats carries loader diagnostics for a run.
type LoadStats struct {
	RowsRead     int `json:"rowsRead"`
	RowsAccepted int `json:"rowsAccepted"`
	RowsRejected int `json:"rowsRejected"`
}
