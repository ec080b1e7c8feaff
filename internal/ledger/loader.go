// Package ledger parses tabular transaction files into validated records.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/mulerift/internal/domain"
)

// Column aliases seen across deployments. Matching is case-insensitive.
var columnAliases = map[string][]string{
	"id":        {"transaction_id", "tx_id", "id", "trx_id"},
	"source":    {"source_account", "sender_id", "from_account", "sender", "source"},
	"target":    {"target_account", "receiver_id", "to_account", "receiver", "target", "destination_account"},
	"amount":    {"amount", "value"},
	"timestamp": {"timestamp", "date", "time", "transaction_time"},
}

// Timestamp layouts accepted, tried in order. time.Parse tolerates a
// fractional second after the seconds field in all of them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Loader reads a transaction ledger. In strict mode the first malformed row
// fails the whole run; in lenient mode (the default) malformed rows are
// skipped and counted.
type Loader struct {
	strict bool
}

// NewLoader creates a loader with the given row policy.
func NewLoader(strict bool) *Loader {
	return &Loader{strict: strict}
}

// LoadFile opens and parses a ledger file.
func (l *Loader) LoadFile(path string) ([]domain.Transaction, *domain.LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot open ledger %s: %v", domain.ErrInput, path, err)
	}
	defer f.Close()
	return l.Load(f)
}

// Load parses a ledger from a reader. Zero valid rows is not an error.
func (l *Loader) Load(r io.Reader) ([]domain.Transaction, *domain.LoadStats, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []domain.Transaction{}, &domain.LoadStats{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: cannot read header: %v", domain.ErrInput, err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		txs   []domain.Transaction
		stats domain.LoadStats
	)

	for row := 2; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A structurally broken line is a malformed row, not a dead file.
			if rejErr := l.reject(&stats, &domain.MalformedRowError{Row: row, Field: "line", Reason: err.Error()}); rejErr != nil {
				return nil, nil, rejErr
			}
			continue
		}

		tx, rowErr := parseRow(record, cols, row)
		if rowErr != nil {
			if rejErr := l.reject(&stats, rowErr); rejErr != nil {
				return nil, nil, rejErr
			}
			continue
		}

		stats.RowsRead++
		stats.RowsAccepted++
		txs = append(txs, tx)
	}

	if txs == nil {
		txs = []domain.Transaction{}
	}

	slog.Info("ledger loaded",
		"accepted", stats.RowsAccepted,
		"rejected", stats.RowsRejected,
	)

	return txs, &stats, nil
}

// reject applies the row policy to a malformed row.
func (l *Loader) reject(stats *domain.LoadStats, rowErr *domain.MalformedRowError) error {
	if l.strict {
		return rowErr
	}
	stats.RowsRead++
	stats.RowsRejected++
	slog.Debug("skipping malformed row",
		"row", rowErr.Row,
		"field", rowErr.Field,
		"reason", rowErr.Reason,
	)
	return nil
}

// mapColumns resolves header names to field indexes via the alias table.
func mapColumns(header []string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[strings.ToLower(strings.TrimSpace(name))] = i
	}

	cols := make(map[string]int, len(columnAliases))
	for field, aliases := range columnAliases {
		idx := -1
		for _, alias := range aliases {
			if i, ok := byName[alias]; ok {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: no column found for %s (accepted: %s)",
				domain.ErrInput, field, strings.Join(columnAliases[field], ", "))
		}
		cols[field] = idx
	}
	return cols, nil
}

func parseRow(record []string, cols map[string]int, row int) (domain.Transaction, *domain.MalformedRowError) {
	get := func(field string) (string, *domain.MalformedRowError) {
		idx := cols[field]
		if idx >= len(record) {
			return "", &domain.MalformedRowError{Row: row, Field: field, Reason: "missing value"}
		}
		v := strings.TrimSpace(record[idx])
		if v == "" {
			return "", &domain.MalformedRowError{Row: row, Field: field, Reason: "empty value"}
		}
		return v, nil
	}

	var tx domain.Transaction
	var err *domain.MalformedRowError

	if tx.ID, err = get("id"); err != nil {
		return tx, err
	}
	if tx.Source, err = get("source"); err != nil {
		return tx, err
	}
	if tx.Target, err = get("target"); err != nil {
		return tx, err
	}

	amountStr, err := get("amount")
	if err != nil {
		return tx, err
	}
	amount, decErr := decimal.NewFromString(amountStr)
	if decErr != nil {
		return tx, &domain.MalformedRowError{Row: row, Field: "amount", Reason: "not a decimal"}
	}
	if !amount.IsPositive() {
		return tx, &domain.MalformedRowError{Row: row, Field: "amount", Reason: "must be positive"}
	}
	tx.Amount = amount

	tsStr, err := get("timestamp")
	if err != nil {
		return tx, err
	}
	ts, tsErr := parseTimestamp(tsStr)
	if tsErr != nil {
		return tx, &domain.MalformedRowError{Row: row, Field: "timestamp", Reason: "unparsable timestamp"}
	}
	tx.Timestamp = ts

	return tx, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("no layout matched")
}
