package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/mulerift/internal/domain"
)

func TestLoadBasicLedger(t *testing.T) {
	csv := `transaction_id,source_account,target_account,amount,timestamp
T1,A,B,100.50,2024-01-15T10:00:00Z
T2,B,C,200,2024-01-15 11:30:00
T3,C,A,75.25,2024-01-16
`
	loader := NewLoader(false)
	txs, stats, err := loader.Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	if stats.RowsAccepted != 3 || stats.RowsRejected != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if txs[0].ID != "T1" || txs[0].Source != "A" || txs[0].Target != "B" {
		t.Errorf("unexpected first transaction: %+v", txs[0])
	}
	if txs[0].Amount.String() != "100.5" {
		t.Errorf("expected amount 100.5, got %s", txs[0].Amount)
	}

	want := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if !txs[0].Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, txs[0].Timestamp)
	}
}

func TestLoadColumnAliases(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"canonical", "transaction_id,source_account,target_account,amount,timestamp"},
		{"short ids", "tx_id,sender_id,receiver_id,value,date"},
		{"from to", "id,from_account,to_account,amount,time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := tt.header + "\nT1,A,B,50,2024-03-01T00:00:00Z\n"
			txs, _, err := NewLoader(false).Load(strings.NewReader(csv))
			if err != nil {
				t.Fatalf("load failed: %v", err)
			}
			if len(txs) != 1 {
				t.Fatalf("expected 1 transaction, got %d", len(txs))
			}
			if txs[0].Source != "A" || txs[0].Target != "B" {
				t.Errorf("unexpected transaction: %+v", txs[0])
			}
		})
	}
}

func TestLoadHeaderCaseInsensitive(t *testing.T) {
	csv := "Transaction_ID,Source_Account,Target_Account,AMOUNT,Timestamp\nT1,A,B,10,2024-01-01\n"
	txs, _, err := NewLoader(false).Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
}

func TestLoadMissingColumn(t *testing.T) {
	csv := "transaction_id,source_account,amount,timestamp\nT1,A,10,2024-01-01\n"
	_, _, err := NewLoader(false).Load(strings.NewReader(csv))
	if err == nil {
		t.Fatal("expected error for missing target column")
	}
	if !errors.Is(err, domain.ErrInput) {
		t.Errorf("expected ErrInput, got %v", err)
	}
}

func TestLoadLenientSkipsMalformedRows(t *testing.T) {
	csv := `transaction_id,source_account,target_account,amount,timestamp
T1,A,B,100,2024-01-15T10:00:00Z
T2,B,,50,2024-01-15T11:00:00Z
T3,C,D,not-a-number,2024-01-15T12:00:00Z
T4,D,E,-20,2024-01-15T13:00:00Z
T5,E,F,30,yesterday
T6,F,G,60,2024-01-15T14:00:00Z
`
	txs, stats, err := NewLoader(false).Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if len(txs) != 2 {
		t.Fatalf("expected 2 accepted transactions, got %d", len(txs))
	}
	if stats.RowsRejected != 4 {
		t.Errorf("expected 4 rejected rows, got %d", stats.RowsRejected)
	}
	if txs[0].ID != "T1" || txs[1].ID != "T6" {
		t.Errorf("unexpected surviving rows: %s, %s", txs[0].ID, txs[1].ID)
	}
}

func TestLoadStrictFailsOnMalformedRow(t *testing.T) {
	csv := `transaction_id,source_account,target_account,amount,timestamp
T1,A,B,100,2024-01-15T10:00:00Z
T2,B,C,bogus,2024-01-15T11:00:00Z
`
	_, _, err := NewLoader(true).Load(strings.NewReader(csv))
	if err == nil {
		t.Fatal("expected strict mode to fail")
	}

	var rowErr *domain.MalformedRowError
	if !errors.As(err, &rowErr) {
		t.Fatalf("expected MalformedRowError, got %T", err)
	}
	if rowErr.Row != 3 || rowErr.Field != "amount" {
		t.Errorf("unexpected row error: %+v", rowErr)
	}
}

func TestLoadEmptyInput(t *testing.T) {
	txs, stats, err := NewLoader(false).Load(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input should not error: %v", err)
	}
	if txs == nil {
		t.Fatal("expected non-nil slice")
	}
	if len(txs) != 0 || stats.RowsRead != 0 {
		t.Errorf("expected no rows, got %d (%+v)", len(txs), stats)
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	csv := "transaction_id,source_account,target_account,amount,timestamp\n"
	txs, _, err := NewLoader(false).Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("header-only input should not error: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func TestLoadTimestampsNormalizedToUTC(t *testing.T) {
	csv := "transaction_id,source_account,target_account,amount,timestamp\nT1,A,B,10,2024-06-01T12:00:00+02:00\n"
	txs, _, err := NewLoader(false).Load(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !txs[0].Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, txs[0].Timestamp)
	}
	if txs[0].Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not normalized to UTC: %v", txs[0].Timestamp.Location())
	}
}
