package output

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/ofx"
	"github.com/finwise/ofxledger/internal/reconcile"
	"github.com/finwise/ofxledger/internal/store"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	statements := []*ofx.ParsedStatement{{
		Account: domain.AccountDescriptor{
			Kind: domain.StatementKindBank, BankID: "1", AcctID: "A", Name: "Bank", Currency: "USD",
		},
		Transactions: []domain.StatementTransaction{
			{FitID: "F1", PostedAt: time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC), Amount: -10},
		},
	}}
	if _, err := reconcile.NewReconciler(s).Reconcile(context.Background(), "alice", statements); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return s
}

func TestBuildLedger(t *testing.T) {
	s := seededStore(t)

	ledger, err := BuildLedger(context.Background(), s, "alice")
	if err != nil {
		t.Fatalf("BuildLedger() error = %v", err)
	}

	if ledger.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", ledger.Owner)
	}
	if ledger.ExportedAt.IsZero() {
		t.Error("ExportedAt should be set")
	}
	if len(ledger.Accounts) != 1 {
		t.Fatalf("Accounts = %d, want 1", len(ledger.Accounts))
	}
	if len(ledger.Accounts[0].Transactions) != 1 {
		t.Errorf("Transactions = %d, want 1", len(ledger.Accounts[0].Transactions))
	}
}

func TestBuildLedger_UnknownOwner(t *testing.T) {
	s := seededStore(t)

	ledger, err := BuildLedger(context.Background(), s, "nobody")
	if err != nil {
		t.Fatalf("BuildLedger() error = %v", err)
	}
	if len(ledger.Accounts) != 0 {
		t.Errorf("Accounts = %d, want 0 for unknown owner", len(ledger.Accounts))
	}
}

func TestWriteLedger(t *testing.T) {
	ledger := &Ledger{Owner: "alice", ExportedAt: time.Now().UTC()}

	var buf bytes.Buffer
	if err := WriteLedger(ledger, &buf); err != nil {
		t.Fatalf("WriteLedger() error = %v", err)
	}

	var decoded Ledger
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", decoded.Owner)
	}
}

func TestWriteLedger_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteLedger(nil, &buf); err == nil {
		t.Error("WriteLedger(nil) expected error")
	}
}

func TestWriteLedgerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	ledger := &Ledger{Owner: "alice", ExportedAt: time.Now().UTC()}

	if err := WriteLedgerToFile(ledger, WriteOptions{FilePath: path}); err != nil {
		t.Fatalf("WriteLedgerToFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded Ledger
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("file is not valid JSON: %v", err)
	}
	if decoded.Owner != "alice" {
		t.Errorf("Owner = %q, want alice", decoded.Owner)
	}
}
