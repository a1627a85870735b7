// Package output serializes a ledger snapshot to JSON for export.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/store"
)

// WriteOptions configures how the ledger export is written
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

// AccountExport is one account with its transactions
type AccountExport struct {
	Account      *domain.Account       `json:"account"`
	Transactions []*domain.Transaction `json:"transactions"`
}

// Ledger is a full export of one owner's ledger
type Ledger struct {
	Owner      string           `json:"owner"`
	ExportedAt time.Time        `json:"exportedAt"`
	Accounts   []*AccountExport `json:"accounts"`
}

// BuildLedger reads an owner's complete ledger from the store
func BuildLedger(ctx context.Context, s *store.Store, owner string) (*Ledger, error) {
	accounts, err := s.ListAccounts(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts for export: %w", err)
	}

	ledger := &Ledger{
		Owner:      owner,
		ExportedAt: time.Now().UTC(),
	}
	for _, acct := range accounts {
		txns, err := s.ListTransactions(ctx, acct.ID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to read transactions for account %d: %w", acct.ID, err)
		}
		ledger.Accounts = append(ledger.Accounts, &AccountExport{
			Account:      acct,
			Transactions: txns,
		})
	}

	return ledger, nil
}

// WriteLedger serializes a ledger to JSON with 2-space indentation
func WriteLedger(ledger *Ledger, w io.Writer) error {
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(ledger); err != nil {
		return fmt.Errorf("failed to encode ledger as JSON: %w", err)
	}

	return nil
}

// WriteLedgerToFile writes a ledger to file or stdout based on options
func WriteLedgerToFile(ledger *Ledger, opts WriteOptions) (err error) {
	if ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}

	// Write to stdout if no file path specified
	if opts.FilePath == "" {
		return WriteLedger(ledger, os.Stdout)
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteLedger(ledger, f); err != nil {
		return fmt.Errorf("failed to write ledger to %s: %w", opts.FilePath, err)
	}

	return nil
}
