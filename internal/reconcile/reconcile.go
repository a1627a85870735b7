// Package reconcile merges parsed statements into the ledger. Reconciliation
// is idempotent: accounts are matched by natural key and transactions by
// FITID, so importing the same file any number of times yields the same
// ledger state, with every re-import after the first creating nothing.
package reconcile

import (
	"context"
	"fmt"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/ofx"
	"github.com/finwise/ofxledger/internal/store"
)

// AccountResult reports reconciliation of one statement's account. NewRows
// holds the transactions this pass created, in statement order; duplicates
// of already-stored rows are counted in Seen but not listed.
type AccountResult struct {
	Account        *domain.Account
	AccountCreated bool
	Seen           int
	Created        int
	NewRows        []*domain.Transaction
}

// Result reports a full reconciliation pass.
type Result struct {
	Accounts []AccountResult
}

// NewTransactions returns the total number of transactions created across
// all accounts.
func (r *Result) NewTransactions() int {
	total := 0
	for _, a := range r.Accounts {
		total += a.Created
	}
	return total
}

// CreatedTransactions returns the rows created by this pass across all
// accounts, so callers can post-process exactly what the import added.
func (r *Result) CreatedTransactions() []*domain.Transaction {
	var txns []*domain.Transaction
	for _, a := range r.Accounts {
		txns = append(txns, a.NewRows...)
	}
	return txns
}

// Reconciler writes parsed statements into the store.
type Reconciler struct {
	store *store.Store
}

// NewReconciler creates a reconciler backed by the given store
func NewReconciler(s *store.Store) *Reconciler {
	return &Reconciler{store: s}
}

// Reconcile merges statements into the owner's ledger inside a single
// database transaction. Either every statement lands or none does; a
// failure partway through rolls everything back.
func (r *Reconciler) Reconcile(ctx context.Context, owner string, statements []*ofx.ParsedStatement) (*Result, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner cannot be empty")
	}

	tx, err := r.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting reconciliation: %w", err)
	}
	defer tx.Rollback()

	result := &Result{}
	for _, stmt := range statements {
		acct, acctCreated, err := r.store.FindOrCreateAccount(ctx, tx, owner, stmt.Account)
		if err != nil {
			return nil, fmt.Errorf("reconciling account %s: %w", stmt.Account.AcctID, err)
		}

		ar := AccountResult{
			Account:        acct,
			AccountCreated: acctCreated,
			Seen:           len(stmt.Transactions),
		}
		for _, st := range stmt.Transactions {
			txn, created, err := r.store.FindOrCreateTransaction(ctx, tx, acct.ID, st)
			if err != nil {
				return nil, fmt.Errorf("reconciling transaction %s: %w", st.FitID, err)
			}
			if created {
				ar.Created++
				ar.NewRows = append(ar.NewRows, txn)
			}
		}

		result.Accounts = append(result.Accounts, ar)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing reconciliation: %w", err)
	}
	return result, nil
}
