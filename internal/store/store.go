// Package store persists the reconciled ledger in SQLite. Natural-key
// uniqueness is enforced by the schema rather than by application checks:
// accounts are unique per (owner, kind, bank_id, acct_id) and transactions
// per (account_id, fitid), so concurrent and repeated imports converge on
// the same rows.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/finwise/ofxledger/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	owner      TEXT NOT NULL,
	kind       TEXT NOT NULL,
	bank_id    TEXT NOT NULL DEFAULT '',
	acct_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	currency   TEXT NOT NULL DEFAULT 'USD',
	created_at TEXT NOT NULL,
	UNIQUE (owner, kind, bank_id, acct_id)
);

CREATE TABLE IF NOT EXISTS transactions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id     INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	fitid          TEXT NOT NULL,
	posted_at      TEXT NOT NULL,
	amount         REAL NOT NULL,
	txn_type       TEXT NOT NULL DEFAULT '',
	payee          TEXT NOT NULL DEFAULT '',
	memo           TEXT NOT NULL DEFAULT '',
	checknum       TEXT NOT NULL DEFAULT '',
	currency       TEXT NOT NULL DEFAULT 'USD',
	category       TEXT NOT NULL DEFAULT '',
	is_categorized INTEGER NOT NULL DEFAULT 0,
	categorized_at TEXT,
	created_at     TEXT NOT NULL,
	UNIQUE (account_id, fitid)
);

CREATE INDEX IF NOT EXISTS idx_transactions_posted_at
	ON transactions (account_id, posted_at);
`

// Store wraps a SQLite database holding accounts and transactions.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a transaction. Imports run entirely inside one so a failure
// partway through leaves no partial state behind.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// FindOrCreateAccount resolves an account by its natural key, inserting it
// when absent. Returns the account and whether this call created it. When
// the account already exists its stored name and currency are kept; the
// first import wins.
func (s *Store) FindOrCreateAccount(ctx context.Context, tx *sql.Tx, owner string, desc domain.AccountDescriptor) (*domain.Account, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (owner, kind, bank_id, acct_id, name, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		owner, string(desc.Kind), desc.BankID, desc.AcctID, desc.Name, desc.Currency, now)
	if err != nil {
		return nil, false, fmt.Errorf("inserting account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking account insert: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, owner, kind, bank_id, acct_id, name, currency, created_at
		 FROM accounts WHERE owner = ? AND kind = ? AND bank_id = ? AND acct_id = ?`,
		owner, string(desc.Kind), desc.BankID, desc.AcctID)

	acct, err := scanAccount(row)
	if err != nil {
		return nil, false, fmt.Errorf("reading account back: %w", err)
	}
	return acct, affected > 0, nil
}

// FindOrCreateTransaction inserts a statement transaction under an account,
// keyed by (account, FITID). Returns the stored row and whether this call
// created it. A re-imported transaction never overwrites the stored row,
// including its categorization.
func (s *Store) FindOrCreateTransaction(ctx context.Context, tx *sql.Tx, accountID int64, st domain.StatementTransaction) (*domain.Transaction, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO transactions
		 (account_id, fitid, posted_at, amount, txn_type, payee, memo, checknum, currency, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, st.FitID, st.PostedAt.UTC().Format(time.RFC3339), st.Amount,
		st.TxnType, st.Payee, st.Memo, st.CheckNum, st.Currency, now)
	if err != nil {
		return nil, false, fmt.Errorf("inserting transaction %s: %w", st.FitID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("checking transaction insert: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, account_id, fitid, posted_at, amount, txn_type, payee, memo,
		        checknum, currency, category, is_categorized, categorized_at, created_at
		 FROM transactions WHERE account_id = ? AND fitid = ?`,
		accountID, st.FitID)

	txn, err := scanTransaction(row)
	if err != nil {
		return nil, false, fmt.Errorf("reading transaction %s back: %w", st.FitID, err)
	}
	return txn, affected > 0, nil
}

// ListAccounts returns all accounts for an owner, oldest first
func (s *Store) ListAccounts(ctx context.Context, owner string) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, kind, bank_id, acct_id, name, currency, created_at
		 FROM accounts WHERE owner = ? ORDER BY id`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// ListTransactions returns an account's transactions, most recent first.
// A limit of 0 means no limit.
func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*domain.Transaction, error) {
	query := `SELECT id, account_id, fitid, posted_at, amount, txn_type, payee, memo,
	                 checknum, currency, category, is_categorized, categorized_at, created_at
	          FROM transactions WHERE account_id = ?
	          ORDER BY posted_at DESC, id DESC`
	args := []any{accountID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// ListUncategorized returns an owner's uncategorized transactions across
// all accounts, oldest first.
func (s *Store) ListUncategorized(ctx context.Context, owner string) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.account_id, t.fitid, t.posted_at, t.amount, t.txn_type, t.payee, t.memo,
		        t.checknum, t.currency, t.category, t.is_categorized, t.categorized_at, t.created_at
		 FROM transactions t
		 JOIN accounts a ON a.id = t.account_id
		 WHERE a.owner = ? AND t.is_categorized = 0
		 ORDER BY t.id`, owner)
	if err != nil {
		return nil, fmt.Errorf("listing uncategorized transactions: %w", err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// BulkUpdateCategories applies categorization results in one transaction.
// Keys are transaction IDs.
func (s *Store) BulkUpdateCategories(ctx context.Context, categories map[int64]domain.Category) error {
	if len(categories) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting category update: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	stmt, err := tx.PrepareContext(ctx,
		`UPDATE transactions SET category = ?, is_categorized = 1, categorized_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing category update: %w", err)
	}
	defer stmt.Close()

	for id, category := range categories {
		if _, err := stmt.ExecContext(ctx, string(category), now, id); err != nil {
			return fmt.Errorf("updating category for transaction %d: %w", id, err)
		}
	}

	return tx.Commit()
}

// DeleteAccount removes an account and, via cascade, its transactions.
// Scoped to the owner so one owner cannot delete another's account.
func (s *Store) DeleteAccount(ctx context.Context, owner string, accountID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND owner = ?`, accountID, owner)
	if err != nil {
		return fmt.Errorf("deleting account %d: %w", accountID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking account delete: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("account %d not found for owner %s", accountID, owner)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		acct      domain.Account
		kind      string
		createdAt string
	)
	if err := row.Scan(&acct.ID, &acct.Owner, &kind, &acct.BankID, &acct.AcctID,
		&acct.Name, &acct.Currency, &createdAt); err != nil {
		return nil, err
	}
	acct.Kind = domain.StatementKind(kind)
	acct.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &acct, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		txn           domain.Transaction
		category      string
		postedAt      string
		categorizedAt sql.NullString
		createdAt     string
	)
	if err := row.Scan(&txn.ID, &txn.AccountID, &txn.FitID, &postedAt, &txn.Amount,
		&txn.TxnType, &txn.Payee, &txn.Memo, &txn.CheckNum, &txn.Currency,
		&category, &txn.IsCategorized, &categorizedAt, &createdAt); err != nil {
		return nil, err
	}
	txn.Category = domain.Category(category)
	txn.PostedAt, _ = time.Parse(time.RFC3339, postedAt)
	txn.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if categorizedAt.Valid {
		t, err := time.Parse(time.RFC3339, categorizedAt.String)
		if err == nil {
			txn.CategorizedAt = &t
		}
	}
	return &txn, nil
}
