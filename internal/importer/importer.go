// Package importer orchestrates a statement import: classify the document,
// parse it with the structural strategy, fall back to tag-soup when that
// fails, reconcile the result into the ledger, then categorize the new
// transactions.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/finwise/ofxledger/internal/categorize"
	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/ofx"
	"github.com/finwise/ofxledger/internal/reconcile"
)

// Reconciler merges parsed statements into an owner's ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, owner string, statements []*ofx.ParsedStatement) (*reconcile.Result, error)
}

// Categorizer assigns categories to freshly reconciled transactions.
type Categorizer interface {
	CategorizeTransactions(ctx context.Context, txns []*domain.Transaction) (*categorize.Stats, error)
}

// FallbackError reports that both parse strategies failed. Unwrap exposes
// both underlying errors, so errors.Is sees through to sentinel errors from
// either strategy.
type FallbackError struct {
	Primary  error
	Fallback error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("all parse strategies failed: structural: %v; tag-soup: %v", e.Primary, e.Fallback)
}

func (e *FallbackError) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

// Result reports one completed import.
type Result struct {
	SessionID   string
	Strategy    string
	Statements  []*ofx.ParsedStatement
	Reconciled  *reconcile.Result
	Categorized *categorize.Stats
	DryRun      bool
}

// Importer runs statement imports end to end.
type Importer struct {
	primary     ofx.VariantParser
	fallback    ofx.VariantParser
	reconciler  Reconciler
	categorizer Categorizer
	dryRun      bool
}

// Option configures an Importer.
type Option func(*Importer)

// WithDryRun makes imports parse and classify without touching the ledger
func WithDryRun(dry bool) Option {
	return func(i *Importer) { i.dryRun = dry }
}

// WithCategorizer enables post-import categorization
func WithCategorizer(c Categorizer) Option {
	return func(i *Importer) { i.categorizer = c }
}

// WithParsers overrides the default strategy pair
func WithParsers(primary, fallback ofx.VariantParser) Option {
	return func(i *Importer) { i.primary, i.fallback = primary, fallback }
}

// NewImporter creates an importer with the structural strategy primary and
// tag-soup as fallback.
func NewImporter(r Reconciler, opts ...Option) *Importer {
	i := &Importer{
		primary:    ofx.NewTreeParser(),
		fallback:   ofx.NewSoupParser(),
		reconciler: r,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import ingests one statement file for an owner.
//
// Classification runs before any parse attempt: a request-only or
// unsupported document is rejected with its sentinel error and no ledger
// rows are touched. Categorization failures after a committed
// reconciliation are logged, not escalated; the import itself already
// succeeded.
func (i *Importer) Import(ctx context.Context, owner string, data []byte) (*Result, error) {
	sessionID := uuid.New().String()
	doc := ofx.DecodeDocument(data)

	if _, err := ofx.Classify(doc); err != nil {
		return nil, err
	}

	statements, strategy, err := i.parse(doc)
	if err != nil {
		return nil, err
	}
	log.Printf("INFO: import %s: %s strategy parsed %d statement(s)", sessionID, strategy, len(statements))

	result := &Result{
		SessionID:  sessionID,
		Strategy:   strategy,
		Statements: statements,
		DryRun:     i.dryRun,
	}
	if i.dryRun {
		return result, nil
	}

	reconciled, err := i.reconciler.Reconcile(ctx, owner, statements)
	if err != nil {
		return nil, fmt.Errorf("reconciling import %s: %w", sessionID, err)
	}
	result.Reconciled = reconciled
	log.Printf("INFO: import %s: %d new transaction(s) across %d account(s)",
		sessionID, reconciled.NewTransactions(), len(reconciled.Accounts))

	if i.categorizer != nil && reconciled.NewTransactions() > 0 {
		stats, err := i.categorizer.CategorizeTransactions(ctx, reconciled.CreatedTransactions())
		if err != nil {
			log.Printf("WARN: import %s: categorization failed: %v", sessionID, err)
		} else {
			result.Categorized = stats
		}
	}

	return result, nil
}

// parse tries the primary strategy, then the fallback. A sentinel
// rejection from the primary (request-only, unsupported) is final; the
// fallback would reject it identically.
func (i *Importer) parse(doc *ofx.RawDocument) ([]*ofx.ParsedStatement, string, error) {
	statements, primaryErr := i.primary.TryParse(doc)
	if primaryErr == nil {
		return statements, i.primary.Name(), nil
	}
	if errors.Is(primaryErr, ofx.ErrRequestOnly) || errors.Is(primaryErr, ofx.ErrUnsupportedDocument) {
		return nil, "", primaryErr
	}
	log.Printf("WARN: %s strategy failed (%v), trying %s", i.primary.Name(), primaryErr, i.fallback.Name())

	statements, fallbackErr := i.fallback.TryParse(doc)
	if fallbackErr == nil {
		return statements, i.fallback.Name(), nil
	}
	return nil, "", &FallbackError{Primary: primaryErr, Fallback: fallbackErr}
}
