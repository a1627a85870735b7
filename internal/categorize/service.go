// Package categorize assigns budget categories to ledger transactions by
// matching payee and memo text against the rules engine. Categorization is
// write-once from the ledger's point of view: only uncategorized
// transactions are considered, and a stored category is never overwritten
// by a later pass.
package categorize

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/finwise/ofxledger/internal/domain"
	"github.com/finwise/ofxledger/internal/rules"
)

// snapshotTTL bounds how stale the cached rules engine may get. Rules
// change rarely; reloading on every pass would mostly re-read the same
// file.
const snapshotTTL = 5 * time.Minute

// softTimeBudget is the latency target for one categorization pass.
// Exceeding it is logged, never fatal.
const softTimeBudget = 3 * time.Second

// Source provides the rules engine, e.g. rules.LoadEmbedded or a file load.
type Source interface {
	Load() (*rules.Engine, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (*rules.Engine, error)

func (f SourceFunc) Load() (*rules.Engine, error) { return f() }

// Ledger is the store surface the categorizer needs.
type Ledger interface {
	ListUncategorized(ctx context.Context, owner string) ([]*domain.Transaction, error)
	BulkUpdateCategories(ctx context.Context, categories map[int64]domain.Category) error
}

// Stats reports one categorization pass.
type Stats struct {
	Total       int `json:"total"`
	Categorized int `json:"categorized"`
	Skipped     int `json:"skipped"`
	Errors      int `json:"errors"`
}

// Service categorizes transactions using a cached rules snapshot.
type Service struct {
	source Source
	ledger Ledger

	mu       sync.Mutex
	engine   *rules.Engine
	loadedAt time.Time
}

// NewService creates a categorization service
func NewService(source Source, ledger Ledger) *Service {
	return &Service{source: source, ledger: ledger}
}

// snapshot returns the cached rules engine, reloading it when the TTL has
// expired. A failed reload keeps the previous snapshot if one exists.
func (s *Service) snapshot() (*rules.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil && time.Since(s.loadedAt) < snapshotTTL {
		return s.engine, nil
	}

	engine, err := s.source.Load()
	if err != nil {
		if s.engine != nil {
			log.Printf("WARN: rules reload failed, keeping previous snapshot: %v", err)
			return s.engine, nil
		}
		return nil, fmt.Errorf("loading rules: %w", err)
	}

	s.engine = engine
	s.loadedAt = time.Now()
	return engine, nil
}

// CategorizeTransactions runs one pass over the given transactions, e.g.
// the rows a single import just created. Already-categorized rows and rows
// with no matching rule are counted as skipped; unmatched rows stay
// uncategorized, so a later pass with better rules can pick them up.
func (s *Service) CategorizeTransactions(ctx context.Context, txns []*domain.Transaction) (*Stats, error) {
	start := time.Now()

	engine, err := s.snapshot()
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(txns)}
	updates := make(map[int64]domain.Category)
	for _, txn := range txns {
		if txn.IsCategorized {
			stats.Skipped++
			continue
		}
		result, ok := engine.Match(txn.MatchText())
		if !ok {
			stats.Skipped++
			continue
		}
		updates[txn.ID] = result.Category
	}

	if err := s.ledger.BulkUpdateCategories(ctx, updates); err != nil {
		stats.Errors = len(updates)
		return stats, fmt.Errorf("applying categories: %w", err)
	}
	stats.Categorized = len(updates)

	if elapsed := time.Since(start); elapsed > softTimeBudget {
		log.Printf("WARN: categorizing %d transaction(s) took %.2fs (>%s target)", len(txns), elapsed.Seconds(), softTimeBudget)
	}
	return stats, nil
}

// CategorizeOwner sweeps all of an owner's uncategorized transactions, for
// maintenance passes after a rules change. Imports do not use this; they
// categorize only the rows they created.
func (s *Service) CategorizeOwner(ctx context.Context, owner string) (*Stats, error) {
	txns, err := s.ledger.ListUncategorized(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing uncategorized transactions: %w", err)
	}
	return s.CategorizeTransactions(ctx, txns)
}
