// Package domain defines the core types shared by the OFX parsers, the
// ledger store, and the categorizer.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// StatementKind identifies the OFX statement response section a document was
// parsed from. Use ValidateStatementKind to ensure validity before use.
type StatementKind string

const (
	StatementKindBank       StatementKind = "BANK"
	StatementKindCreditCard StatementKind = "CREDITCARD"
)

// Category is the budget category assigned by the keyword categorizer.
// Use ValidateCategory to ensure validity before use.
type Category string

const (
	CategoryIncome         Category = "income"
	CategoryHousing        Category = "housing"
	CategoryUtilities      Category = "utilities"
	CategoryGroceries      Category = "groceries"
	CategoryDining         Category = "dining"
	CategoryTransportation Category = "transportation"
	CategoryHealthcare     Category = "healthcare"
	CategoryEntertainment  Category = "entertainment"
	CategoryShopping       Category = "shopping"
	CategoryTravel         Category = "travel"
	CategoryInvestment     Category = "investment"
	CategoryOther          Category = "other"
)

var (
	validStatementKinds = map[StatementKind]struct{}{
		StatementKindBank: {}, StatementKindCreditCard: {},
	}

	validCategories = map[Category]struct{}{
		CategoryIncome: {}, CategoryHousing: {}, CategoryUtilities: {},
		CategoryGroceries: {}, CategoryDining: {}, CategoryTransportation: {},
		CategoryHealthcare: {}, CategoryEntertainment: {}, CategoryShopping: {},
		CategoryTravel: {}, CategoryInvestment: {}, CategoryOther: {},
	}
)

// ValidateStatementKind checks if the statement kind is valid
func ValidateStatementKind(k StatementKind) bool {
	_, ok := validStatementKinds[k]
	return ok
}

// ValidateCategory checks if the category is valid
func ValidateCategory(c Category) bool {
	_, ok := validCategories[c]
	return ok
}

// AccountDescriptor is the account identity extracted from a statement file.
// BankID is empty for credit-card statements (and for bank statements that
// omit BANKID); an empty string stands for "absent" so the store's uniqueness
// index over (owner, kind, bank ID, account ID) stays well-defined.
type AccountDescriptor struct {
	Kind     StatementKind `json:"kind"`
	BankID   string        `json:"bankId,omitempty"`
	AcctID   string        `json:"acctId"`
	Name     string        `json:"name,omitempty"`
	Currency string        `json:"currency,omitempty"`
}

// NewAccountDescriptor creates a validated account descriptor
func NewAccountDescriptor(kind StatementKind, bankID, acctID, name, currency string) (*AccountDescriptor, error) {
	if !ValidateStatementKind(kind) {
		return nil, fmt.Errorf("invalid statement kind: %s", kind)
	}
	if acctID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}

	return &AccountDescriptor{
		Kind:     kind,
		BankID:   bankID,
		AcctID:   acctID,
		Name:     name,
		Currency: currency,
	}, nil
}

// StatementTransaction is a normalized transaction record produced by a
// variant parser, before it reaches the ledger store.
//
// Sign convention:
//
//	Positive = income/inflow (deposits, credit card payments)
//	Negative = expense/outflow (withdrawals, credit card charges)
//
// Parsers must normalize to this convention regardless of source file
// representation.
type StatementTransaction struct {
	FitID    string    `json:"fitId"`
	PostedAt time.Time `json:"postedAt"`
	Amount   float64   `json:"amount"`
	TxnType  string    `json:"txnType,omitempty"`
	Payee    string    `json:"payee,omitempty"`
	Memo     string    `json:"memo,omitempty"`
	CheckNum string    `json:"checkNum,omitempty"`
	Currency string    `json:"currency,omitempty"`
}

// NewStatementTransaction creates a validated statement transaction.
// FitID and PostedAt are required; records without them never reach the
// reconciler.
func NewStatementTransaction(fitID string, postedAt time.Time, amount float64) (*StatementTransaction, error) {
	if strings.TrimSpace(fitID) == "" {
		return nil, fmt.Errorf("transaction FITID cannot be empty")
	}
	if postedAt.IsZero() {
		return nil, fmt.Errorf("transaction %s posted date cannot be zero", fitID)
	}

	return &StatementTransaction{
		FitID:    strings.TrimSpace(fitID),
		PostedAt: postedAt,
		Amount:   amount,
	}, nil
}

// Account is a persisted ledger account. Identity for deduplication is
// (Owner, Kind, BankID, AcctID); the display name is first-write-wins.
type Account struct {
	ID        int64         `json:"id"`
	Owner     string        `json:"owner"`
	Kind      StatementKind `json:"kind"`
	BankID    string        `json:"bankId,omitempty"`
	AcctID    string        `json:"acctId"`
	Name      string        `json:"name,omitempty"`
	Currency  string        `json:"currency,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Transaction is a persisted ledger transaction. Identity for deduplication
// is (AccountID, FitID); re-importing the same FITID never mutates the stored
// row. Category, IsCategorized, and CategorizedAt are the only mutable
// fields, written by the categorizer after import.
type Transaction struct {
	ID            int64      `json:"id"`
	AccountID     int64      `json:"accountId"`
	FitID         string     `json:"fitId"`
	PostedAt      time.Time  `json:"postedAt"`
	Amount        float64    `json:"amount"`
	TxnType       string     `json:"txnType,omitempty"`
	Payee         string     `json:"payee,omitempty"`
	Memo          string     `json:"memo,omitempty"`
	CheckNum      string     `json:"checkNum,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	Category      Category   `json:"category,omitempty"`
	IsCategorized bool       `json:"isCategorized"`
	CategorizedAt *time.Time `json:"categorizedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// MatchText returns the text the categorizer matches keywords against:
// payee and memo, lowercased.
func (t *Transaction) MatchText() string {
	return strings.ToLower(strings.TrimSpace(t.Payee + " " + t.Memo))
}
