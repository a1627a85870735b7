// Package ofx provides tolerant parsing of OFX statement documents.
//
// OFX files come in two generations: a 1.x SGML form whose leaf value tags
// are opened but never closed, and a 2.x well-formed XML form. Real-world
// exports violate both. The package therefore ships two parse strategies
// behind one interface: a structural parser that promotes the SGML form to
// XML and walks the element tree, and a tag-soup parser that scans
// transaction blocks directly. The two have disjoint failure modes; the
// import orchestrator tries them in a fixed order.
package ofx

import (
	"errors"

	"github.com/finwise/ofxledger/internal/domain"
)

var (
	// ErrRequestOnly indicates the document is an outbound statement
	// request echo (STMTTRNRQ without a response section). It carries no
	// transactions and no other file from the same source will either;
	// the caller needs a statement export instead.
	ErrRequestOnly = errors.New("document is a statement request, not a statement response")

	// ErrUnsupportedDocument indicates no bank or credit-card statement
	// section was found.
	ErrUnsupportedDocument = errors.New("unsupported OFX document: missing BANKMSGSRSV1 or CREDITCARDMSGSRSV1")

	// ErrNoTransactions indicates the parse completed structurally but
	// yielded zero valid transaction records. An empty import almost
	// always means the format was not actually recognized, so it is
	// treated as failure rather than success-with-zero.
	ErrNoTransactions = errors.New("no valid transactions found in OFX document")

	// ErrMalformedDate indicates an OFX date token could not be parsed.
	ErrMalformedDate = errors.New("malformed OFX date")
)

// ParsedStatement is the normalized output shared by both parse strategies:
// one account descriptor plus the valid transactions of one statement
// response.
type ParsedStatement struct {
	Account      domain.AccountDescriptor
	Transactions []domain.StatementTransaction
}

// VariantParser is the strategy interface implemented by both parsers.
// TryParse returns one ParsedStatement per statement response found in the
// document; a document carrying both a bank and a credit-card section yields
// multiple statements.
type VariantParser interface {
	// Name returns the strategy identifier (e.g., "structural", "tag-soup")
	Name() string

	// TryParse extracts statements from the document. Individual malformed
	// transaction records are dropped silently; document-level problems
	// (no recognizable structure, zero valid records) return an error.
	TryParse(doc *RawDocument) ([]*ParsedStatement, error)
}
