package ofx

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/finwise/ofxledger/internal/domain"
)

// Transaction block boundaries. A block starts at <STMTTRN> and ends at the
// next <STMTTRN> or at the first terminator marker, whichever comes first.
// The terminator set matters: the last transaction in a list is immediately
// followed by balance information, and must still be captured.
var (
	blockStartRe      = regexp.MustCompile(`(?i)<STMTTRN>`)
	blockTerminatorRe = regexp.MustCompile(`(?i)</BANKTRANLIST>|<LEDGERBAL>|<AVAILBAL>`)
)

// SoupParser is the tag-soup parse strategy: it treats the document as SGML
// and pulls transaction blocks directly by position, with no requirement
// that the markup be well-formed. Robust to unescaped XML characters,
// brittle to unusual nesting (it sees at most one statement response per
// section). Stateless and safe for concurrent use.
type SoupParser struct{}

var soupParserInstance = &SoupParser{}

// NewSoupParser returns the shared tag-soup parser instance
func NewSoupParser() *SoupParser {
	return soupParserInstance
}

// Name returns the strategy identifier
func (p *SoupParser) Name() string {
	return "tag-soup"
}

// TryParse extracts one statement per section marker present in the
// document. Individual records missing FITID, posted date, or amount, or
// whose date or amount fail to parse, are skipped; they must not poison the
// batch. Zero valid records across all sections fails with
// ErrNoTransactions.
func (p *SoupParser) TryParse(doc *RawDocument) ([]*ParsedStatement, error) {
	kinds, err := Classify(doc)
	if err != nil {
		return nil, err
	}

	text := doc.Text()

	// ORG lives in the signon block, outside the statement sections.
	orgName := ExtractField(text, "ORG")

	var (
		statements []*ParsedStatement
		total      int
	)
	for _, kind := range kinds {
		section := sliceSection(text, kind)

		acctID := ExtractField(section, "ACCTID")
		if acctID == "" {
			return nil, fmt.Errorf("%s section missing ACCTID", kind)
		}

		bankID := ""
		if kind == domain.StatementKindBank {
			bankID = ExtractField(section, "BANKID")
		}

		currency := ExtractField(section, "CURDEF")
		if currency == "" {
			currency = "USD"
		}

		desc, err := domain.NewAccountDescriptor(kind, bankID, acctID, orgName, currency)
		if err != nil {
			return nil, fmt.Errorf("invalid account in %s section: %w", kind, err)
		}

		txns := extractTransactions(section, currency)
		total += len(txns)
		if len(txns) == 0 {
			// A section with an account but no valid records contributes
			// nothing; skip it rather than reconciling an empty account.
			continue
		}

		statements = append(statements, &ParsedStatement{
			Account:      *desc,
			Transactions: txns,
		})
	}

	if total == 0 {
		return nil, ErrNoTransactions
	}
	return statements, nil
}

// asciiUpper uppercases ASCII letters only. Unlike strings.ToUpper it never
// changes byte length (ToUpper folds runes like U+0131 to a different
// encoding size), so indices found in the folded copy are valid in the
// original text.
func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// sliceSection returns the part of the document belonging to one statement
// kind: from its section marker to the section's close tag, the other
// section's marker, or end of document.
func sliceSection(text string, kind domain.StatementKind) string {
	marker, other := bankSectionMarker, creditCardSectionMarker
	if kind == domain.StatementKindCreditCard {
		marker, other = creditCardSectionMarker, bankSectionMarker
	}

	upper := asciiUpper(text)
	start := strings.Index(upper, "<"+marker+">")
	if start < 0 {
		start = strings.Index(upper, marker)
	}
	if start < 0 {
		return ""
	}

	rest := upper[start:]
	end := len(rest)
	if i := strings.Index(rest, "</"+marker+">"); i >= 0 && i < end {
		end = i
	}
	// An unclosed section ends where the other section begins.
	if i := strings.Index(rest[1:], "<"+other+">"); i >= 0 && i+1 < end {
		end = i + 1
	}

	return text[start : start+end]
}

// extractTransactions scans a section for transaction blocks and extracts
// the valid ones.
func extractTransactions(section, currency string) []domain.StatementTransaction {
	starts := blockStartRe.FindAllStringIndex(section, -1)

	var txns []domain.StatementTransaction
	for i, start := range starts {
		blockStart := start[1]
		blockEnd := len(section)
		if i+1 < len(starts) {
			blockEnd = starts[i+1][0]
		}
		if term := blockTerminatorRe.FindStringIndex(section[blockStart:blockEnd]); term != nil {
			blockEnd = blockStart + term[0]
		}

		block := section[blockStart:blockEnd]
		if txn, ok := extractTransaction(block, currency); ok {
			txns = append(txns, *txn)
		}
	}

	return txns
}

// extractTransaction pulls one normalized record out of a transaction
// block. Returns false for records missing any of the FITID/date/amount
// validity triple, or whose date or amount do not parse.
func extractTransaction(block, currency string) (*domain.StatementTransaction, bool) {
	fitID := ExtractField(block, "FITID")
	dtPosted := ExtractField(block, "DTPOSTED")
	trnAmt := ExtractField(block, "TRNAMT")

	if fitID == "" || dtPosted == "" || trnAmt == "" {
		return nil, false
	}

	postedAt, err := ParseDate(dtPosted)
	if err != nil {
		return nil, false
	}

	amount, err := strconv.ParseFloat(trnAmt, 64)
	if err != nil {
		return nil, false
	}

	txn, err := domain.NewStatementTransaction(fitID, postedAt, amount)
	if err != nil {
		return nil, false
	}

	txn.TxnType = ExtractField(block, "TRNTYPE")
	txn.Payee = ExtractField(block, "NAME")
	txn.Memo = ExtractField(block, "MEMO")
	txn.CheckNum = ExtractField(block, "CHECKNUM")
	txn.Currency = currency

	return txn, true
}
