package ofx

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/finwise/ofxledger/internal/domain"
)

// classifyPrefixLen bounds how much of the document the request-rejection
// check inspects. Header and status tags always appear early, and request
// files are recognizable from their first tags.
const classifyPrefixLen = 4096

// Section markers for the two supported statement kinds.
const (
	bankSectionMarker       = "BANKMSGSRSV1"
	creditCardSectionMarker = "CREDITCARDMSGSRSV1"
)

// RawDocument is an immutable decoded OFX document: the original bytes plus
// the text they decode to. Created once at the ingestion boundary and read
// by both parse strategies.
type RawDocument struct {
	raw  []byte
	text string
}

// DecodeDocument decodes a byte buffer into a RawDocument. Valid UTF-8 is
// taken as-is; anything else is decoded as Latin-1, which maps every byte
// and therefore never fails. Bank exports predate UTF-8 often enough that
// the fallback matters in practice.
func DecodeDocument(b []byte) *RawDocument {
	if utf8.Valid(b) {
		return &RawDocument{raw: b, text: string(b)}
	}

	text, _, err := transform.String(charmap.ISO8859_1.NewDecoder(), string(b))
	if err != nil {
		// Latin-1 decoding is total; this path exists only to satisfy the
		// transform API. Fall back to the raw bytes with invalid sequences
		// left in place.
		text = string(b)
	}
	return &RawDocument{raw: b, text: text}
}

// Bytes returns the original undecoded bytes
func (d *RawDocument) Bytes() []byte { return d.raw }

// Text returns the decoded document text
func (d *RawDocument) Text() string { return d.text }

// Classify inspects a document and decides which statement kinds it carries.
//
// A document containing a statement request marker (STMTTRNRQ) in its prefix
// without any response marker is an outbound request echo and fails with
// ErrRequestOnly. Otherwise the document is searched case-insensitively for
// the bank and credit-card section markers; both may be present, in which
// case both kinds are returned and both sections are processed. Neither
// present fails with ErrUnsupportedDocument.
func Classify(doc *RawDocument) ([]domain.StatementKind, error) {
	text := doc.Text()

	prefix := text
	if len(prefix) > classifyPrefixLen {
		prefix = prefix[:classifyPrefixLen]
	}
	upperPrefix := strings.ToUpper(prefix)

	if strings.Contains(upperPrefix, "STMTTRNRQ") &&
		!strings.Contains(upperPrefix, "STMTTRNRS") &&
		!strings.Contains(upperPrefix, "STMTRS") {
		return nil, ErrRequestOnly
	}

	upper := strings.ToUpper(text)

	var kinds []domain.StatementKind
	if strings.Contains(upper, bankSectionMarker) {
		kinds = append(kinds, domain.StatementKindBank)
	}
	if strings.Contains(upper, creditCardSectionMarker) {
		kinds = append(kinds, domain.StatementKindCreditCard)
	}

	if len(kinds) == 0 {
		return nil, ErrUnsupportedDocument
	}
	return kinds, nil
}
