package ofx

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/finwise/ofxledger/internal/domain"
)

// leafTags are the value-carrying tags that OFX 1.x leaves unclosed.
// Promotion closes exactly these; container tags are already balanced in
// any document this strategy can handle.
var leafTags = []string{
	"FITID", "DTPOSTED", "TRNAMT", "TRNTYPE", "NAME", "MEMO",
	"CODE", "SEVERITY", "TRNUID", "CURDEF", "BANKID", "ACCTID",
	"ACCTTYPE", "DTSTART", "DTEND", "BALAMT", "DTASOF", "DTSERVER",
	"LANGUAGE", "ORG", "FID", "CHECKNUM",
}

var leafTagRes = buildLeafTagRes()

func buildLeafTagRes() []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(leafTags))
	for _, tag := range leafTags {
		// Optionally consume an existing close tag so promotion is
		// idempotent: already well-formed XML passes through unchanged.
		res = append(res, regexp.MustCompile(`(?i)<`+tag+`>[^<\r\n]*(?:</`+tag+`>)?`))
	}
	return res
}

var ofxOpenRe = regexp.MustCompile(`(?i)<OFX>`)

// TreeParser is the structural parse strategy: it promotes the SGML body to
// well-formed XML by closing the known leaf tags, then decodes it into an
// element tree and walks the statement response aggregates. Handles
// multiple statement responses per section, which the tag-soup strategy
// cannot. Stateless and safe for concurrent use.
type TreeParser struct{}

var treeParserInstance = &TreeParser{}

// NewTreeParser returns the shared structural parser instance
func NewTreeParser() *TreeParser {
	return treeParserInstance
}

// Name returns the strategy identifier
func (p *TreeParser) Name() string {
	return "structural"
}

// TryParse promotes the document body to XML, decodes it, and extracts one
// statement per statement response aggregate. Record validity rules match
// the tag-soup strategy: bad records are skipped, zero valid records
// overall fails with ErrNoTransactions.
func (p *TreeParser) TryParse(doc *RawDocument) ([]*ParsedStatement, error) {
	kinds, err := Classify(doc)
	if err != nil {
		return nil, err
	}

	body, err := promoteToXML(doc.Text())
	if err != nil {
		return nil, err
	}

	root, err := decodeTree(body)
	if err != nil {
		return nil, fmt.Errorf("decoding promoted document: %w", err)
	}

	orgName := ""
	if fi := root.find("SIGNONMSGSRSV1", "SONRS", "FI"); fi != nil {
		orgName = fi.childText("ORG")
	}

	var (
		statements []*ParsedStatement
		total      int
	)
	for _, kind := range kinds {
		section, rsName, acctFrom := sectionShape(kind)
		sectionElem := root.find(section)
		if sectionElem == nil {
			continue
		}

		for _, trnrs := range sectionElem.children(rsName) {
			rs := trnrs.find(statementAggregate(kind))
			if rs == nil {
				continue
			}

			acct := rs.find(acctFrom)
			if acct == nil {
				return nil, fmt.Errorf("%s statement missing %s", kind, acctFrom)
			}
			acctID := acct.childText("ACCTID")
			if acctID == "" {
				return nil, fmt.Errorf("%s statement missing ACCTID", kind)
			}

			bankID := ""
			if kind == domain.StatementKindBank {
				bankID = acct.childText("BANKID")
			}

			currency := rs.childText("CURDEF")
			if currency == "" {
				currency = "USD"
			}

			desc, err := domain.NewAccountDescriptor(kind, bankID, acctID, orgName, currency)
			if err != nil {
				return nil, fmt.Errorf("invalid account in %s statement: %w", kind, err)
			}

			var txns []domain.StatementTransaction
			if list := rs.find("BANKTRANLIST"); list != nil {
				for _, stmttrn := range list.children("STMTTRN") {
					if txn, ok := treeTransaction(stmttrn, currency); ok {
						txns = append(txns, *txn)
					}
				}
			}

			total += len(txns)
			if len(txns) == 0 {
				continue
			}

			statements = append(statements, &ParsedStatement{
				Account:      *desc,
				Transactions: txns,
			})
		}
	}

	if total == 0 {
		return nil, ErrNoTransactions
	}
	return statements, nil
}

// sectionShape returns the aggregate names for one statement kind: the
// message set, the transaction-response wrapper, and the account aggregate.
func sectionShape(kind domain.StatementKind) (section, rsName, acctFrom string) {
	if kind == domain.StatementKindCreditCard {
		return creditCardSectionMarker, "CCSTMTTRNRS", "CCACCTFROM"
	}
	return bankSectionMarker, "STMTTRNRS", "BANKACCTFROM"
}

func statementAggregate(kind domain.StatementKind) string {
	if kind == domain.StatementKindCreditCard {
		return "CCSTMTRS"
	}
	return "STMTRS"
}

// promoteToXML strips the OFX header and closes the known leaf tags,
// yielding a body encoding/xml can decode. Idempotent: a 2.x document that
// is already XML comes through unchanged apart from losing its prolog.
func promoteToXML(text string) (string, error) {
	loc := ofxOpenRe.FindStringIndex(text)
	if loc == nil {
		return "", fmt.Errorf("document has no <OFX> root element")
	}
	body := text[loc[0]:]

	for _, re := range leafTagRes {
		body = re.ReplaceAllStringFunc(body, closeLeafTag)
	}
	return body, nil
}

func closeLeafTag(match string) string {
	if strings.HasSuffix(match, ">") && strings.Contains(match, "</") {
		return match
	}
	gt := strings.IndexByte(match, '>')
	tag := match[1:gt]
	return strings.TrimRight(match, " \t") + "</" + tag + ">"
}

// xmlElem is a generic decoded element: name, flattened text, children in
// document order.
type xmlElem struct {
	name  string
	text  string
	elems []*xmlElem
}

// decodeTree decodes an XML body into an element tree. Tag names are
// uppercased so lookups are case-insensitive.
func decodeTree(body string) (*xmlElem, error) {
	dec := xml.NewDecoder(strings.NewReader(body))

	root := &xmlElem{name: "document"}
	stack := []*xmlElem{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			elem := &xmlElem{name: strings.ToUpper(t.Name.Local)}
			parent := stack[len(stack)-1]
			parent.elems = append(parent.elems, elem)
			stack = append(stack, elem)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			cur := stack[len(stack)-1]
			cur.text += string(t)
		}
	}

	if len(root.elems) == 0 {
		return nil, fmt.Errorf("no elements decoded")
	}
	ofx := root.elems[0]
	if ofx.name != "OFX" {
		return nil, fmt.Errorf("unexpected root element %s", ofx.name)
	}
	return ofx, nil
}

// find walks a path of child names, returning nil when any step is absent.
func (e *xmlElem) find(path ...string) *xmlElem {
	cur := e
	for _, name := range path {
		var next *xmlElem
		for _, child := range cur.elems {
			if child.name == name {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// children returns all direct children with the given name
func (e *xmlElem) children(name string) []*xmlElem {
	var out []*xmlElem
	for _, child := range e.elems {
		if child.name == name {
			out = append(out, child)
		}
	}
	return out
}

// childText returns the trimmed text of the named direct child, or ""
func (e *xmlElem) childText(name string) string {
	child := e.find(name)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.text)
}

// treeTransaction extracts one normalized record from a decoded STMTTRN
// aggregate, applying the same validity rules as the tag-soup strategy.
func treeTransaction(elem *xmlElem, currency string) (*domain.StatementTransaction, bool) {
	fitID := elem.childText("FITID")
	dtPosted := elem.childText("DTPOSTED")
	trnAmt := elem.childText("TRNAMT")

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

	txn.TxnType = elem.childText("TRNTYPE")
	txn.Payee = elem.childText("NAME")
	txn.Memo = elem.childText("MEMO")
	txn.CheckNum = elem.childText("CHECKNUM")
	txn.Currency = currency

	return txn, true
}
