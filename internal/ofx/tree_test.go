package ofx

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/finwise/ofxledger/internal/domain"
)

const bankStatementXML = `<?xml version="1.0" encoding="UTF-8"?>
<?OFX OFXHEADER="200" VERSION="211"?>
<OFX>
  <SIGNONMSGSRSV1>
    <SONRS>
      <STATUS><CODE>0</CODE><SEVERITY>INFO</SEVERITY></STATUS>
      <FI><ORG>First National</ORG><FID>1001</FID></FI>
    </SONRS>
  </SIGNONMSGSRSV1>
  <BANKMSGSRSV1>
    <STMTTRNRS>
      <TRNUID>1</TRNUID>
      <STMTRS>
        <CURDEF>USD</CURDEF>
        <BANKACCTFROM>
          <BANKID>123456789</BANKID>
          <ACCTID>9876543210</ACCTID>
          <ACCTTYPE>CHECKING</ACCTTYPE>
        </BANKACCTFROM>
        <BANKTRANLIST>
          <DTSTART>20230101</DTSTART>
          <DTEND>20230131</DTEND>
          <STMTTRN>
            <TRNTYPE>DEBIT</TRNTYPE>
            <DTPOSTED>20230115</DTPOSTED>
            <TRNAMT>-42.50</TRNAMT>
            <FITID>2023011501</FITID>
            <NAME>COFFEE SHOP</NAME>
            <MEMO>latte</MEMO>
          </STMTTRN>
          <STMTTRN>
            <TRNTYPE>CREDIT</TRNTYPE>
            <DTPOSTED>20230120120000</DTPOSTED>
            <TRNAMT>1500.00</TRNAMT>
            <FITID>2023012001</FITID>
            <NAME>PAYROLL</NAME>
          </STMTTRN>
        </BANKTRANLIST>
      </STMTRS>
    </STMTTRNRS>
  </BANKMSGSRSV1>
</OFX>
`

func TestTreeParser_SGMLPromotion(t *testing.T) {
	// The 1.x SGML form with unclosed leaf tags must promote cleanly and
	// parse to the same result the tag-soup strategy produces.
	statements, err := NewTreeParser().TryParse(DecodeDocument([]byte(bankStatementSGML)))
	if err != nil {
		t.Fatalf("TryParse() error = %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("statements = %d, want 1", len(statements))
	}

	stmt := statements[0]
	if stmt.Account.Kind != domain.StatementKindBank {
		t.Errorf("Account.Kind = %v, want BANK", stmt.Account.Kind)
	}
	if stmt.Account.BankID != "123456789" {
		t.Errorf("Account.BankID = %q, want 123456789", stmt.Account.BankID)
	}
	if stmt.Account.AcctID != "9876543210" {
		t.Errorf("Account.AcctID = %q, want 9876543210", stmt.Account.AcctID)
	}
	if stmt.Account.Name != "First National" {
		t.Errorf("Account.Name = %q, want First National", stmt.Account.Name)
	}

	// The record with no FITID is dropped
	if len(stmt.Transactions) != 2 {
		t.Fatalf("Transactions = %d, want 2", len(stmt.Transactions))
	}
	if stmt.Transactions[0].FitID != "2023011501" {
		t.Errorf("FitID = %q, want 2023011501", stmt.Transactions[0].FitID)
	}
	if stmt.Transactions[0].Amount != -42.50 {
		t.Errorf("Amount = %v, want -42.50", stmt.Transactions[0].Amount)
	}
	if !stmt.Transactions[1].PostedAt.Equal(time.Date(2023, 1, 20, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("PostedAt = %v", stmt.Transactions[1].PostedAt)
	}
}

func TestTreeParser_XMLDocument(t *testing.T) {
	// A 2.x document is already well-formed; promotion must be a no-op
	// and must not double-close the leaf tags.
	statements, err := NewTreeParser().TryParse(DecodeDocument([]byte(bankStatementXML)))
	if err != nil {
		t.Fatalf("TryParse() error = %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("statements = %d, want 1", len(statements))
	}

	stmt := statements[0]
	if stmt.Account.AcctID != "9876543210" {
		t.Errorf("Account.AcctID = %q", stmt.Account.AcctID)
	}
	if stmt.Account.Name != "First National" {
		t.Errorf("Account.Name = %q", stmt.Account.Name)
	}
	if len(stmt.Transactions) != 2 {
		t.Fatalf("Transactions = %d, want 2", len(stmt.Transactions))
	}
	if stmt.Transactions[0].Payee != "COFFEE SHOP" || stmt.Transactions[0].Memo != "latte" {
		t.Errorf("first transaction = %+v", stmt.Transactions[0])
	}
}

func TestTreeParser_MultipleStatementResponses(t *testing.T) {
	// Several STMTTRNRS aggregates in one section yield one statement
	// each. The tag-soup strategy cannot do this; the structural parser
	// must.
	doc := `<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<CURDEF>USD</CURDEF>
<BANKACCTFROM><BANKID>1</BANKID><ACCTID>AAA</ACCTID></BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><DTPOSTED>20230101</DTPOSTED><TRNAMT>-1.00</TRNAMT><FITID>A1</FITID></STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
<STMTTRNRS>
<STMTRS>
<CURDEF>EUR</CURDEF>
<BANKACCTFROM><BANKID>1</BANKID><ACCTID>BBB</ACCTID></BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><DTPOSTED>20230102</DTPOSTED><TRNAMT>-2.00</TRNAMT><FITID>B1</FITID></STMTTRN>
<STMTTRN><DTPOSTED>20230103</DTPOSTED><TRNAMT>-3.00</TRNAMT><FITID>B2</FITID></STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`
	statements, err := NewTreeParser().TryParse(DecodeDocument([]byte(doc)))
	if err != nil {
		t.Fatalf("TryParse() error = %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(statements))
	}
	if statements[0].Account.AcctID != "AAA" || len(statements[0].Transactions) != 1 {
		t.Errorf("first statement = %+v", statements[0])
	}
	if statements[1].Account.AcctID != "BBB" || len(statements[1].Transactions) != 2 {
		t.Errorf("second statement = %+v", statements[1])
	}
	if statements[1].Account.Currency != "EUR" {
		t.Errorf("second statement currency = %q, want EUR", statements[1].Account.Currency)
	}
}

func TestTreeParser_MalformedMarkup(t *testing.T) {
	// Unbalanced container tags survive classification but fail strict
	// decoding. The orchestrator falls back to tag-soup on this error.
	doc := `<OFX>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<BANKACCTFROM><ACCTID>AAA</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN><DTPOSTED>20230101</DTPOSTED><TRNAMT>-1.00</TRNAMT><FITID>A1</FITID></STMTTRN>
</OFX>
`
	_, err := NewTreeParser().TryParse(DecodeDocument([]byte(doc)))
	if err == nil {
		t.Fatal("TryParse() expected error for malformed markup")
	}
	if errors.Is(err, ErrNoTransactions) {
		t.Errorf("TryParse() error = %v, want a decode error", err)
	}
}

func TestTreeParser_ClassificationRejections(t *testing.T) {
	p := NewTreeParser()

	_, err := p.TryParse(DecodeDocument([]byte("<OFX><STMTTRNRQ></STMTTRNRQ></OFX>")))
	if !errors.Is(err, ErrRequestOnly) {
		t.Errorf("request document: error = %v, want ErrRequestOnly", err)
	}

	_, err = p.TryParse(DecodeDocument([]byte("plain text")))
	if !errors.Is(err, ErrUnsupportedDocument) {
		t.Errorf("unsupported document: error = %v, want ErrUnsupportedDocument", err)
	}
}

func TestPromoteToXML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "closes unclosed leaf tag",
			in:   "<OFX><FITID>abc\n</OFX>",
			want: "<FITID>abc</FITID>",
		},
		{
			name: "already closed tag untouched",
			in:   "<OFX><FITID>abc</FITID></OFX>",
			want: "<FITID>abc</FITID></OFX>",
		},
		{
			name: "empty leaf closed",
			in:   "<OFX><MEMO>\n</OFX>",
			want: "<MEMO></MEMO>",
		},
		{
			name: "trailing spaces trimmed before close",
			in:   "<OFX><NAME>STORE   \n</OFX>",
			want: "<NAME>STORE</NAME>",
		},
		{
			name: "header stripped",
			in:   "OFXHEADER:100\nDATA:OFXSGML\n<OFX></OFX>",
			want: "<OFX></OFX>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := promoteToXML(tt.in)
			if err != nil {
				t.Fatalf("promoteToXML() error = %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("promoteToXML(%q) = %q, want it to contain %q", tt.in, got, tt.want)
			}
			if tt.name == "header stripped" && strings.Contains(got, "OFXHEADER") {
				t.Errorf("promoteToXML() kept the header: %q", got)
			}
		})
	}
}

func TestPromoteToXML_NoRoot(t *testing.T) {
	if _, err := promoteToXML("no ofx element here"); err == nil {
		t.Error("promoteToXML() expected error without <OFX> root")
	}
}
