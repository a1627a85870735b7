package ofx

import (
	"regexp"
	"strings"
	"sync"
)

// Field extraction patterns are compiled once per field name. The parsers
// call ExtractField in a loop over transaction blocks, so the cache avoids
// recompiling the same handful of patterns for every block.
var (
	fieldPatternMu sync.Mutex
	fieldPatterns  = make(map[string]*regexp.Regexp)
)

func fieldPattern(field string) *regexp.Regexp {
	key := strings.ToUpper(field)

	fieldPatternMu.Lock()
	defer fieldPatternMu.Unlock()

	if re, ok := fieldPatterns[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)<` + regexp.QuoteMeta(key) + `>([^<\n\r]*)`)
	fieldPatterns[key] = re
	return re
}

// ExtractField returns the value of the first occurrence of the named field
// in an OFX fragment, regardless of whether the fragment is well-formed.
// The value runs from the opening tag to the next '<' or end of line, which
// tolerates SGML's unclosed-value-tag convention. Returns an empty string
// when the field is absent; callers distinguish "absent" from
// "present-but-empty" via surrounding validity checks.
func ExtractField(fragment, field string) string {
	m := fieldPattern(field).FindStringSubmatch(fragment)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
