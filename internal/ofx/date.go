package ofx

import (
	"fmt"
	"strings"
	"time"
)

// ParseDate converts an OFX date token into a timestamp. OFX permits dates
// shaped YYYYMMDD, YYYYMMDDHHMMSS, and YYYYMMDDHHMMSS.sss[offset:TZ]; any
// bracketed timezone annotation is stripped, not converted.
//
// Empty or unparseable tokens fail with ErrMalformedDate. There is no
// fallback to "now": a record whose posted date cannot be parsed is invalid,
// and substituting the import time would corrupt the ledger without any
// signal. Callers drop the individual record instead.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}

	switch {
	case len(s) >= 14:
		t, err := time.Parse("20060102150405", s[:14])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
		return t, nil
	case len(s) >= 8:
		t, err := time.Parse("20060102", s[:8])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedDate, raw)
	}
}
