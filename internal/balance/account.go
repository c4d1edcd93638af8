package balance

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var maxAccountCode = decimal.NewFromInt(math.MaxInt64)

// AccountKey is the canonical identifier of a ledger account. Numeric codes are
// preferred; anything that does not parse as a number is kept as folded text.
type AccountKey struct {
	code    int64
	text    string
	numeric bool
}

// NumericKey builds a key for an integer account code.
func NumericKey(code int64) AccountKey {
	return AccountKey{code: code, numeric: true}
}

// Code returns the integer code when the key is numeric.
func (k AccountKey) Code() (int64, bool) {
	return k.code, k.numeric
}

// IsZero reports whether the key was never assigned.
func (k AccountKey) IsZero() bool {
	return !k.numeric && k.text == ""
}

// String renders the canonical form. Normalize(k.String()) yields k again.
func (k AccountKey) String() string {
	if k.numeric {
		return strconv.FormatInt(k.code, 10)
	}
	return k.text
}

// MarshalText lets keys travel as JSON strings.
func (k AccountKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Normalize converts a raw cell value into an AccountKey. Numeric values
// ("1000", "1000.0", "1.39E+08") are truncated to their integer part. Other
// text is upper-cased with inner whitespace collapsed. Empty input fails.
func Normalize(raw string) (AccountKey, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return AccountKey{}, false
	}
	if d, err := decimal.NewFromString(s); err == nil {
		t := d.Truncate(0)
		if t.Abs().LessThanOrEqual(maxAccountCode) {
			return NumericKey(t.IntPart()), true
		}
	}
	text := strings.ToUpper(strings.Join(strings.Fields(s), " "))
	if text == "" {
		return AccountKey{}, false
	}
	return AccountKey{text: text}, true
}
