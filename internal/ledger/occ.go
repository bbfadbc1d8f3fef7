package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionContract is a parsed OCC option symbol, e.g.
// "AAPL  261218C00150000" (root padded to 6, yymmdd, C/P, strike*1000).
type OptionContract struct {
	Root   string
	Expiry time.Time
	Call   bool
	Strike decimal.Decimal
}

// ParseOCC parses an OCC-format option symbol. The root may be padded
// with spaces or not. Returns false for anything that does not match.
func ParseOCC(symbol string) (OptionContract, bool) {
	s := strings.TrimSpace(symbol)
	// Root (1-6 chars) + 6 date digits + C/P + 8 strike digits.
	if len(s) < 16 || len(s) > 21 {
		return OptionContract{}, false
	}
	tail := s[len(s)-15:]
	root := strings.TrimRight(s[:len(s)-15], " ")
	if root == "" || len(root) > 6 {
		return OptionContract{}, false
	}
	for _, r := range root {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return OptionContract{}, false
		}
	}

	date := tail[:6]
	cp := tail[6]
	strike := tail[7:]
	if !allDigits(date) || !allDigits(strike) {
		return OptionContract{}, false
	}
	if cp != 'C' && cp != 'P' {
		return OptionContract{}, false
	}

	expiry, err := time.Parse("060102", date)
	if err != nil {
		return OptionContract{}, false
	}

	// Strike is in thousandths of a dollar.
	sd, err := decimal.NewFromString(strike)
	if err != nil {
		return OptionContract{}, false
	}
	return OptionContract{
		Root:   root,
		Expiry: expiry.UTC(),
		Call:   cp == 'C',
		Strike: sd.Div(decimal.NewFromInt(1000)),
	}, true
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
