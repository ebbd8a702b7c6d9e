package util

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	rePlainNumber = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
	reExponent    = regexp.MustCompile(`^[+-]?\d+(?:\.\d+)?[eE][+-]?\d+$`)
	hundred       = decimal.NewFromInt(100)
)

// maxExponent bounds scientific notation; anything larger is not a price.
const maxExponent = 15

// ParseDecimal reads a spreadsheet cell as a fixed-point number. It accepts
// comma or dot decimals, thousands separators, a leading R$, non-breaking
// spaces and accounting parentheses for negatives.
func ParseDecimal(input string) (decimal.Decimal, bool) {
	d, _, ok := parseNumber(input)
	return d, ok
}

// ParseRate reads an overhead rate. Values written with a percent sign or
// greater than 1 are percentages and are scaled down to a fraction.
func ParseRate(input string) (decimal.Decimal, bool) {
	d, percent, ok := parseNumber(input)
	if !ok {
		return decimal.Decimal{}, false
	}
	if percent || d.GreaterThan(decimal.NewFromInt(1)) {
		d = d.Div(hundred)
	}
	return d, true
}

func parseNumber(input string) (decimal.Decimal, bool, bool) {
	s := strings.ReplaceAll(input, "\u00a0", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false, false
	}

	if reExponent.MatchString(s) {
		_, exp, _ := strings.Cut(strings.ToLower(s), "e")
		n, err := strconv.Atoi(exp)
		if err != nil || n > maxExponent || n < -maxExponent {
			return decimal.Decimal{}, false, false
		}
		d, err := decimal.NewFromString(s)
		return d, false, err == nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "R$", "")
	percent := strings.HasSuffix(strings.TrimSpace(s), "%")
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = strings.ReplaceAll(s, " ", "")
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	s = normalizeNumericToken(s)
	if !rePlainNumber.MatchString(s) {
		return decimal.Decimal{}, percent, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, percent, false
	}
	if negative {
		d = d.Neg()
	}
	return d, percent, true
}

// normalizeNumericToken rewrites a token to dot-decimal form. With both
// separators present the rightmost one is the decimal mark; a single separator
// repeated is a thousands mark; a single separator used once is the decimal mark.
func normalizeNumericToken(token string) string {
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			return strings.Replace(token, ",", ".", 1)
		}
		return strings.ReplaceAll(token, ",", "")
	case lastComma >= 0:
		if strings.Count(token, ",") > 1 {
			return strings.ReplaceAll(token, ",", "")
		}
		return strings.Replace(token, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(token, ".") > 1 {
			return strings.ReplaceAll(token, ".", "")
		}
	}
	return token
}
