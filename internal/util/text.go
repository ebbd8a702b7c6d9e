package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reNonAllowed = regexp.MustCompile(`[^A-Z0-9\s]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// FoldAccents strips combining marks so "PREÇO" and "PRECO" compare equal.
func FoldAccents(input string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, input)
	if err != nil {
		return input
	}
	return out
}

// NormalizeHeader folds a header cell or alias into the form used for
// column resolution: accents removed, upper case, currency marker and
// punctuation replaced by spaces.
func NormalizeHeader(input string) string {
	s := strings.ToUpper(FoldAccents(input))
	s = strings.ReplaceAll(s, "R$", " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeCode is the join and storage form of a service code: upper case,
// all whitespace removed, leading zeros kept.
func NormalizeCode(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	out := strings.Builder{}
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func NormalizeSpaces(input string) string {
	input = strings.ReplaceAll(input, "\u00a0", " ")
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func Tokenize(input string) []string {
	parts := strings.Split(NormalizeHeader(input), " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}
