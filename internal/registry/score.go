package registry

import (
	"strings"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

const (
	weightCoverage = 0.45
	weightTokens   = 0.15
	weightSheets   = 0.20
	weightKeywords = 0.20
)

// Signature is what the matcher knows about a workbook before committing to
// a profile: every sheet name plus the first rows of its busiest sheet.
type Signature struct {
	SheetNames []string
	Sheet      string
	Rows       [][]string
}

type Score struct {
	Authority internal.Authority
	Value     float64
	Fields    int
	Header    Header
}

// Scorable is implemented by every profile that competes in layout matching.
type Scorable interface {
	Score(sig Signature, idx *Index, scanRows int) Score
}

func (p *Profile) Score(sig Signature, idx *Index, scanRows int) Score {
	h := p.ResolveHeader(sig.Rows, scanRows)

	coverage := 0.0
	if declared := p.declaredTargets(); declared > 0 {
		coverage = float64(h.Matches()) / float64(declared)
	}

	tokens := 0.0
	if len(h.Tokens) > 0 {
		owned := 0
		for _, tok := range h.Tokens {
			if idx.Owns(p.ID, tok) {
				owned++
			}
		}
		tokens = float64(owned) / float64(len(h.Tokens))
	}

	wCoverage := weightCoverage
	sheets := 0.0
	if n := p.sheetPatternCount(); n > 0 {
		sheets = sheetPatternHits(p, sig.SheetNames) / float64(n)
	} else {
		wCoverage += weightSheets
	}

	keywords := 0.0
	if p.keywordHit(sig, scanRows) {
		keywords = 1
	}

	value := wCoverage*coverage + weightTokens*tokens + weightSheets*sheets + weightKeywords*keywords
	value = max(0, min(1, value))
	return Score{Authority: p.ID, Value: value, Fields: h.Matches(), Header: h}
}

func sheetPatternHits(p *Profile, names []string) float64 {
	hits := 0
	folded := make([]string, len(names))
	for i, n := range names {
		folded[i] = util.FoldAccents(n)
	}
	for _, re := range p.SheetPatterns {
		for _, n := range folded {
			if re.MatchString(n) {
				hits++
				break
			}
		}
	}
	for _, rule := range p.Sheets {
		for _, n := range folded {
			if rule.Pattern.MatchString(n) {
				hits++
				break
			}
		}
	}
	return float64(hits)
}

func (p *Profile) keywordHit(sig Signature, scanRows int) bool {
	if len(p.Keywords) == 0 {
		return false
	}
	haystack := make([]string, 0, len(sig.SheetNames)+scanRows)
	for _, n := range sig.SheetNames {
		haystack = append(haystack, util.NormalizeHeader(n))
	}
	for i := 0; i < min(scanRows, len(sig.Rows)); i++ {
		for _, cell := range sig.Rows[i] {
			if cell != "" {
				haystack = append(haystack, util.NormalizeHeader(cell))
			}
		}
	}
	for _, kw := range p.Keywords {
		for _, h := range haystack {
			if containsWord(h, kw) {
				return true
			}
		}
	}
	return false
}

func containsWord(haystack, needle string) bool {
	return haystack == needle ||
		strings.HasPrefix(haystack, needle+" ") ||
		strings.HasSuffix(haystack, " "+needle) ||
		strings.Contains(haystack, " "+needle+" ")
}
