package pipeline

import (
	"sort"

	"pricenorm/internal"
	"pricenorm/internal/registry"
	"pricenorm/internal/workbook"
)

type Matcher struct {
	reg           *registry.Registry
	minConfidence float64
	scanRows      int
}

func NewMatcher(reg *registry.Registry, minConfidence float64, scanRows int) *Matcher {
	return &Matcher{reg: reg, minConfidence: minConfidence, scanRows: scanRows}
}

// Signature samples a workbook for matching: all sheet names and the first
// sampleRows rows of its busiest sheet.
func Signature(wb *workbook.Workbook, sampleRows int) registry.Signature {
	sig := registry.Signature{SheetNames: wb.SheetNames()}
	if sheet := wb.Busiest(); sheet != nil {
		sig.Sheet = sheet.Name
		sig.Rows = sheet.Rows[:min(sampleRows, len(sheet.Rows))]
	}
	return sig
}

// Match scores every competing profile and picks the best one. It never
// fails: when nothing clears the confidence floor the catch-all profile is
// returned with Fallback set.
func (m *Matcher) Match(sig registry.Signature) internal.MatchResult {
	profiles := m.reg.Scorable()
	scores := make([]registry.Score, 0, len(profiles))
	order := map[internal.Authority]int{}
	for _, p := range profiles {
		scores = append(scores, p.Score(sig, m.reg.Index(), m.scanRows))
		order[p.ID] = p.Order()
	}

	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		if scores[i].Fields != scores[j].Fields {
			return scores[i].Fields > scores[j].Fields
		}
		return order[scores[i].Authority] < order[scores[j].Authority]
	})

	candidates := make([]internal.MatchCandidate, 0, len(scores))
	for _, s := range scores {
		candidates = append(candidates, internal.MatchCandidate{Authority: s.Authority, Score: s.Value, Fields: s.Fields})
	}

	result := internal.MatchResult{Sheet: sig.Sheet, Candidates: candidates}
	if len(scores) > 0 && scores[0].Header.Found() {
		result.HeaderRow = scores[0].Header.Row + 1
	}
	if len(scores) == 0 || scores[0].Value < m.minConfidence {
		result.Authority = m.reg.Fallback().ID
		result.Fallback = true
		if len(scores) > 0 {
			result.Confidence = scores[0].Value
		}
		return result
	}

	result.Authority = scores[0].Authority
	result.Confidence = scores[0].Value
	return result
}
