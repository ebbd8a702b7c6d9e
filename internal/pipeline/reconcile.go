package pipeline

import (
	"sort"

	"pricenorm/internal"
	"pricenorm/internal/registry"
	"pricenorm/internal/util"
)

type ReconcileStats struct {
	Merged      int
	JoinDropped int
	Duplicates  int
}

// Reconcile merges the sheets of one workbook into one row per service code.
// Single-sheet layouts pass rows through in order. Multi-sheet layouts join
// on the normalized code: a code survives only when every mandatory sheet has
// it, supplementary sheets only fill fields, and conflicting values are
// settled by sheet priority.
func Reconcile(sheets []SheetRows, p *registry.Profile) ([]internal.MergedRow, ReconcileStats) {
	if !joinable(sheets, p) {
		var out []internal.MergedRow
		for _, s := range sheets {
			for _, r := range s.Rows {
				out = append(out, internal.MergedRow{RawRow: r, Sources: []string{s.Sheet}})
			}
		}
		return out, ReconcileStats{Merged: len(out)}
	}

	var stats ReconcileStats
	byPriority := make([]int, len(sheets))
	for i := range sheets {
		byPriority[i] = i
	}
	sort.SliceStable(byPriority, func(a, b int) bool {
		ra, rb := sheets[byPriority[a]].Rule, sheets[byPriority[b]].Rule
		if ra.Priority != rb.Priority {
			return ra.Priority < rb.Priority
		}
		return sheets[byPriority[a]].Position < sheets[byPriority[b]].Position
	})

	indexed := make([]map[string]internal.RawRow, len(sheets))
	var mandatory []int
	for i, s := range sheets {
		indexed[i] = map[string]internal.RawRow{}
		for _, r := range s.Rows {
			code := util.NormalizeCode(r.Code)
			if code == "" {
				stats.JoinDropped++
				continue
			}
			if _, dup := indexed[i][code]; dup {
				stats.Duplicates++
				continue
			}
			indexed[i][code] = r
		}
		if s.Rule.Role == registry.RoleMandatory {
			mandatory = append(mandatory, i)
		}
	}

	emitted := map[string]bool{}
	var out []internal.MergedRow
	lead := -1
	if len(mandatory) > 0 {
		lead = mandatory[0]
		for _, r := range sheets[lead].Rows {
			code := util.NormalizeCode(r.Code)
			if code == "" || emitted[code] {
				continue
			}
			if !inAll(indexed, mandatory, code) {
				stats.JoinDropped++
				continue
			}
			emitted[code] = true
			out = append(out, mergeCode(code, indexed[lead][code], sheets, indexed, byPriority))
		}
	}

	for i := range sheets {
		if i == lead {
			continue
		}
		for code := range indexed[i] {
			if !emitted[code] {
				stats.JoinDropped++
			}
		}
	}

	stats.Merged = len(out)
	return out, stats
}

func joinable(sheets []SheetRows, p *registry.Profile) bool {
	if !p.MultiSheet() || len(sheets) == 0 {
		return false
	}
	for _, s := range sheets {
		if s.Rule == nil {
			return false
		}
	}
	return true
}

func inAll(indexed []map[string]internal.RawRow, sheets []int, code string) bool {
	for _, i := range sheets {
		if _, ok := indexed[i][code]; !ok {
			return false
		}
	}
	return true
}

func mergeCode(code string, lead internal.RawRow, sheets []SheetRows, indexed []map[string]internal.RawRow, byPriority []int) internal.MergedRow {
	merged := internal.MergedRow{RawRow: internal.RawRow{
		Sheet:    lead.Sheet,
		RowIndex: lead.RowIndex,
		Code:     code,
		Unloaded: lead.Unloaded,
	}}
	missing := map[internal.Field]bool{}

	for _, i := range byPriority {
		r, ok := indexed[i][code]
		if !ok {
			continue
		}
		merged.Sources = append(merged.Sources, sheets[i].Sheet)
		fillValue(&merged.Description, r.Description)
		fillValue(&merged.Unit, r.Unit)
		fillValue(&merged.BaseDate, r.BaseDate)
		fillPtr(&merged.Quantity, r.Quantity)
		fillPtr(&merged.UnitPrice, r.UnitPrice)
		fillPtr(&merged.OverheadRate, r.OverheadRate)
		for name, v := range r.Aux {
			if merged.Aux == nil {
				merged.Aux = map[string]string{}
			}
			if _, set := merged.Aux[name]; !set {
				merged.Aux[name] = v
			}
		}
		for _, f := range r.Missing {
			missing[f] = true
		}
	}

	for _, f := range internal.Fields {
		if !missing[f] {
			continue
		}
		switch {
		case f == internal.FieldQuantity && merged.Quantity != nil,
			f == internal.FieldUnitPrice && merged.UnitPrice != nil,
			f == internal.FieldOverheadRate && merged.OverheadRate != nil:
			continue
		}
		merged.Missing = append(merged.Missing, f)
	}

	sort.SliceStable(merged.Sources, func(a, b int) bool {
		return sourcePosition(sheets, merged.Sources[a]) < sourcePosition(sheets, merged.Sources[b])
	})
	return merged
}

func sourcePosition(sheets []SheetRows, name string) int {
	for _, s := range sheets {
		if s.Sheet == name {
			return s.Position
		}
	}
	return len(sheets)
}

func fillValue[T comparable](dst *T, v T) {
	var zero T
	if *dst == zero && v != zero {
		*dst = v
	}
}

func fillPtr[T any](dst **T, v *T) {
	if *dst == nil && v != nil {
		*dst = v
	}
}
