package registry

import (
	"strings"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

const fuzzyThreshold = 0.9

// Header is the resolved layout of one sheet: which row carries the column
// titles and which column index feeds each canonical or auxiliary field.
type Header struct {
	Row     int
	Columns map[internal.Field]int
	Aux     map[string]int
	Tokens  []string
}

func (h Header) Found() bool {
	return h.Row >= 0
}

func (h Header) Matches() int {
	return len(h.Columns) + len(h.Aux)
}

type target struct {
	field   internal.Field
	aux     string
	aliases []string
}

func (p *Profile) targets() []target {
	out := make([]target, 0, len(internal.Fields)+len(p.AuxColumns))
	for _, field := range internal.Fields {
		if aliases := p.Aliases[field]; len(aliases) > 0 {
			out = append(out, target{field: field, aliases: aliases})
		}
	}
	for _, aux := range p.AuxColumns {
		out = append(out, target{aux: aux.Name, aliases: aux.Aliases})
	}
	return out
}

// ResolveHeader scans the first scanRows rows and returns the row with the
// most alias matches. The earliest row wins ties; a row needs at least one
// match to count as a header.
func (p *Profile) ResolveHeader(rows [][]string, scanRows int) Header {
	best := Header{Row: -1}
	limit := min(scanRows, len(rows))
	for i := 0; i < limit; i++ {
		h := p.resolveRow(rows[i])
		if h.Matches() > best.Matches() {
			h.Row = i
			best = h
		}
	}
	return best
}

func (p *Profile) resolveRow(cells []string) Header {
	h := Header{Row: -1, Columns: map[internal.Field]int{}, Aux: map[string]int{}}
	norm := make([]string, len(cells))
	for i, c := range cells {
		norm[i] = util.NormalizeHeader(c)
		h.Tokens = append(h.Tokens, util.Tokenize(c)...)
	}

	taken := map[int]bool{}
	targets := p.targets()
	assigned := make([]bool, len(targets))

	passes := []func(cell, alias string) bool{
		func(cell, alias string) bool { return cell == alias },
		func(cell, alias string) bool { return strings.HasPrefix(cell, alias+" ") },
		func(cell, alias string) bool { return util.DiceCoefficient(cell, alias) >= fuzzyThreshold },
	}

	for _, match := range passes {
		for ti, t := range targets {
			if assigned[ti] {
				continue
			}
			col := findColumn(norm, taken, t.aliases, match)
			if col < 0 {
				continue
			}
			taken[col] = true
			assigned[ti] = true
			if t.aux != "" {
				h.Aux[t.aux] = col
			} else {
				h.Columns[t.field] = col
			}
		}
	}
	return h
}

func findColumn(cells []string, taken map[int]bool, aliases []string, match func(cell, alias string) bool) int {
	for _, alias := range aliases {
		for i, cell := range cells {
			if cell == "" || taken[i] {
				continue
			}
			if match(cell, alias) {
				return i
			}
		}
	}
	return -1
}
