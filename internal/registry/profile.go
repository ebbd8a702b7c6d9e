package registry

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

type SheetRole string

const (
	RoleMandatory     SheetRole = "mandatory"
	RoleSupplementary SheetRole = "supplementary"
)

// SheetRule declares one sheet of a multi-sheet layout. Lower priority
// numbers win when two sheets disagree on a field.
type SheetRule struct {
	Pattern  *regexp.Regexp
	Role     SheetRole
	Priority int
}

func (r SheetRule) Matches(sheetName string) bool {
	return r.Pattern.MatchString(util.FoldAccents(sheetName))
}

type AuxColumn struct {
	Name    string
	Aliases []string
}

// Profile describes how one authority lays out its workbooks. Profiles are
// built once by the registry and never mutated afterwards.
type Profile struct {
	ID              internal.Authority
	Name            string
	Keywords        []string
	SheetPatterns   []*regexp.Regexp
	Sheets          []SheetRule
	Aliases         map[internal.Field][]string
	AuxColumns      []AuxColumn
	CodePattern     *regexp.Regexp
	TaxLoaded       bool
	UnloadedMarkers []string
	OverheadEnabled bool
	OverheadRate    decimal.Decimal

	order int
}

func (p *Profile) MultiSheet() bool {
	return len(p.Sheets) > 1
}

func (p *Profile) IsFallback() bool {
	return p.ID == internal.AuthorityCustom
}

// Order is the registration position, used as the last tie-break when two
// profiles score the same.
func (p *Profile) Order() int {
	return p.order
}

// SheetRule returns the rule a sheet name falls under, if any.
func (p *Profile) SheetRule(sheetName string) (SheetRule, bool) {
	for _, rule := range p.Sheets {
		if rule.Matches(sheetName) {
			return rule, true
		}
	}
	return SheetRule{}, false
}

// MatchesSheetName reports whether any declared sheet pattern matches.
func (p *Profile) MatchesSheetName(sheetName string) bool {
	folded := util.FoldAccents(sheetName)
	for _, re := range p.SheetPatterns {
		if re.MatchString(folded) {
			return true
		}
	}
	_, ok := p.SheetRule(sheetName)
	return ok
}

// Unloaded reports whether a sheet holds prices without payroll charges.
func (p *Profile) Unloaded(sheetName string) bool {
	folded := util.NormalizeHeader(sheetName)
	for _, marker := range p.UnloadedMarkers {
		if strings.Contains(folded, marker) && !strings.Contains(folded, "NAO "+marker) {
			return true
		}
	}
	return false
}

func (p *Profile) declaredTargets() int {
	n := len(p.AuxColumns)
	for _, field := range internal.Fields {
		if len(p.Aliases[field]) > 0 {
			n++
		}
	}
	return n
}

func (p *Profile) sheetPatternCount() int {
	return len(p.SheetPatterns) + len(p.Sheets)
}
