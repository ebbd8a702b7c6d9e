package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

//go:embed default_profiles.yaml
var defaultProfiles []byte

type document struct {
	Profiles []profileDoc `yaml:"profiles"`
}

type sheetDoc struct {
	Pattern  string `yaml:"pattern"`
	Role     string `yaml:"role"`
	Priority int    `yaml:"priority"`
}

type profileDoc struct {
	ID                   string              `yaml:"id"`
	Name                 string              `yaml:"name"`
	Keywords             []string            `yaml:"keywords"`
	SheetNamePatterns    []string            `yaml:"sheet_name_patterns"`
	Sheets               []sheetDoc          `yaml:"sheets"`
	ColumnAliases        map[string][]string `yaml:"column_aliases"`
	AuxColumns           map[string][]string `yaml:"aux_columns"`
	CodePattern          string              `yaml:"code_pattern"`
	TaxLoaded            bool                `yaml:"tax_loaded"`
	UnloadedSheetMarkers []string            `yaml:"unloaded_sheet_markers"`
	OverheadEnabled      bool                `yaml:"overhead_enabled"`
	OverheadRate         string              `yaml:"overhead_rate"`
}

// Registry is the read-only table of authority profiles. It is built once
// and handed to every pipeline stage that needs it.
type Registry struct {
	profiles []*Profile
	byID     map[internal.Authority]*Profile
	fallback *Profile
	index    *Index
}

func Default() (*Registry, error) {
	return Parse(defaultProfiles)
}

func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}

	var problems []string
	profiles := make([]*Profile, 0, len(doc.Profiles)+1)
	for i, pd := range doc.Profiles {
		p, errs := buildProfile(pd)
		for _, e := range errs {
			problems = append(problems, fmt.Sprintf("profile %d (%s): %s", i+1, pd.ID, e))
		}
		if p != nil {
			profiles = append(profiles, p)
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid profiles:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return New(profiles)
}

// New assembles a registry from already built profiles, keeping their order.
// A catch-all profile is synthesized when none is supplied.
func New(profiles []*Profile) (*Registry, error) {
	r := &Registry{byID: map[internal.Authority]*Profile{}}
	for _, p := range profiles {
		if _, dup := r.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id: %s", p.ID)
		}
		if p.IsFallback() {
			r.fallback = p
		}
		p.order = len(r.profiles)
		r.byID[p.ID] = p
		r.profiles = append(r.profiles, p)
	}
	if r.fallback == nil {
		p := catchAll()
		p.order = len(r.profiles)
		r.fallback = p
		r.byID[p.ID] = p
		r.profiles = append(r.profiles, p)
	}
	if len(r.Scorable()) == 0 {
		return nil, errors.New("registry needs at least one authority profile besides the catch-all")
	}
	r.index = BuildIndex(r.profiles)
	return r, nil
}

func (r *Registry) Lookup(id internal.Authority) (*Profile, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns every profile in registration order, catch-all included.
func (r *Registry) All() []*Profile {
	return append([]*Profile(nil), r.profiles...)
}

// Scorable returns the profiles that compete during layout matching.
func (r *Registry) Scorable() []*Profile {
	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		if !p.IsFallback() {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Fallback() *Profile {
	return r.fallback
}

func (r *Registry) Index() *Index {
	return r.index
}

func buildProfile(pd profileDoc) (*Profile, []string) {
	var errs []string
	id := internal.Authority(strings.ToLower(strings.TrimSpace(pd.ID)))
	if id == "" {
		errs = append(errs, "id is required")
	} else if !id.Known() {
		errs = append(errs, fmt.Sprintf("unknown authority id %q", pd.ID))
	}

	p := &Profile{
		ID:              id,
		Name:            strings.TrimSpace(pd.Name),
		Aliases:         map[internal.Field][]string{},
		TaxLoaded:       pd.TaxLoaded,
		OverheadEnabled: pd.OverheadEnabled,
	}
	if p.Name == "" {
		p.Name = strings.ToUpper(string(id))
	}

	for _, kw := range pd.Keywords {
		if n := util.NormalizeHeader(kw); n != "" {
			p.Keywords = append(p.Keywords, n)
		}
	}
	for _, m := range pd.UnloadedSheetMarkers {
		if n := util.NormalizeHeader(m); n != "" {
			p.UnloadedMarkers = append(p.UnloadedMarkers, n)
		}
	}

	for _, pattern := range pd.SheetNamePatterns {
		re, err := compileFolded(pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("sheet_name_patterns %q: %v", pattern, err))
			continue
		}
		p.SheetPatterns = append(p.SheetPatterns, re)
	}

	mandatory := 0
	for i, sd := range pd.Sheets {
		re, err := compileFolded(sd.Pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("sheets[%d] pattern %q: %v", i, sd.Pattern, err))
			continue
		}
		role := SheetRole(strings.ToLower(strings.TrimSpace(sd.Role)))
		switch role {
		case "":
			role = RoleSupplementary
		case RoleMandatory:
			mandatory++
		case RoleSupplementary:
		default:
			errs = append(errs, fmt.Sprintf("sheets[%d] role %q must be mandatory or supplementary", i, sd.Role))
		}
		priority := sd.Priority
		if priority == 0 {
			priority = i + 1
		}
		p.Sheets = append(p.Sheets, SheetRule{Pattern: re, Role: role, Priority: priority})
	}
	if len(p.Sheets) > 0 && mandatory == 0 {
		p.Sheets[0].Role = RoleMandatory
	}

	for name, aliases := range pd.ColumnAliases {
		field := internal.Field(strings.ToLower(strings.TrimSpace(name)))
		if !field.Known() {
			errs = append(errs, fmt.Sprintf("unknown canonical field %q", name))
			continue
		}
		p.Aliases[field] = normalizeAliases(aliases)
	}
	if len(p.Aliases[internal.FieldCode]) == 0 && len(p.Aliases[internal.FieldDescription]) == 0 {
		errs = append(errs, "column_aliases must declare code or description")
	}

	auxNames := make([]string, 0, len(pd.AuxColumns))
	for name := range pd.AuxColumns {
		auxNames = append(auxNames, name)
	}
	sort.Strings(auxNames)
	for _, name := range auxNames {
		p.AuxColumns = append(p.AuxColumns, AuxColumn{Name: name, Aliases: normalizeAliases(pd.AuxColumns[name])})
	}

	if pd.CodePattern != "" {
		re, err := regexp.Compile(pd.CodePattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("code_pattern %q: %v", pd.CodePattern, err))
		}
		p.CodePattern = re
	}

	if strings.TrimSpace(pd.OverheadRate) != "" {
		rate, err := decimal.NewFromString(strings.TrimSpace(pd.OverheadRate))
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("overhead_rate %q is not a number", pd.OverheadRate))
		case rate.IsNegative():
			errs = append(errs, fmt.Sprintf("overhead_rate %s must not be negative", rate))
		default:
			p.OverheadRate = rate
		}
	} else if pd.OverheadEnabled {
		errs = append(errs, "overhead_enabled requires overhead_rate")
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

func compileFolded(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + util.FoldAccents(pattern))
}

func normalizeAliases(aliases []string) []string {
	out := make([]string, 0, len(aliases))
	seen := map[string]struct{}{}
	for _, a := range aliases {
		n := util.NormalizeHeader(a)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func catchAll() *Profile {
	return &Profile{
		ID:   internal.AuthorityCustom,
		Name: "Custom",
		Aliases: map[internal.Field][]string{
			internal.FieldCode:        normalizeAliases([]string{"codigo", "cod", "item", "code"}),
			internal.FieldDescription: normalizeAliases([]string{"descricao", "descricao do servico", "servico", "description"}),
			internal.FieldUnit:        normalizeAliases([]string{"unidade", "und", "un", "unit"}),
			internal.FieldQuantity:    normalizeAliases([]string{"quantidade", "qtd", "quant"}),
			internal.FieldUnitPrice:   normalizeAliases([]string{"preco unitario", "preco", "valor unitario", "valor", "custo unitario", "custo"}),
			internal.FieldBaseDate:    normalizeAliases([]string{"data base", "data", "mes referencia"}),
		},
	}
}
