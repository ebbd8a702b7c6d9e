package registry

import (
	"slices"
	"strings"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

type AliasRef struct {
	Authority internal.Authority
	Field     internal.Field
	Aux       string
}

// Index is the reverse view of every profile's alias table: which profiles
// claim a normalized header and which profiles use a header token.
type Index struct {
	ByAlias            map[string][]AliasRef
	TokenToAuthorities map[string]map[internal.Authority]struct{}
}

func BuildIndex(profiles []*Profile) *Index {
	idx := &Index{
		ByAlias:            map[string][]AliasRef{},
		TokenToAuthorities: map[string]map[internal.Authority]struct{}{},
	}

	for _, p := range profiles {
		for _, t := range p.targets() {
			for _, alias := range t.aliases {
				idx.ByAlias[alias] = append(idx.ByAlias[alias], AliasRef{Authority: p.ID, Field: t.field, Aux: t.aux})
				idx.addTokens(p.ID, alias)
			}
		}
		for _, kw := range p.Keywords {
			idx.addTokens(p.ID, kw)
		}
	}

	return idx
}

func (idx *Index) addTokens(id internal.Authority, text string) {
	for _, token := range util.Tokenize(text) {
		if _, ok := idx.TokenToAuthorities[token]; !ok {
			idx.TokenToAuthorities[token] = map[internal.Authority]struct{}{}
		}
		idx.TokenToAuthorities[token][id] = struct{}{}
	}
}

// Owns reports whether a header token belongs to a profile's vocabulary.
func (idx *Index) Owns(id internal.Authority, token string) bool {
	_, ok := idx.TokenToAuthorities[token][id]
	return ok
}

// Owners lists the profiles that declare a header, in a stable order.
func (idx *Index) Owners(header string) []AliasRef {
	refs := slices.Clone(idx.ByAlias[util.NormalizeHeader(header)])
	slices.SortStableFunc(refs, func(a, b AliasRef) int {
		return strings.Compare(string(a.Authority), string(b.Authority))
	})
	return refs
}
