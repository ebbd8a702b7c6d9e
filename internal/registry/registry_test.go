package registry

import (
	"strings"
	"testing"

	"pricenorm/internal"
)

func TestDefaultRegistry(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}

	want := []internal.Authority{
		internal.AuthoritySINAPI,
		internal.AuthoritySICRO,
		internal.AuthorityCPOS,
		internal.AuthorityEMOP,
		internal.AuthoritySICONV,
		internal.AuthorityCustom,
	}
	all := reg.All()
	if len(all) != len(want) {
		t.Fatalf("len=%d", len(all))
	}
	for i, p := range all {
		if p.ID != want[i] || p.Order() != i {
			t.Fatalf("profile %d: got %s order %d", i, p.ID, p.Order())
		}
	}
	if reg.Fallback().ID != internal.AuthorityCustom {
		t.Fatalf("fallback=%s", reg.Fallback().ID)
	}
	if len(reg.Scorable()) != 5 {
		t.Fatalf("scorable=%d", len(reg.Scorable()))
	}

	siconv, ok := reg.Lookup(internal.AuthoritySICONV)
	if !ok || !siconv.MultiSheet() || !siconv.OverheadEnabled {
		t.Fatalf("siconv profile not loaded as multi-sheet with overhead: %+v", siconv)
	}
	if siconv.OverheadRate.String() != "0.25" {
		t.Fatalf("rate=%s", siconv.OverheadRate)
	}
	rule, ok := siconv.SheetRule("ORÇAMENTO")
	if !ok || rule.Role != RoleMandatory || rule.Priority != 1 {
		t.Fatalf("orcamento rule: %+v ok=%v", rule, ok)
	}
	rule, ok = siconv.SheetRule("Cálculo")
	if !ok || rule.Role != RoleSupplementary {
		t.Fatalf("calculo rule: %+v ok=%v", rule, ok)
	}
}

func TestParseSynthesizesCatchAll(t *testing.T) {
	reg, err := Parse([]byte(`
profiles:
  - id: sinapi
    column_aliases:
      code: [codigo]
      description: [descricao]
`))
	if err != nil {
		t.Fatal(err)
	}
	if reg.Fallback() == nil || reg.Fallback().ID != internal.AuthorityCustom {
		t.Fatal("catch-all not synthesized")
	}
	if len(reg.All()) != 2 {
		t.Fatalf("len=%d", len(reg.All()))
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown authority",
			doc:  "profiles:\n  - id: seinfra\n    column_aliases:\n      code: [codigo]\n",
			want: "unknown authority",
		},
		{
			name: "unknown field",
			doc:  "profiles:\n  - id: sinapi\n    column_aliases:\n      code: [codigo]\n      price: [preco]\n",
			want: "unknown canonical field",
		},
		{
			name: "bad code pattern",
			doc:  "profiles:\n  - id: sinapi\n    code_pattern: '['\n    column_aliases:\n      code: [codigo]\n",
			want: "code_pattern",
		},
		{
			name: "negative rate",
			doc:  "profiles:\n  - id: sinapi\n    overhead_enabled: true\n    overhead_rate: '-0.1'\n    column_aliases:\n      code: [codigo]\n",
			want: "must not be negative",
		},
		{
			name: "duplicate id",
			doc:  "profiles:\n  - id: sinapi\n    column_aliases:\n      code: [codigo]\n  - id: sinapi\n    column_aliases:\n      code: [cod]\n",
			want: "duplicate profile id",
		},
		{
			name: "unknown key",
			doc:  "profiles:\n  - id: sinapi\n    colour: blue\n    column_aliases:\n      code: [codigo]\n",
			want: "colour",
		},
		{
			name: "only catch-all",
			doc:  "profiles:\n  - id: custom\n    column_aliases:\n      code: [codigo]\n",
			want: "at least one authority profile",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestUnloadedMarkers(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Lookup(internal.AuthoritySINAPI)
	if !p.Unloaded("SINAPI Desonerado") {
		t.Fatal("desonerado sheet should be unloaded")
	}
	if p.Unloaded("SINAPI Não Desonerado") {
		t.Fatal("nao desonerado sheet should be loaded")
	}
}

func TestIndexOwners(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	owners := reg.Index().Owners("BDI")
	if len(owners) != 1 || owners[0].Authority != internal.AuthoritySICONV || owners[0].Field != internal.FieldOverheadRate {
		t.Fatalf("owners=%+v", owners)
	}
	if !reg.Index().Owns(internal.AuthoritySICRO, "FRENTE") {
		t.Fatal("sicro should own FRENTE")
	}
}
