package registry

import (
	"testing"

	"pricenorm/internal"
)

func TestResolveHeaderPasses(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Lookup(internal.AuthoritySICONV)

	rows := [][]string{
		{"PLATAFORMA MAIS BRASIL"},
		{"Relatório de orçamento"},
		{"Item", "Descrição do serviço detalhado", "Und.", "Quantidade", "Preço Unitário (R$)", "BDI (%)"},
		{"1.1", "Escavação", "m3", "10", "12,50", "25"},
	}
	h := p.ResolveHeader(rows, 20)
	if h.Row != 2 {
		t.Fatalf("header row=%d", h.Row)
	}
	want := map[internal.Field]int{
		internal.FieldCode:         0,
		internal.FieldDescription:  1,
		internal.FieldUnit:         2,
		internal.FieldQuantity:     3,
		internal.FieldUnitPrice:    4,
		internal.FieldOverheadRate: 5,
	}
	for field, col := range want {
		if got, ok := h.Columns[field]; !ok || got != col {
			t.Fatalf("%s: got %d ok=%v want %d", field, got, ok, col)
		}
	}
}

func TestResolveHeaderEarliestRowWinsTies(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Lookup(internal.AuthoritySINAPI)
	rows := [][]string{
		{"Codigo", "Descricao"},
		{"Codigo", "Descricao"},
	}
	if h := p.ResolveHeader(rows, 20); h.Row != 0 {
		t.Fatalf("row=%d", h.Row)
	}
}

func TestResolveHeaderFuzzyAlias(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Lookup(internal.AuthoritySICRO)
	h := p.ResolveHeader([][]string{{"CODIGO", "DESCRIÇAOO", "UNIDADE", "CUSTO UNITARIO"}}, 20)
	if col, ok := h.Columns[internal.FieldDescription]; !ok || col != 1 {
		t.Fatalf("fuzzy alias not resolved: %+v", h.Columns)
	}
}

func TestResolveHeaderRespectsScanLimit(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	p, _ := reg.Lookup(internal.AuthoritySINAPI)
	rows := [][]string{{"x"}, {"y"}, {"CODIGO", "DESCRICAO"}}
	if h := p.ResolveHeader(rows, 2); h.Found() {
		t.Fatalf("header found beyond scan limit at row %d", h.Row)
	}
}
