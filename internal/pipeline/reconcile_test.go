package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"

	"pricenorm/internal"
	"pricenorm/internal/registry"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func ruleFor(t *testing.T, p *registry.Profile, sheet string) *registry.SheetRule {
	t.Helper()
	rule, ok := p.SheetRule(sheet)
	if !ok {
		t.Fatalf("no rule for %s", sheet)
	}
	return &rule
}

func TestReconcileJoinKeepsMandatoryCodes(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	sheets := []SheetRows{
		{Sheet: "ORÇAMENTO", Position: 0, Rule: ruleFor(t, p, "ORÇAMENTO"), Rows: []internal.RawRow{
			{Sheet: "ORÇAMENTO", RowIndex: 2, Code: "A", Description: "Item A"},
			{Sheet: "ORÇAMENTO", RowIndex: 3, Code: "B", Description: "Item B"},
		}},
		{Sheet: "CÁLCULO", Position: 1, Rule: ruleFor(t, p, "CÁLCULO"), Rows: []internal.RawRow{
			{Sheet: "CÁLCULO", RowIndex: 2, Code: "A", UnitPrice: dec("10")},
			{Sheet: "CÁLCULO", RowIndex: 3, Code: "C", UnitPrice: dec("20")},
		}},
	}

	out, stats := Reconcile(sheets, p)
	if len(out) != 2 || out[0].Code != "A" || out[1].Code != "B" {
		t.Fatalf("out=%+v", out)
	}
	if out[0].UnitPrice == nil || out[0].UnitPrice.String() != "10" || out[0].Description != "Item A" {
		t.Fatalf("A not merged: %+v", out[0])
	}
	if len(out[0].Sources) != 2 || out[0].Sources[0] != "ORÇAMENTO" {
		t.Fatalf("sources=%v", out[0].Sources)
	}
	if out[1].UnitPrice != nil {
		t.Fatalf("B should have no price: %+v", out[1])
	}
	if stats.JoinDropped != 1 || stats.Merged != 2 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestReconcileConflictsFollowPriority(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	// The supplementary sheet comes first in the workbook but has the lower
	// priority, so its description must not win.
	sheets := []SheetRows{
		{Sheet: "CÁLCULO", Position: 0, Rule: ruleFor(t, p, "CÁLCULO"), Rows: []internal.RawRow{
			{Code: "1001001", Description: "from calculo", UnitPrice: dec("5")},
		}},
		{Sheet: "ORÇAMENTO", Position: 1, Rule: ruleFor(t, p, "ORÇAMENTO"), Rows: []internal.RawRow{
			{Code: " 1001001 ", Description: "from orcamento", UnitPrice: dec("7")},
		}},
	}

	out, _ := Reconcile(sheets, p)
	if len(out) != 1 {
		t.Fatalf("len=%d", len(out))
	}
	if out[0].Description != "from orcamento" || out[0].UnitPrice.String() != "7" {
		t.Fatalf("priority not honored: %+v", out[0])
	}
	if out[0].Sources[0] != "CÁLCULO" {
		t.Fatalf("sources should follow workbook order: %v", out[0].Sources)
	}
}

func TestReconcileDuplicateCodesInOneSheet(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	sheets := []SheetRows{
		{Sheet: "ORÇAMENTO", Rule: ruleFor(t, p, "ORÇAMENTO"), Rows: []internal.RawRow{
			{Code: "A", Description: "first"},
			{Code: "a", Description: "second"},
		}},
	}
	out, stats := Reconcile(sheets, p)
	if len(out) != 1 || out[0].Description != "first" || stats.Duplicates != 1 {
		t.Fatalf("out=%+v stats=%+v", out, stats)
	}
}

func TestReconcilePassesThroughSingleSheet(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySINAPI)

	sheets := []SheetRows{
		{Sheet: "Onerado", Rows: []internal.RawRow{{Code: "2"}, {Code: "1"}}},
		{Sheet: "Desonerado", Rows: []internal.RawRow{{Code: "2"}}},
	}
	out, stats := Reconcile(sheets, p)
	if len(out) != 3 || out[0].Code != "2" || out[1].Code != "1" || out[2].Sources[0] != "Desonerado" {
		t.Fatalf("out=%+v", out)
	}
	if stats.Merged != 3 || stats.JoinDropped != 0 {
		t.Fatalf("stats=%+v", stats)
	}
}

func TestReconcileMissingSurvivesOnlyWhenUnfilled(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	sheets := []SheetRows{
		{Sheet: "ORÇAMENTO", Rule: ruleFor(t, p, "ORÇAMENTO"), Rows: []internal.RawRow{
			{Code: "A", Missing: []internal.Field{internal.FieldUnitPrice, internal.FieldQuantity}},
		}},
		{Sheet: "CÁLCULO", Position: 1, Rule: ruleFor(t, p, "CÁLCULO"), Rows: []internal.RawRow{
			{Code: "A", UnitPrice: dec("3")},
		}},
	}
	out, _ := Reconcile(sheets, p)
	if len(out[0].Missing) != 1 || out[0].Missing[0] != internal.FieldQuantity {
		t.Fatalf("missing=%v", out[0].Missing)
	}
}
