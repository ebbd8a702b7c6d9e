package pipeline

import (
	"testing"
	"time"

	"pricenorm/internal"
	"pricenorm/internal/util"
)

func TestDeriveAppliesProfileRate(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	d, ok := Derive(internal.MergedRow{RawRow: internal.RawRow{UnitPrice: dec("100.00")}}, p)
	if !ok {
		t.Fatal("expected derivation")
	}
	if got := roundMoney(d.Value).StringFixed(2); got != "125.00" {
		t.Fatalf("got %s", got)
	}
}

func TestDeriveRowRateOverridesProfile(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	rate, _ := util.ParseRate("22,5")
	row := internal.MergedRow{RawRow: internal.RawRow{UnitPrice: dec("80"), OverheadRate: &rate}}
	d, ok := Derive(row, p)
	if !ok || !d.Rate.Equal(*dec("0.225")) || !d.Value.Equal(*dec("98")) {
		t.Fatalf("d=%+v ok=%v", d, ok)
	}
}

func TestDeriveSkipsMissingOrNonPositiveBase(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	for _, row := range []internal.MergedRow{
		{},
		{RawRow: internal.RawRow{UnitPrice: dec("0")}},
		{RawRow: internal.RawRow{UnitPrice: dec("-3")}},
	} {
		if _, ok := Derive(row, p); ok {
			t.Fatalf("derived from %+v", row.UnitPrice)
		}
	}

	sinapi := mustProfile(t, reg, internal.AuthoritySINAPI)
	if _, ok := Derive(internal.MergedRow{RawRow: internal.RawRow{UnitPrice: dec("10")}}, sinapi); ok {
		t.Fatal("profile without overhead should not derive")
	}
}

func TestBuildRecordRoundsHalfEven(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySINAPI)

	cases := []struct {
		raw  string
		want string
	}{
		{raw: "10,125", want: "10.12"},
		{raw: "10.125", want: "10.12"},
		{raw: "10,135", want: "10.14"},
		{raw: "1.234,565", want: "1234.56"},
		{raw: "1,234.575", want: "1234.58"},
		{raw: "7", want: "7.00"},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			price, ok := util.ParseDecimal(tc.raw)
			if !ok {
				t.Fatalf("parse %q", tc.raw)
			}
			row := internal.MergedRow{RawRow: internal.RawRow{Code: "87878", UnitPrice: &price}}
			rec, _ := buildRecord(row, p, "f.xlsx", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
			if rec.UnitValue == nil || rec.UnitValue.StringFixed(2) != tc.want {
				t.Fatalf("got %v want %s", rec.UnitValue, tc.want)
			}
		})
	}
}

func TestBuildRecordOverheadRoundedOnce(t *testing.T) {
	reg := mustRegistry(t)
	p := mustProfile(t, reg, internal.AuthoritySICONV)

	// 10.005 * 1.25 = 12.50625: rounding the base first would give 12.50.
	row := internal.MergedRow{RawRow: internal.RawRow{Code: "X1", UnitPrice: dec("10.005")}}
	rec, skipped := buildRecord(row, p, "f.xlsx", time.Time{})
	if skipped || rec.OverheadValue == nil || rec.OverheadValue.StringFixed(2) != "12.51" {
		t.Fatalf("overhead=%v skipped=%v", rec.OverheadValue, skipped)
	}
	if rec.UnitValue.StringFixed(2) != "10.00" {
		t.Fatalf("unit=%v", rec.UnitValue)
	}

	_, skipped = buildRecord(internal.MergedRow{RawRow: internal.RawRow{Code: "X2"}}, p, "f.xlsx", time.Time{})
	if !skipped {
		t.Fatal("missing base should count as a skipped derivation")
	}
}
