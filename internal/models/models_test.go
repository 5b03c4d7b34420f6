package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestMeasureKind_IsValid(t *testing.T) {
	tests := []struct {
		kind  MeasureKind
		valid bool
	}{
		{MeasureCubicMeters, true},
		{MeasureTons, true},
		{"kg", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.IsValid(); got != tt.valid {
				t.Errorf("MeasureKind.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}

	if got := MeasureTons.PriceColumn(); got != "tonxpuxkm" {
		t.Errorf("PriceColumn() = %s, want tonxpuxkm", got)
	}
}

func TestComputeValuation(t *testing.T) {
	missing := decimal.NullDecimal{}

	tests := []struct {
		name       string
		quantity   decimal.NullDecimal
		price      decimal.NullDecimal
		adjustment decimal.NullDecimal
		expected   string
	}{
		{"all factors", nd("12.5"), nd("3.10"), nd("1"), "38.75"},
		{"rounds half away from zero", nd("1"), nd("0.125"), nd("1"), "0.13"},
		{"adjustment applied", nd("10"), nd("2"), nd("0.5"), "10"},
		{"missing quantity", missing, nd("3"), nd("1"), "0"},
		{"missing price", nd("10"), missing, nd("1"), "0"},
		{"missing adjustment", nd("10"), nd("3"), missing, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeValuation(tt.quantity, tt.price, tt.adjustment)
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("ComputeValuation() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestComputeFuelTotal(t *testing.T) {
	if got := ComputeFuelTotal(nd("40"), nd("3.599")); !got.Equal(decimal.RequireFromString("143.96")) {
		t.Errorf("ComputeFuelTotal() = %s, want 143.96", got)
	}
	if got := ComputeFuelTotal(decimal.NullDecimal{}, nd("3")); !got.IsZero() {
		t.Errorf("ComputeFuelTotal() with missing quantity = %s, want 0", got)
	}
}

func TestMeasurementRecord_WithPrice(t *testing.T) {
	original := &MeasurementRecord{
		Vehicle:    "ABC1234",
		Unit:       "CA-1",
		Material:   "BRITA 1",
		Quantity:   nd("10"),
		Adjustment: nd("1"),
		Date:       time.Date(2017, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	priced := original.WithPrice(nd("4.5"))

	if original.Price.Valid {
		t.Error("expected original record to stay unpriced")
	}
	if !priced.Valuation.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected valuation 45, got %s", priced.Valuation)
	}
	if !priced.HasMaterial() {
		t.Error("expected priced record to keep its material")
	}
}

func TestUnit_Periods(t *testing.T) {
	unit := &Unit{
		ID: "CA-1",
		Measurements: []*MeasurementRecord{
			{Period: "2017-03:2"},
			{Period: "2017-03:1"},
			{Period: "2017-03:2"},
			{Period: ""},
		},
	}

	got := unit.Periods()
	if len(got) != 2 || got[0] != "2017-03:2" || got[1] != "2017-03:1" {
		t.Errorf("Periods() = %v, want [2017-03:2 2017-03:1]", got)
	}
	if unit.FuelOnly() {
		t.Error("expected unit with measurements not to be fuel-only")
	}
}

func TestFortnightLabel(t *testing.T) {
	tests := []struct {
		tag      string
		expected string
	}{
		{"2017-03:1", "1ª quinzena de 2017-03"},
		{"2017-12:2", "2ª quinzena de 2017-12"},
		{"march", "march"},
		{"2017-03:", "2017-03:"},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := FortnightLabel(tt.tag); got != tt.expected {
				t.Errorf("FortnightLabel(%q) = %q, want %q", tt.tag, got, tt.expected)
			}
		})
	}
}

func TestPeriodSummary_UnresolvedTotal(t *testing.T) {
	summary := &PeriodSummary{
		Unresolved: []UnresolvedVehicle{
			{Vehicle: "V5", Total: decimal.RequireFromString("10.10")},
			{Vehicle: "V6", Total: decimal.RequireFromString("5.05")},
		},
	}

	if got := summary.UnresolvedTotal(); !got.Equal(decimal.RequireFromString("15.15")) {
		t.Errorf("UnresolvedTotal() = %s, want 15.15", got)
	}
}
