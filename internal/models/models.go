package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimal places every monetary value is rounded to.
const MoneyPlaces int32 = 2

// RoundMoney rounds a monetary value to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MeasureKind identifies the quantity a measurement record is billed by
type MeasureKind string

const (
	// MeasureCubicMeters bills by transported volume
	MeasureCubicMeters MeasureKind = "m3"
	// MeasureTons bills by transported weight
	MeasureTons MeasureKind = "ton"
)

// String returns the string representation of MeasureKind
func (k MeasureKind) String() string {
	return string(k)
}

// IsValid checks if the measure kind is supported
func (k MeasureKind) IsValid() bool {
	return k == MeasureCubicMeters || k == MeasureTons
}

// PriceColumn returns the canonical column holding the unit price for the kind
func (k MeasureKind) PriceColumn() string {
	return string(k) + "xpuxkm"
}

// MeasurementRecord is one priced transport entry of a vehicle.
// Records are immutable once priced.
type MeasurementRecord struct {
	Vehicle    string              `json:"vehicle"`
	Unit       string              `json:"unit"`
	Sequence   string              `json:"sequence,omitempty"`
	Material   string              `json:"material,omitempty"`
	Kind       MeasureKind         `json:"kind"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	Price      decimal.NullDecimal `json:"price"`
	Adjustment decimal.NullDecimal `json:"adjustment"`
	Date       time.Time           `json:"date"`
	StartKm    decimal.NullDecimal `json:"start_km"`
	Period     string              `json:"period,omitempty"`
	Valuation  decimal.Decimal     `json:"valuation"`

	// Extra keeps every source column by normalized name for rendering.
	Extra map[string]string `json:"-"`
}

// HasMaterial reports whether the record carries a classified material
func (m *MeasurementRecord) HasMaterial() bool {
	return strings.TrimSpace(m.Material) != ""
}

// WithPrice returns a copy of the record carrying price and the valuation derived from it
func (m *MeasurementRecord) WithPrice(price decimal.NullDecimal) *MeasurementRecord {
	priced := *m
	priced.Price = price
	priced.Valuation = ComputeValuation(priced.Quantity, priced.Price, priced.Adjustment)
	return &priced
}

// String returns a string representation of the MeasurementRecord
func (m *MeasurementRecord) String() string {
	return fmt.Sprintf("Measurement{Vehicle: %s, Unit: %s, Material: %s, Date: %s, Valuation: %s}",
		m.Vehicle, m.Unit, m.Material, m.Date.Format("2006-01-02"), m.Valuation.StringFixed(MoneyPlaces))
}

// ComputeValuation returns quantity × price × adjustment rounded to money places,
// or zero when any factor is missing.
func ComputeValuation(quantity, price, adjustment decimal.NullDecimal) decimal.Decimal {
	if !quantity.Valid || !price.Valid || !adjustment.Valid {
		return decimal.Zero
	}
	return RoundMoney(quantity.Decimal.Mul(price.Decimal).Mul(adjustment.Decimal))
}

// FuelRecord is one priced fueling entry of a vehicle.
// Records are immutable once priced.
type FuelRecord struct {
	Vehicle    string              `json:"vehicle"`
	Descriptor string              `json:"descriptor,omitempty"`
	FuelType   string              `json:"fuel_type,omitempty"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	Price      decimal.NullDecimal `json:"price"`
	Date       time.Time           `json:"date"`
	Total      decimal.Decimal     `json:"total"`

	Extra map[string]string `json:"-"`
}

// WithPrice returns a copy of the record carrying price and the total derived from it
func (f *FuelRecord) WithPrice(price decimal.NullDecimal) *FuelRecord {
	priced := *f
	priced.Price = price
	priced.Total = ComputeFuelTotal(priced.Quantity, priced.Price)
	return &priced
}

// String returns a string representation of the FuelRecord
func (f *FuelRecord) String() string {
	return fmt.Sprintf("Fuel{Vehicle: %s, Type: %s, Date: %s, Total: %s}",
		f.Vehicle, f.FuelType, f.Date.Format("2006-01-02"), f.Total.StringFixed(MoneyPlaces))
}

// ComputeFuelTotal returns quantity × price rounded to money places, or zero when
// either factor is missing.
func ComputeFuelTotal(quantity, price decimal.NullDecimal) decimal.Decimal {
	if !quantity.Valid || !price.Valid {
		return decimal.Zero
	}
	return RoundMoney(quantity.Decimal.Mul(price.Decimal))
}

// Unit is the settlement of one organizational unit ("CA") for a period.
// Units are built once by valuation and only read afterwards.
type Unit struct {
	ID           string               `json:"id"`
	Sequence     string               `json:"sequence,omitempty"`
	Measurements []*MeasurementRecord `json:"-"`
	Fuel         []*FuelRecord        `json:"-"`

	Gross      decimal.Decimal `json:"gross"`
	FuelTotal  decimal.Decimal `json:"fuel_total"`
	Discounted decimal.Decimal `json:"discounted"`
	Tax        decimal.Decimal `json:"tax"`
	Net        decimal.Decimal `json:"net"`
}

// FuelOnly reports whether the unit exists only through fuel assignments
func (u *Unit) FuelOnly() bool {
	return len(u.Measurements) == 0
}

// Periods returns the distinct billing period tags of the unit's measurements in order of appearance
func (u *Unit) Periods() []string {
	seen := make(map[string]bool)
	var periods []string
	for _, m := range u.Measurements {
		if m.Period == "" || seen[m.Period] {
			continue
		}
		seen[m.Period] = true
		periods = append(periods, m.Period)
	}
	return periods
}

// String returns a string representation of the Unit
func (u *Unit) String() string {
	return fmt.Sprintf("Unit{ID: %s, Gross: %s, Fuel: %s, Tax: %s, Net: %s}",
		u.ID, u.Gross.StringFixed(MoneyPlaces), u.FuelTotal.StringFixed(MoneyPlaces),
		u.Tax.StringFixed(MoneyPlaces), u.Net.StringFixed(MoneyPlaces))
}

// UnresolvedVehicle is a vehicle with fuel expenditure and no determinable unit
type UnresolvedVehicle struct {
	Vehicle string          `json:"vehicle"`
	Total   decimal.Decimal `json:"total"`
	Records int             `json:"records"`
}

// UnitNet is one line of the per-unit net payable listing
type UnitNet struct {
	Unit string          `json:"unit"`
	Net  decimal.Decimal `json:"net"`
}

// PeriodSummary aggregates every unit of a period
type PeriodSummary struct {
	Gross      decimal.Decimal     `json:"gross"`
	FuelTotal  decimal.Decimal     `json:"fuel_total"`
	Net        decimal.Decimal     `json:"net"`
	UnitNets   []UnitNet           `json:"unit_nets"`
	Unresolved []UnresolvedVehicle `json:"unresolved,omitempty"`
}

// UnresolvedTotal returns the fuel cost that no unit absorbed
func (s *PeriodSummary) UnresolvedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, u := range s.Unresolved {
		total = total.Add(u.Total)
	}
	return RoundMoney(total)
}

// FortnightLabel renders a period tag "YYYY-MM:N" as "Nª quinzena de YYYY-MM".
// Tags that do not follow the format are returned unchanged.
func FortnightLabel(tag string) string {
	month, half, ok := strings.Cut(tag, ":")
	if !ok || month == "" || half == "" {
		return tag
	}
	return fmt.Sprintf("%sª quinzena de %s", half, month)
}
