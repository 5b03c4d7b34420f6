package reporter

import (
	"sort"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/parsers"

	"github.com/shopspring/decimal"
)

const displayDateLayout = "02/01/2006"

// measurementValue returns the cell of a measurement record for a column
// header. Known fields come from the typed record; anything else from the
// source row. Numbers are returned as decimal.Decimal, everything else as string.
func measurementValue(rec *models.MeasurementRecord, header string) interface{} {
	key := parsers.NormalizeHeader(header)

	switch key {
	case parsers.ColumnDate:
		if rec.Date.IsZero() {
			return ""
		}
		return rec.Date.Format(displayDateLayout)
	case parsers.ColumnVehicle:
		return rec.Vehicle
	case parsers.ColumnUnit:
		return rec.Unit
	case parsers.ColumnSequence:
		return rec.Sequence
	case parsers.ColumnMaterial:
		return rec.Material
	case parsers.ColumnPeriod:
		return rec.Period
	case parsers.ColumnAdjustment:
		return nullable(rec.Adjustment)
	case parsers.ColumnStartKm:
		return nullable(rec.StartKm)
	case parsers.ColumnValuation:
		return rec.Valuation
	case string(rec.Kind):
		return nullable(rec.Quantity)
	case rec.Kind.PriceColumn():
		return nullable(rec.Price)
	}
	return rec.Extra[key]
}

// fuelValue returns the cell of a fuel record for a column header
func fuelValue(rec *models.FuelRecord, header string) interface{} {
	key := parsers.NormalizeHeader(header)

	switch key {
	case parsers.ColumnDate:
		if rec.Date.IsZero() {
			return ""
		}
		return rec.Date.Format(displayDateLayout)
	case parsers.ColumnVehicle:
		return rec.Vehicle
	case parsers.ColumnDescriptor:
		return rec.Descriptor
	case parsers.ColumnFuelType:
		return rec.FuelType
	case parsers.ColumnFuelQty:
		return nullable(rec.Quantity)
	case parsers.ColumnFuelPrice:
		return nullable(rec.Price)
	case parsers.ColumnFuelTotal:
		return rec.Total
	}
	return rec.Extra[key]
}

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return ""
	}
	return d.Decimal
}

// cellText formats a cell value for text and PDF output
func cellText(v interface{}) string {
	switch value := v.(type) {
	case decimal.Decimal:
		return money(value)
	case string:
		return value
	default:
		return ""
	}
}

// dailyRows returns the unit's measurements ordered by date, then start odometer.
// Records without an odometer reading sort last within their day.
func dailyRows(unit *models.Unit) []*models.MeasurementRecord {
	rows := make([]*models.MeasurementRecord, len(unit.Measurements))
	copy(rows, unit.Measurements)

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartKm.Valid != b.StartKm.Valid {
			return a.StartKm.Valid
		}
		return a.StartKm.Valid && a.StartKm.Decimal.LessThan(b.StartKm.Decimal)
	})
	return rows
}
