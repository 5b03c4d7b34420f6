// Package settlement computes the financial summary of each unit and of the
// whole period from grouped measurements and reconciled fuel records.
package settlement

import (
	"fmt"

	"fleet-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the ISS rate applied to a positive discounted value
var DefaultTaxRate = decimal.RequireFromString("0.04")

// Valuator derives unit settlements. It holds no state besides the tax rate.
type Valuator struct {
	TaxRate decimal.Decimal
}

// NewValuator creates a valuator with the given tax rate
func NewValuator(taxRate decimal.Decimal) (*Valuator, error) {
	if taxRate.IsNegative() || taxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be in [0, 1), got %s", taxRate)
	}
	return &Valuator{TaxRate: taxRate}, nil
}

// Valuate builds the settlement of one unit. Every aggregate is rounded to
// money places where it is computed; tax only applies to a positive
// discounted value, so net may be negative.
func (v *Valuator) Valuate(unitID string, measurements []*models.MeasurementRecord, fuel []*models.FuelRecord) *models.Unit {
	gross := decimal.Zero
	for _, m := range measurements {
		gross = gross.Add(m.Valuation)
	}
	gross = models.RoundMoney(gross)

	fuelTotal := decimal.Zero
	for _, f := range fuel {
		fuelTotal = fuelTotal.Add(f.Total)
	}
	fuelTotal = models.RoundMoney(fuelTotal)

	discounted := models.RoundMoney(gross.Sub(fuelTotal))

	tax := decimal.Zero
	if discounted.IsPositive() {
		tax = models.RoundMoney(discounted.Mul(v.TaxRate))
	}

	return &models.Unit{
		ID:           unitID,
		Measurements: measurements,
		Fuel:         fuel,
		Gross:        gross,
		FuelTotal:    fuelTotal,
		Discounted:   discounted,
		Tax:          tax,
		Net:          models.RoundMoney(discounted.Sub(tax)),
	}
}
