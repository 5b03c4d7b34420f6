package settlement

import (
	"fleet-settlement-service/internal/models"

	"github.com/shopspring/decimal"
)

// Aggregate folds unit settlements into the period summary. The unit net
// listing follows order; units missing from order are appended in the order
// given. The unresolved list is exposed as is.
func Aggregate(units []*models.Unit, unresolved []models.UnresolvedVehicle, order []string) *models.PeriodSummary {
	byID := make(map[string]*models.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	summary := &models.PeriodSummary{
		Gross:      decimal.Zero,
		FuelTotal:  decimal.Zero,
		Net:        decimal.Zero,
		Unresolved: unresolved,
	}

	listed := make(map[string]bool, len(units))
	add := func(u *models.Unit) {
		if listed[u.ID] {
			return
		}
		listed[u.ID] = true
		summary.Gross = summary.Gross.Add(u.Gross)
		summary.FuelTotal = summary.FuelTotal.Add(u.FuelTotal)
		summary.Net = summary.Net.Add(u.Net)
		summary.UnitNets = append(summary.UnitNets, models.UnitNet{Unit: u.ID, Net: u.Net})
	}

	for _, id := range order {
		if u, ok := byID[id]; ok {
			add(u)
		}
	}
	for _, u := range units {
		add(u)
	}

	summary.Gross = models.RoundMoney(summary.Gross)
	summary.FuelTotal = models.RoundMoney(summary.FuelTotal)
	summary.Net = models.RoundMoney(summary.Net)

	return summary
}

// SourceTotals are the period totals computed straight from the priced
// records, before any grouping. Comparing them against the summary shows how
// much fuel no unit absorbed.
type SourceTotals struct {
	Gross     decimal.Decimal `json:"gross"`
	FuelTotal decimal.Decimal `json:"fuel_total"`
}

// ComputeSourceTotals sums record valuations and fuel totals
func ComputeSourceTotals(measurements []*models.MeasurementRecord, fuel []*models.FuelRecord) SourceTotals {
	totals := SourceTotals{Gross: decimal.Zero, FuelTotal: decimal.Zero}
	for _, m := range measurements {
		totals.Gross = totals.Gross.Add(m.Valuation)
	}
	for _, f := range fuel {
		totals.FuelTotal = totals.FuelTotal.Add(f.Total)
	}
	totals.Gross = models.RoundMoney(totals.Gross)
	totals.FuelTotal = models.RoundMoney(totals.FuelTotal)
	return totals
}
