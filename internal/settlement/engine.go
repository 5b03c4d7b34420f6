package settlement

import (
	"context"

	"fleet-settlement-service/internal/grouping"
	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config holds configuration options for the settlement engine
type Config struct {
	TaxRate    decimal.Decimal
	Reconciler *reconciler.Config
}

// DefaultConfig returns a default configuration for the settlement engine
func DefaultConfig() *Config {
	return &Config{
		TaxRate:    DefaultTaxRate,
		Reconciler: reconciler.DefaultConfig(),
	}
}

// Settlement is the complete outcome of one period run
type Settlement struct {
	// Units in settlement order: grouping order, then fuel-only units
	Units          []*models.Unit
	Summary        *models.PeriodSummary
	Source         SourceTotals
	Reconciliation *reconciler.Result
}

// Unit returns the settlement of the given unit
func (s *Settlement) Unit(id string) (*models.Unit, bool) {
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

// Engine runs group, reconcile, valuate and aggregate over a period's records
type Engine struct {
	reconciler *reconciler.Reconciler
	valuator   *Valuator
	logger     logger.Logger
}

// NewEngine creates a settlement engine. The operator is consulted only for
// vehicles that neither the vehicle index nor the unit pattern can attribute.
func NewEngine(config *Config, operator reconciler.Operator) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	valuator, err := NewValuator(config.TaxRate)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "tax_rate", config.TaxRate.String(), err)
	}

	rec, err := reconciler.NewReconciler(config.Reconciler, operator)
	if err != nil {
		return nil, err
	}

	return &Engine{
		reconciler: rec,
		valuator:   valuator,
		logger:     logger.GetGlobalLogger().WithComponent("settlement"),
	}, nil
}

// Run settles the period. Any error aborts the run without a partial result.
func (e *Engine) Run(ctx context.Context, measurements []*models.MeasurementRecord, fuel []*models.FuelRecord) (*Settlement, error) {
	op := logger.StartStage("settlement", e.logger).
		With("measurements", len(measurements)).
		With("fuel", len(fuel))

	op.Step("grouping measurements by unit")
	g, err := grouping.New(measurements)
	if err != nil {
		op.Fail(err, "grouping failed")
		return nil, err
	}

	op.Step("reconciling fuel records")
	result, err := e.reconciler.Reconcile(ctx, g, fuel)
	if err != nil {
		op.Fail(err, "reconciliation failed")
		return nil, err
	}

	op.Step("valuating units")
	order := append(g.Units(), result.FuelOnlyUnits...)
	units := make([]*models.Unit, 0, len(order))
	for _, id := range order {
		unit := e.valuator.Valuate(id, g.Records(id), result.FuelFor(id))
		unit.Sequence = g.Sequence(id)
		units = append(units, unit)
	}

	op.Step("aggregating period")
	settlement := &Settlement{
		Units:          units,
		Summary:        Aggregate(units, result.Unresolved, order),
		Source:         ComputeSourceTotals(measurements, fuel),
		Reconciliation: result,
	}

	e.logger.WithFields(logger.Fields{
		"units":      len(units),
		"fuel_only":  len(result.FuelOnlyUnits),
		"unresolved": len(result.Unresolved),
		"gross":      settlement.Summary.Gross.StringFixed(models.MoneyPlaces),
		"net":        settlement.Summary.Net.StringFixed(models.MoneyPlaces),
	}).Info("Period settled")
	op.Done("settlement completed")

	return settlement, nil
}
