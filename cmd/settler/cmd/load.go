package cmd

import (
	"context"
	"database/sql"

	"fleet-settlement-service/cmd/settler/config"
	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/parsers"
	"fleet-settlement-service/internal/pricing"
	"fleet-settlement-service/pkg/logger"
)

// familyStats are the decoding statistics of one source
type familyStats struct {
	Family string
	Stats  *parsers.ParseStats
}

// unpricedSource lists the categories no pack priced in one source
type unpricedSource struct {
	Source     string
	Categories []string
}

// loadedPeriod holds the priced records of every source of a period
type loadedPeriod struct {
	Measurements []*models.MeasurementRecord
	Fuel         []*models.FuelRecord
	Stats        []familyStats
	Unpriced     []unpricedSource
}

// sourceLoader reads, decodes and prices the sources of a period
type sourceLoader struct {
	period      *config.Period
	parseConfig *parsers.ParseConfig
	pricer      *pricing.Pricer
	db          *sql.DB
	logger      logger.Logger
}

func newSourceLoader(ctx context.Context, period *config.Period) (*sourceLoader, error) {
	l := &sourceLoader{
		period:      period,
		parseConfig: parsers.DefaultParseConfig(),
		pricer:      pricing.NewPricer(period.Packs),
		logger:      logger.GetGlobalLogger().WithComponent("loader"),
	}

	if !usesDatabase(period) {
		return l, nil
	}

	db, err := parsers.OpenDatabase(ctx, period.Database.Driver, period.Database.DSN)
	if err != nil {
		return nil, err
	}
	l.db = db
	return l, nil
}

func usesDatabase(period *config.Period) bool {
	for _, s := range append(append([]config.Source{}, period.Measurements...), period.Fuel...) {
		if s.Table != "" {
			return true
		}
	}
	return false
}

// Close releases the database connection, if any
func (l *sourceLoader) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// readTable reads every file of a source into one table, or its database table
func (l *sourceLoader) readTable(ctx context.Context, s config.Source) (*parsers.Table, error) {
	if s.Table != "" {
		return parsers.ReadTable(ctx, l.db, l.period.TableQuery(s))
	}

	table := &parsers.Table{Source: s.Name}
	for _, location := range s.Files {
		part, err := parsers.ReadSheet(ctx, location, l.parseConfig)
		if err != nil {
			return nil, err
		}
		table.Append(part)
	}
	return table, nil
}

// Load reads every source of the period in declaration order
func (l *sourceLoader) Load(ctx context.Context) (*loadedPeriod, error) {
	out := &loadedPeriod{}
	op := logger.StartStage("load_sources", l.logger)

	for _, s := range l.period.Measurements {
		op.Step("measurement:" + s.Name)
		table, err := l.readTable(ctx, s)
		if err != nil {
			op.Fail(err, "Failed to read measurement source")
			return nil, err
		}

		records, stats, err := parsers.DecodeMeasurements(table, l.period.CreateMeasurementSourceConfig(s))
		if err != nil {
			op.Fail(err, "Failed to decode measurement source")
			return nil, err
		}

		priced, unpriced, err := l.pricer.PriceMeasurements(s.Name, records, l.period.PricingRules(s))
		if err != nil {
			return nil, err
		}

		out.Measurements = append(out.Measurements, priced...)
		out.Stats = append(out.Stats, familyStats{Family: "measurement", Stats: stats})
		if len(unpriced) > 0 {
			out.Unpriced = append(out.Unpriced, unpricedSource{Source: s.Name, Categories: unpriced})
		}
	}

	for _, s := range l.period.Fuel {
		op.Step("fuel:" + s.Name)
		table, err := l.readTable(ctx, s)
		if err != nil {
			op.Fail(err, "Failed to read fuel source")
			return nil, err
		}

		records, stats, err := parsers.DecodeFuel(table, l.period.CreateFuelSourceConfig(s))
		if err != nil {
			op.Fail(err, "Failed to decode fuel source")
			return nil, err
		}

		priced, unpriced, err := l.pricer.PriceFuel(s.Name, records, l.period.PricingRules(s))
		if err != nil {
			return nil, err
		}

		out.Fuel = append(out.Fuel, priced...)
		out.Stats = append(out.Stats, familyStats{Family: "fuel", Stats: stats})
		if len(unpriced) > 0 {
			out.Unpriced = append(out.Unpriced, unpricedSource{Source: s.Name, Categories: unpriced})
		}
	}

	op.With("measurements", len(out.Measurements)).
		With("fuel", len(out.Fuel)).
		Done("Sources loaded")
	return out, nil
}
