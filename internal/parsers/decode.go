package parsers

import (
	"fmt"
	"strings"
	"time"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02/01/2006",
}

// ParseDecimal parses a number written with either "." or "," as decimal
// separator. When both appear the last one is the decimal separator. The
// empty string is a missing value, not an error.
func ParseDecimal(raw string) (decimal.NullDecimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if s == "" {
		return decimal.NullDecimal{}, nil
	}

	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// ParseDate parses the supported date layouts and spreadsheet serial dates
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if serial, err := decimal.NewFromString(s); err == nil && serial.IsPositive() {
		f, _ := serial.Float64()
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// decoder holds the shared state of decoding one table
type decoder struct {
	table  *Table
	config *SourceConfig
	stats  *ParseStats
	logger logger.Logger
}

func newDecoder(table *Table, config *SourceConfig) *decoder {
	return &decoder{
		table:  table,
		config: config,
		stats:  &ParseStats{Source: config.Name, RowsRead: len(table.Rows)},
		logger: logger.GetGlobalLogger().WithComponent("parsers").WithField("source", config.Name),
	}
}

// rename returns the row under canonical column names with tags applied
func (d *decoder) rename(row Row) Row {
	out := make(Row, len(row)+len(d.config.Tags))
	for column, value := range row {
		if target, ok := d.config.Rename[column]; ok {
			column = target
		}
		out[column] = value
	}
	for tag, value := range d.config.Tags {
		out[tag] = value
	}
	return out
}

// headers returns the canonical headers of the table
func (d *decoder) headers() *Table {
	renamed := &Table{Source: d.table.Source}
	for _, h := range d.table.Headers {
		if target, ok := d.config.Rename[h]; ok {
			h = target
		}
		if !renamed.HasColumn(h) {
			renamed.Headers = append(renamed.Headers, h)
		}
	}
	for tag := range d.config.Tags {
		if !renamed.HasColumn(tag) {
			renamed.Headers = append(renamed.Headers, tag)
		}
	}
	return renamed
}

func (d *decoder) checkColumns(required []string) error {
	missing := d.headers().MissingColumns(append(required, d.config.Required...))
	if len(missing) == 0 {
		return nil
	}

	d.logger.WithFields(logger.Fields{
		"missing_headers":   missing,
		"available_headers": d.table.Headers,
	}).Error("Required headers are missing")

	return errors.ParseError(errors.CodeMissingColumn, d.config.Name, 1, strings.Join(missing, ", "), "", nil).
		WithSuggestion(fmt.Sprintf("Ensure the source contains these columns: %s", strings.Join(missing, ", ")))
}

// skip reports whether one of the required columns is empty
func (d *decoder) skip(row Row, always ...string) bool {
	for _, column := range append(always, d.config.Required...) {
		if row.Get(column) == "" {
			return true
		}
	}
	return false
}

func (d *decoder) decimal(row Row, column string, line int) (decimal.NullDecimal, error) {
	value, err := ParseDecimal(row.Get(column))
	if err != nil {
		return decimal.NullDecimal{}, errors.ParseError(errors.CodeInvalidData, d.config.Name, line, column, row.Get(column), err).
			WithSuggestion("Use plain decimal numbers such as 12.5 or 12,5")
	}
	return value, nil
}

func (d *decoder) date(row Row, line int) (time.Time, error) {
	t, err := ParseDate(row.Get(ColumnDate))
	if err != nil {
		return time.Time{}, errors.ParseError(errors.CodeInvalidData, d.config.Name, line, ColumnDate, row.Get(ColumnDate), err).
			WithSuggestion("Use dates such as 2017-03-02 or 02/03/2017")
	}
	return t, nil
}

func (d *decoder) finish() {
	fields := logger.Fields{
		"rows":     d.stats.RowsRead,
		"skipped":  d.stats.Skipped,
		"filtered": d.stats.Filtered,
		"decoded":  d.stats.Decoded,
	}
	if d.stats.Decoded == 0 {
		d.logger.WithFields(fields).Warn("No records added from source")
		return
	}
	d.logger.WithFields(fields).Info("Decoded source")
}

// DecodeMeasurements decodes a measurement table. Prices are read from the
// kind's price column when present; pricing may replace them later.
func DecodeMeasurements(table *Table, config *SourceConfig) ([]*models.MeasurementRecord, *ParseStats, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source", config.Name, err)
	}
	if !config.Kind.IsValid() {
		return nil, nil, errors.ConfigurationError(errors.CodeMissingConfig, "source.kind", config.Name, nil)
	}

	d := newDecoder(table, config)
	if err := d.checkColumns(requiredMeasurementColumns(config.Kind)); err != nil {
		return nil, nil, err
	}

	quantityColumn := string(config.Kind)
	priceColumn := config.Kind.PriceColumn()

	var records []*models.MeasurementRecord
	for i, raw := range table.Rows {
		line := i + 2
		row := d.rename(raw)
		if d.skip(row, ColumnVehicle, ColumnUnit) {
			d.stats.Skipped++
			continue
		}

		date, err := d.date(row, line)
		if err != nil {
			return nil, nil, err
		}
		if !config.DateRange.IsZero() && !config.DateRange.Contains(date) {
			d.stats.Filtered++
			continue
		}

		quantity, err := d.decimal(row, quantityColumn, line)
		if err != nil {
			return nil, nil, err
		}
		price, err := d.decimal(row, priceColumn, line)
		if err != nil {
			return nil, nil, err
		}
		adjustment, err := d.decimal(row, ColumnAdjustment, line)
		if err != nil {
			return nil, nil, err
		}
		startKm, err := d.decimal(row, ColumnStartKm, line)
		if err != nil {
			return nil, nil, err
		}

		vehicle := NormalizeVehicle(row.Get(ColumnVehicle))
		row[ColumnVehicle] = vehicle

		rec := &models.MeasurementRecord{
			Vehicle:    vehicle,
			Unit:       row.Get(ColumnUnit),
			Sequence:   row.Get(ColumnSequence),
			Material:   row.Get(ColumnMaterial),
			Kind:       config.Kind,
			Quantity:   quantity,
			Price:      price,
			Adjustment: adjustment,
			Date:       date,
			StartKm:    startKm,
			Period:     row.Get(ColumnPeriod),
			Extra:      row,
		}
		records = append(records, rec.WithPrice(price))
		d.stats.Decoded++
	}

	d.finish()
	return records, d.stats, nil
}

// DecodeFuel decodes a fuel table
func DecodeFuel(table *Table, config *SourceConfig) ([]*models.FuelRecord, *ParseStats, error) {
	if err := config.Validate(); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source", config.Name, err)
	}

	d := newDecoder(table, config)
	if err := d.checkColumns(requiredFuelColumns()); err != nil {
		return nil, nil, err
	}

	var records []*models.FuelRecord
	for i, raw := range table.Rows {
		line := i + 2
		row := d.rename(raw)
		if d.skip(row, ColumnVehicle) {
			d.stats.Skipped++
			continue
		}

		// fuel dates are only displayed; an empty cell keeps the zero date
		var date time.Time
		if row.Get(ColumnDate) != "" {
			var err error
			if date, err = d.date(row, line); err != nil {
				return nil, nil, err
			}
		}
		quantity, err := d.decimal(row, ColumnFuelQty, line)
		if err != nil {
			return nil, nil, err
		}
		price, err := d.decimal(row, ColumnFuelPrice, line)
		if err != nil {
			return nil, nil, err
		}

		vehicle := NormalizeVehicle(row.Get(ColumnVehicle))
		row[ColumnVehicle] = vehicle

		rec := &models.FuelRecord{
			Vehicle:    vehicle,
			Descriptor: row.Get(ColumnDescriptor),
			FuelType:   row.Get(ColumnFuelType),
			Quantity:   quantity,
			Price:      price,
			Date:       date,
			Extra:      row,
		}
		records = append(records, rec.WithPrice(price))
		d.stats.Decoded++
	}

	d.finish()
	return records, d.stats, nil
}
