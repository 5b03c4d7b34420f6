package parsers

import (
	"fmt"
	"strings"
	"time"

	"fleet-settlement-service/internal/models"
)

// Canonical measurement columns
const (
	ColumnVehicle    = "placa"
	ColumnUnit       = "ca"
	ColumnSequence   = "cod1"
	ColumnMaterial   = "material"
	ColumnAdjustment = "acerto"
	ColumnDate       = "data"
	ColumnStartKm    = "km_inicial"
	ColumnPeriod     = "period"
	ColumnValuation  = "valorizacao"
)

// Canonical fuel columns
const (
	ColumnDescriptor = "prefixo_marca"
	ColumnFuelType   = "tipo_de_combustivel"
	ColumnFuelQty    = "qtd"
	ColumnFuelPrice  = "preco"
	ColumnFuelTotal  = "total"
)

// DateRange is an inclusive range of calendar days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no range is configured
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls on a day within the range
func (r DateRange) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if !r.Start.IsZero() && day.Before(truncateDay(r.Start)) {
		return false
	}
	if !r.End.IsZero() && day.After(truncateDay(r.End)) {
		return false
	}
	return true
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SourceConfig describes how to decode one source table
type SourceConfig struct {
	Name string

	// Kind is the measure kind of measurement sources; empty for fuel sources
	Kind models.MeasureKind

	// Rename maps source column names to canonical ones, both normalized
	Rename map[string]string

	// Required lists columns whose rows are skipped when empty
	Required []string

	// Tags are constant columns added to every row (e.g. the period tag)
	Tags map[string]string

	// DateRange drops measurement rows outside the period
	DateRange DateRange
}

// Validate checks if the source configuration is valid
func (sc *SourceConfig) Validate() error {
	if strings.TrimSpace(sc.Name) == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if sc.Kind != "" && !sc.Kind.IsValid() {
		return fmt.Errorf("invalid measure kind %q for source %s", sc.Kind, sc.Name)
	}
	if !sc.DateRange.Start.IsZero() && !sc.DateRange.End.IsZero() && sc.DateRange.End.Before(sc.DateRange.Start) {
		return fmt.Errorf("date range of source %s ends before it starts", sc.Name)
	}
	return nil
}

// requiredMeasurementColumns are the headers every measurement source must carry
func requiredMeasurementColumns(kind models.MeasureKind) []string {
	return []string{ColumnVehicle, ColumnUnit, ColumnDate, string(kind)}
}

// requiredFuelColumns are the headers every fuel source must carry
func requiredFuelColumns() []string {
	return []string{ColumnVehicle, ColumnDate, ColumnFuelQty}
}
