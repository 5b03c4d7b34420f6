// Package config loads the period definition file and turns it into the
// configurations of the settlement packages.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/parsers"
	"fleet-settlement-service/internal/pricing"
	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/internal/reporter"
	"fleet-settlement-service/internal/settlement"
	"fleet-settlement-service/pkg/errors"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Period is the decoded period definition file
type Period struct {
	// Tag is the billing period, "YYYY-MM:N" for the Nth fortnight
	Tag   string `yaml:"period"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`

	TaxRate     *decimal.Decimal `yaml:"tax_rate"`
	UnitPattern string           `yaml:"unit_pattern"`

	// Filters are equality filters applied to every table source
	Filters  map[string]string `yaml:"filters"`
	Database Database          `yaml:"database"`

	Packs        pricing.Packs `yaml:"packs"`
	Measurements []Source      `yaml:"measurements"`
	Fuel         []Source      `yaml:"fuel"`
	Report       Report        `yaml:"report"`

	dateRange parsers.DateRange
}

// Database selects the SQL connection of table sources
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Source is one measurement or fuel source
type Source struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Files are sheet locations ("book.xlsx:Sheet" or "data.csv"), read in order
	Files []string `yaml:"files"`
	// Table is read from the database instead of files
	Table   string            `yaml:"table"`
	Filters map[string]string `yaml:"filters"`

	Rename       map[string]string          `yaml:"rename"`
	Prices       map[string]decimal.Decimal `yaml:"prices"`
	NullPriceMap []PriceRemap               `yaml:"null_price_map"`
	Required     []string                   `yaml:"required"`
	Tags         map[string]string          `yaml:"tags"`
}

// PriceRemap replaces one source price of records without material
type PriceRemap struct {
	From decimal.Decimal `yaml:"from"`
	To   decimal.Decimal `yaml:"to"`
}

// Report configures the generated documents
type Report struct {
	Output             string            `yaml:"output"`
	Format             string            `yaml:"format"`
	CRLF               bool              `yaml:"crlf"`
	MeasurementColumns []reporter.Column `yaml:"measurement_columns"`
	FuelColumns        []string          `yaml:"fuel_columns"`
}

// Load reads and validates a period definition file
func Load(path string) (*Period, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return Parse(content)
}

// Parse decodes and validates a period definition
func Parse(content []byte) (*Period, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	var p Period
	if err := decoder.Decode(&p); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "period_file", "yaml", err).
			WithSuggestion("Check the YAML syntax and the setting names of the period file")
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks the period definition once, before anything is loaded
func (p *Period) Validate() error {
	invalid := func(setting string, value interface{}, err error) error {
		return errors.ConfigurationError(errors.CodeInvalidConfig, setting, value, err)
	}

	if strings.TrimSpace(p.Tag) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "period", nil, nil)
	}

	var err error
	if p.Start != "" {
		if p.dateRange.Start, err = parsers.ParseDate(p.Start); err != nil {
			return invalid("start", p.Start, err)
		}
	}
	if p.End != "" {
		if p.dateRange.End, err = parsers.ParseDate(p.End); err != nil {
			return invalid("end", p.End, err)
		}
	}
	if !p.dateRange.Start.IsZero() && !p.dateRange.End.IsZero() && p.dateRange.End.Before(p.dateRange.Start) {
		return invalid("end", p.End, fmt.Errorf("period ends before it starts"))
	}

	if p.TaxRate != nil {
		if _, err := settlement.NewValuator(*p.TaxRate); err != nil {
			return invalid("tax_rate", p.TaxRate.String(), err)
		}
	}
	if err := p.ReconcilerConfig().Validate(); err != nil {
		return invalid("unit_pattern", p.UnitPattern, err)
	}

	if len(p.Measurements) == 0 {
		return errors.ConfigurationError(errors.CodeMissingConfig, "measurements", nil, nil).
			WithSuggestion("Declare at least one measurement source")
	}

	pricer := pricing.NewPricer(p.Packs)
	names := make(map[string]bool)
	check := func(family string, s Source) error {
		if strings.TrimSpace(s.Name) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, family+".name", nil, nil)
		}
		if names[s.Name] {
			return errors.ConfigurationError(errors.CodeConfigConflict, family+".name", s.Name, fmt.Errorf("duplicate source name"))
		}
		names[s.Name] = true

		switch {
		case len(s.Files) == 0 && s.Table == "":
			return errors.ConfigurationError(errors.CodeMissingConfig, family+"."+s.Name+".files", nil, nil).
				WithSuggestion("Give the source a list of files or a database table")
		case len(s.Files) > 0 && s.Table != "":
			return errors.ConfigurationError(errors.CodeConfigConflict, family+"."+s.Name, "files and table", nil)
		case s.Table != "" && p.Database.Driver == "":
			return errors.ConfigurationError(errors.CodeMissingConfig, "database.driver", nil, nil).
				WithSuggestion(fmt.Sprintf("Source %s reads a table; configure the database connection", s.Name))
		}

		if s.Table != "" {
			query := p.tableQuery(s)
			if err := query.Validate(); err != nil {
				return invalid(family+"."+s.Name+".table", s.Table, err)
			}
		}
		if err := pricer.Validate(p.PricingRules(s)); err != nil {
			return invalid(family+"."+s.Name+".prices", s.Name, err)
		}
		return nil
	}

	for _, s := range p.Measurements {
		if err := check("measurements", s); err != nil {
			return err
		}
		if !models.MeasureKind(s.Kind).IsValid() {
			return invalid("measurements."+s.Name+".kind", s.Kind, fmt.Errorf("kind must be m3 or ton"))
		}
	}
	for _, s := range p.Fuel {
		if err := check("fuel", s); err != nil {
			return err
		}
		if len(s.NullPriceMap) > 0 {
			return invalid("fuel."+s.Name+".null_price_map", s.Name, fmt.Errorf("null price maps apply to measurement sources only"))
		}
	}

	if p.Report.Format != "" && !reporter.OutputFormat(p.Report.Format).IsValid() {
		return invalid("report.format", p.Report.Format, fmt.Errorf("format must be all, text or json"))
	}
	return nil
}

// DateRange returns the inclusive date range of the period
func (p *Period) DateRange() parsers.DateRange {
	return p.dateRange
}

// PackNames returns the configured pack names in order
func (p *Period) PackNames() []string {
	names := make([]string, 0, len(p.Packs))
	for name := range p.Packs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateMeasurementSourceConfig creates the decoding configuration of a measurement source
func (p *Period) CreateMeasurementSourceConfig(s Source) *parsers.SourceConfig {
	config := p.createSourceConfig(s)
	config.Kind = models.MeasureKind(s.Kind)
	config.DateRange = p.dateRange
	return config
}

// CreateFuelSourceConfig creates the decoding configuration of a fuel source
func (p *Period) CreateFuelSourceConfig(s Source) *parsers.SourceConfig {
	return p.createSourceConfig(s)
}

func (p *Period) createSourceConfig(s Source) *parsers.SourceConfig {
	rename := make(map[string]string, len(s.Rename))
	for from, to := range s.Rename {
		rename[parsers.NormalizeHeader(from)] = parsers.NormalizeHeader(to)
	}
	required := make([]string, len(s.Required))
	for i, column := range s.Required {
		required[i] = parsers.NormalizeHeader(column)
	}
	tags := make(map[string]string, len(s.Tags))
	for column, value := range s.Tags {
		tags[parsers.NormalizeHeader(column)] = value
	}

	return &parsers.SourceConfig{
		Name:     s.Name,
		Rename:   rename,
		Required: required,
		Tags:     tags,
	}
}

// TableQuery returns the query reading a table source, with the period
// filters overridden by the source's own
func (p *Period) TableQuery(s Source) parsers.TableQuery {
	return p.tableQuery(s)
}

func (p *Period) tableQuery(s Source) parsers.TableQuery {
	filters := make(map[string]string, len(p.Filters)+len(s.Filters))
	for column, value := range p.Filters {
		filters[column] = value
	}
	for column, value := range s.Filters {
		filters[column] = value
	}
	return parsers.TableQuery{Table: s.Table, Filters: filters}
}

// PricingRules creates the pricing rules of a source
func (p *Period) PricingRules(s Source) *pricing.Rules {
	rules := &pricing.Rules{Prices: s.Prices}
	for _, r := range s.NullPriceMap {
		rules.NullPriceMap = append(rules.NullPriceMap, pricing.PriceRemap{From: r.From, To: r.To})
	}
	return rules
}

// ReconcilerConfig creates the reconciler configuration
func (p *Period) ReconcilerConfig() *reconciler.Config {
	config := reconciler.DefaultConfig()
	if p.UnitPattern != "" {
		config.UnitPattern = p.UnitPattern
	}
	return config
}

// CreateSettlementConfig creates the settlement engine configuration
func (p *Period) CreateSettlementConfig() *settlement.Config {
	config := settlement.DefaultConfig()
	if p.TaxRate != nil {
		config.TaxRate = *p.TaxRate
	}
	config.Reconciler = p.ReconcilerConfig()
	return config
}

// CreateReportConfig creates the report configuration. Non-empty arguments
// override the file's output directory and format.
func (p *Period) CreateReportConfig(output, format, runID string) *reporter.ReportConfig {
	config := reporter.DefaultReportConfig()
	config.Period = p.Tag
	config.RunID = runID
	config.CRLF = p.Report.CRLF
	config.TaxRate = p.CreateSettlementConfig().TaxRate

	if p.Report.Output != "" {
		config.OutputDir = p.Report.Output
	}
	if output != "" {
		config.OutputDir = output
	}
	if p.Report.Format != "" {
		config.Format = reporter.OutputFormat(p.Report.Format)
	}
	if format != "" {
		config.Format = reporter.OutputFormat(format)
	}
	if len(p.Report.MeasurementColumns) > 0 {
		config.MeasurementColumns = p.Report.MeasurementColumns
	}
	if len(p.Report.FuelColumns) > 0 {
		config.FuelColumns = p.Report.FuelColumns
	}
	return config
}
