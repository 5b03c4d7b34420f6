// Package reporter renders a period settlement into the documents handed to
// units and to the office.
//
// Supported output formats:
//   - Text: one statement per unit plus the period summary
//   - JSON: the period summary for programmatic consumption
//   - All: text and JSON plus the daily sheets of every unit as XLSX and PDF
//
// Output layout under the configured directory:
//
//	sheets/<unit>.xlsx
//	pdf/<unit>.pdf
//	summaries/<unit>.txt
//	period_summary.txt
//	summary.json
//
// Reporters only read units and summaries; nothing here changes a settlement.
package reporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/settlement"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatAll  OutputFormat = "all"
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatAll, FormatText, FormatJSON:
		return true
	default:
		return false
	}
}

const (
	SheetsDir          = "sheets"
	PDFDir             = "pdf"
	SummariesDir       = "summaries"
	PeriodSummaryFile  = "period_summary.txt"
	SummaryJSONFile    = "summary.json"
	dailySheetName     = "Medição"
	defaultColumnWidth = 10
)

// Column is one column of the daily sheet
type Column struct {
	// Name is the header shown; it is also looked up, normalized, in the record
	Name  string  `json:"name" yaml:"name"`
	Width float64 `json:"width" yaml:"width"`
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format    OutputFormat `json:"format"`
	OutputDir string       `json:"output_dir"`

	// Period is the billing period tag of the run ("YYYY-MM:N")
	Period  string          `json:"period"`
	RunID   string          `json:"run_id"`
	TaxRate decimal.Decimal `json:"tax_rate"`

	// MeasurementColumns lay out the daily sheet
	MeasurementColumns []Column `json:"measurement_columns"`
	// FuelColumns lay out the fuel table of unit statements
	FuelColumns []string `json:"fuel_columns"`

	// CRLF writes text files with DOS line endings
	CRLF bool `json:"crlf"`
	// DisablePDF skips PDF rendering of daily sheets
	DisablePDF bool `json:"disable_pdf"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:    FormatAll,
		OutputDir: "CA",
		TaxRate:   settlement.DefaultTaxRate,
		MeasurementColumns: []Column{
			{Name: "Data", Width: 10},
			{Name: "Placa", Width: 10},
			{Name: "Material", Width: 18},
			{Name: "M3", Width: 8},
			{Name: "Km Inicial", Width: 10},
			{Name: "Valorização", Width: 12},
		},
		FuelColumns: []string{"Data", "Placa", "Tipo de Combustível", "Qtd", "Preço", "Total"},
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory must be set")
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate must be in [0, 1), got %s", c.TaxRate)
	}
	if c.Format == FormatAll && len(c.MeasurementColumns) == 0 {
		return fmt.Errorf("daily sheets need at least one measurement column")
	}
	for i, col := range c.MeasurementColumns {
		if strings.TrimSpace(col.Name) == "" {
			return fmt.Errorf("measurement column %d has no name", i)
		}
		if col.Width < 0 {
			return fmt.Errorf("measurement column %q has negative width", col.Name)
		}
	}
	return nil
}

func (c *ReportConfig) wantsText() bool   { return c.Format == FormatAll || c.Format == FormatText }
func (c *ReportConfig) wantsJSON() bool   { return c.Format == FormatAll || c.Format == FormatJSON }
func (c *ReportConfig) wantsSheets() bool { return c.Format == FormatAll }
func (c *ReportConfig) wantsPDF() bool    { return c.Format == FormatAll && !c.DisablePDF }

// Output lists the files written by a generation, in writing order
type Output struct {
	Files []string `json:"files"`
}

func (o *Output) add(path string) {
	o.Files = append(o.Files, path)
}

// ReportGenerator writes settlement reports to the output directory
type ReportGenerator struct {
	config *ReportConfig
	logger logger.Logger
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// Config returns the generator configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// Generate writes every report the configured format asks for
func (rg *ReportGenerator) Generate(ctx context.Context, s *settlement.Settlement) (*Output, error) {
	out := &Output{}

	if err := rg.prepareDirs(); err != nil {
		return out, err
	}

	names := unitFileNames(s.Units)
	progress := logger.NewProgress(rg.logger, "unit_reports", len(s.Units), 0)
	for _, unit := range s.Units {
		if err := ctx.Err(); err != nil {
			progress.Finish(err)
			return out, err
		}
		if err := rg.generateUnit(unit, names[unit.ID], out); err != nil {
			progress.Finish(err)
			return out, err
		}
		progress.Tick(unit.ID)
	}
	progress.Finish(nil)

	if rg.config.wantsText() {
		path := filepath.Join(rg.config.OutputDir, PeriodSummaryFile)
		if err := rg.writeText(path, func(b *strings.Builder) { rg.renderPeriodSummary(b, s) }); err != nil {
			return out, err
		}
		out.add(path)
	}

	if rg.config.wantsJSON() {
		path := filepath.Join(rg.config.OutputDir, SummaryJSONFile)
		if err := rg.writeJSONFile(path, s); err != nil {
			return out, err
		}
		out.add(path)
	}

	rg.logger.WithFields(logger.Fields{
		"files":  len(out.Files),
		"output": rg.config.OutputDir,
	}).Info("Reports written")
	return out, nil
}

func (rg *ReportGenerator) generateUnit(unit *models.Unit, name string, out *Output) error {
	if rg.config.wantsText() {
		path := filepath.Join(rg.config.OutputDir, SummariesDir, name+".txt")
		if err := rg.writeText(path, func(b *strings.Builder) { rg.renderUnitStatement(b, unit) }); err != nil {
			return err
		}
		out.add(path)
	}

	if unit.FuelOnly() {
		rg.logger.WithField("unit", unit.ID).Debug("Unit has no measurements, skipping daily sheet")
		return nil
	}

	if rg.config.wantsSheets() {
		path := filepath.Join(rg.config.OutputDir, SheetsDir, name+".xlsx")
		if err := rg.WriteSheet(path, unit); err != nil {
			return err
		}
		out.add(path)
	}

	if rg.config.wantsPDF() {
		path := filepath.Join(rg.config.OutputDir, PDFDir, name+".pdf")
		if err := rg.WritePDF(path, unit); err != nil {
			return err
		}
		out.add(path)
	}
	return nil
}

func (rg *ReportGenerator) prepareDirs() error {
	dirs := []string{rg.config.OutputDir}
	if rg.config.wantsText() {
		dirs = append(dirs, filepath.Join(rg.config.OutputDir, SummariesDir))
	}
	if rg.config.wantsSheets() {
		dirs = append(dirs, filepath.Join(rg.config.OutputDir, SheetsDir))
	}
	if rg.config.wantsPDF() {
		dirs = append(dirs, filepath.Join(rg.config.OutputDir, PDFDir))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.FileError(errors.CodeDirectoryError, dir, err)
		}
	}
	return nil
}

// writeText renders into memory and writes the file with the configured line endings
func (rg *ReportGenerator) writeText(path string, render func(b *strings.Builder)) error {
	var b strings.Builder
	render(&b)

	content := b.String()
	if rg.config.CRLF {
		content = strings.ReplaceAll(content, "\n", "\r\n")
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}

// fileName keeps unit ids usable as file names on every platform
func fileName(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	name := strings.TrimSpace(replacer.Replace(id))
	if name == "" {
		return "unit"
	}
	return name
}

// unitFileNames gives every unit a distinct file name. Ids that clean up to
// the same name get a numeric suffix in unit order, e.g. CA_1 and CA_1-2.
func unitFileNames(units []*models.Unit) map[string]string {
	names := make(map[string]string, len(units))
	taken := make(map[string]bool, len(units))
	for _, unit := range units {
		base := fileName(unit.ID)
		name := base
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s-%d", base, n)
		}
		taken[strings.ToLower(name)] = true
		names[unit.ID] = name
	}
	return names
}

// taxLabel renders the tax rate as a percentage, e.g. "4%"
func taxLabel(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).String() + "%"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(models.MoneyPlaces)
}
