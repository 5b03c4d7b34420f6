package reporter

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/settlement"
	"fleet-settlement-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// SummaryDocument is the JSON rendering of a period settlement
type SummaryDocument struct {
	RunID       string                  `json:"run_id,omitempty"`
	Period      string                  `json:"period,omitempty"`
	GeneratedAt time.Time               `json:"generated_at"`
	TaxRate     decimal.Decimal         `json:"tax_rate"`
	Source      settlement.SourceTotals `json:"source"`
	Summary     *models.PeriodSummary   `json:"summary"`
	Units       []UnitDocument          `json:"units"`
	Resolutions []ResolutionDocument    `json:"resolutions,omitempty"`
}

// UnitDocument is one unit of the JSON summary
type UnitDocument struct {
	*models.Unit
	Measurements int      `json:"measurements"`
	FuelRecords  int      `json:"fuel_records"`
	Periods      []string `json:"periods,omitempty"`
	FuelOnly     bool     `json:"fuel_only,omitempty"`
}

// ResolutionDocument records how a fuel vehicle was attributed
type ResolutionDocument struct {
	Vehicle string `json:"vehicle"`
	Unit    string `json:"unit,omitempty"`
	Tier    string `json:"tier"`
}

// BuildSummaryDocument assembles the JSON summary of a settlement
func (rg *ReportGenerator) BuildSummaryDocument(s *settlement.Settlement) *SummaryDocument {
	doc := &SummaryDocument{
		RunID:       rg.config.RunID,
		Period:      rg.config.Period,
		GeneratedAt: time.Now().UTC(),
		TaxRate:     rg.config.TaxRate,
		Source:      s.Source,
		Summary:     s.Summary,
		Units:       make([]UnitDocument, 0, len(s.Units)),
	}

	for _, u := range s.Units {
		doc.Units = append(doc.Units, UnitDocument{
			Unit:         u,
			Measurements: len(u.Measurements),
			FuelRecords:  len(u.Fuel),
			Periods:      u.Periods(),
			FuelOnly:     u.FuelOnly(),
		})
	}

	if s.Reconciliation != nil {
		for _, r := range s.Reconciliation.Resolutions {
			doc.Resolutions = append(doc.Resolutions, ResolutionDocument{
				Vehicle: r.Vehicle,
				Unit:    r.Unit,
				Tier:    r.Tier.String(),
			})
		}
	}
	return doc
}

// WriteJSON writes the JSON summary of a settlement
func (rg *ReportGenerator) WriteJSON(w io.Writer, s *settlement.Settlement) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.BuildSummaryDocument(s))
}

func (rg *ReportGenerator) writeJSONFile(path string, s *settlement.Settlement) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	if err := rg.WriteJSON(file, s); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return file.Close()
}
