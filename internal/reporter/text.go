package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/internal/settlement"
)

const closingNote = "OBS: Se houve gastos adicionais como alimentação ou borracharia, estes gastos ainda serão descontados."

// WriteUnitStatement writes the text statement of one unit
func (rg *ReportGenerator) WriteUnitStatement(w io.Writer, unit *models.Unit) error {
	var b strings.Builder
	rg.renderUnitStatement(&b, unit)
	_, err := io.WriteString(w, b.String())
	return err
}

// WritePeriodSummary writes the text summary of the whole period
func (rg *ReportGenerator) WritePeriodSummary(w io.Writer, s *settlement.Settlement) error {
	var b strings.Builder
	rg.renderPeriodSummary(&b, s)
	_, err := io.WriteString(w, b.String())
	return err
}

func (rg *ReportGenerator) renderUnitStatement(b *strings.Builder, unit *models.Unit) {
	fmt.Fprintf(b, "%s\n\nPeríodo: %s\n\n", unit.ID, rg.periodLabel(unit.Periods()))
	fmt.Fprintf(b, "TOTAL VALOR CARGA BRUTA: %s\n\n", money(unit.Gross))

	if len(unit.Fuel) > 0 && len(rg.config.FuelColumns) > 0 {
		rows := make([][]string, 0, len(unit.Fuel))
		for _, rec := range unit.Fuel {
			row := make([]string, len(rg.config.FuelColumns))
			for i, col := range rg.config.FuelColumns {
				row[i] = cellText(fuelValue(rec, col))
			}
			rows = append(rows, row)
		}
		writeTable(b, rg.config.FuelColumns, rows)
	}

	fmt.Fprintf(b, "\n\nTotal do combustível: R$ %s", money(unit.FuelTotal))
	fmt.Fprintf(b, "\nDescontado o combustível: R$ %s", money(unit.Discounted))
	fmt.Fprintf(b, "\nISS %s: R$ %s", taxLabel(rg.config.TaxRate), money(unit.Tax))
	fmt.Fprintf(b, "\nTotal a receber: R$ %s", money(unit.Net))
	fmt.Fprintf(b, "\n\n%s\n", closingNote)
}

func (rg *ReportGenerator) renderPeriodSummary(b *strings.Builder, s *settlement.Settlement) {
	summary := s.Summary

	fmt.Fprintf(b, "Período: %s\n\n", models.FortnightLabel(rg.config.Period))
	fmt.Fprintf(b, "Total: R$ %s\n", money(s.Source.Gross))
	fmt.Fprintf(b, "Total (CA): R$ %s\n", money(summary.Gross))
	fmt.Fprintf(b, "Total combustível: R$ %s\n", money(s.Source.FuelTotal))
	fmt.Fprintf(b, "Total combustível (CA): R$ %s\n", money(summary.FuelTotal))
	fmt.Fprintf(b, "Total líquido (-%s ISS): R$ %s\n\n", taxLabel(rg.config.TaxRate), money(summary.Net))

	nets := make([][]string, 0, len(summary.UnitNets))
	for _, line := range summary.UnitNets {
		nets = append(nets, []string{line.Unit, money(line.Net)})
	}
	writeTable(b, []string{"CA", "Total a receber"}, nets)

	if len(summary.Unresolved) > 0 {
		b.WriteString("\n\nCaminhões que gastaram combustível e não produziram:\n\n")

		rows := make([][]string, 0, len(summary.Unresolved))
		for _, v := range summary.Unresolved {
			rows = append(rows, []string{v.Vehicle, money(v.Total)})
		}
		writeTable(b, []string{"Placa", "Total"}, rows)
	}
	b.WriteString("\n")
}

// periodLabel joins the fortnight labels of the given tags, falling back to
// the run period for units without tagged measurements
func (rg *ReportGenerator) periodLabel(periods []string) string {
	if len(periods) == 0 && rg.config.Period != "" {
		periods = []string{rg.config.Period}
	}
	labels := make([]string, len(periods))
	for i, p := range periods {
		labels[i] = models.FortnightLabel(p)
	}
	return strings.Join(labels, ", ")
}

// writeTable writes left-justified columns at least ten characters wide
func writeTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, defaultColumnWidth, 0, 1, ' ', 0)
	fmt.Fprint(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		fmt.Fprint(tw, "\n"+strings.Join(row, "\t"))
	}
	tw.Flush()
}
