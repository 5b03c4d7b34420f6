package reporter

import (
	"fmt"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfMargin    = 7.62 // 0.3in
	pdfRowHeight = 5.0
)

// WritePDF writes the daily sheet of a unit as a landscape A4 PDF. Column
// widths are scaled to fill the page width and the header row repeats on
// every page.
func (rg *ReportGenerator) WritePDF(path string, unit *models.Unit) error {
	columns := rg.config.MeasurementColumns

	pdf := gofpdf.New("L", "mm", "A4", "")
	pageWidth, _ := pdf.GetPageSize()
	widths := rg.pdfWidths(pageWidth - 2*pdfMargin)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(fmt.Sprintf("%s - %s", dailySheetName, unit.ID), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Arial", "B", 9)
		for i, col := range columns {
			pdf.CellFormat(widths[i], pdfRowHeight+1, tr(col.Name), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 8)
	})

	pdf.AddPage()
	for _, rec := range dailyRows(unit) {
		for i, col := range columns {
			pdf.CellFormat(widths[i], pdfRowHeight, tr(cellText(measurementValue(rec, col.Name))), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err).WithContext("unit", unit.ID)
	}
	return nil
}

// pdfWidths converts sheet column widths to millimetres across the printable width
func (rg *ReportGenerator) pdfWidths(printable float64) []float64 {
	columns := rg.config.MeasurementColumns
	widths := make([]float64, len(columns))

	total := 0.0
	for i, col := range columns {
		widths[i] = col.Width
		if widths[i] == 0 {
			widths[i] = defaultColumnWidth
		}
		total += widths[i]
	}

	if total == 0 {
		return widths
	}
	for i := range widths {
		widths[i] = widths[i] * printable / total
	}
	return widths
}
