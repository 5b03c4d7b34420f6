package reporter

import (
	"fmt"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// A4 in the OOXML paper size table
const paperA4 = 9

// WriteSheet writes the daily sheet of a unit as an XLSX workbook
func (rg *ReportGenerator) WriteSheet(path string, unit *models.Unit) error {
	f, err := rg.buildSheet(unit)
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "daily_sheet", err).
			WithContext("unit", unit.ID)
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}

func (rg *ReportGenerator) buildSheet(unit *models.Unit) (*excelize.File, error) {
	columns := rg.config.MeasurementColumns
	rows := dailyRows(unit)

	f := excelize.NewFile()
	f.SetSheetName("Sheet1", dailySheetName)

	bordered := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	centered := &excelize.Alignment{Horizontal: "center", Vertical: "center", ShrinkToFit: true}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 10},
		Alignment: centered,
		Border:    bordered,
	})
	if err != nil {
		return nil, err
	}
	textStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Size: 8},
		Alignment: centered,
		Border:    bordered,
	})
	if err != nil {
		return nil, err
	}
	twoPlaces := "0.00"
	numberStyle, err := f.NewStyle(&excelize.Style{
		Font:         &excelize.Font{Size: 8},
		Alignment:    centered,
		Border:       bordered,
		CustomNumFmt: &twoPlaces,
	})
	if err != nil {
		return nil, err
	}

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(dailySheetName, cell, col.Name); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(dailySheetName, cell, cell, headerStyle); err != nil {
			return nil, err
		}

		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		width := col.Width
		if width == 0 {
			width = defaultColumnWidth
		}
		if err := f.SetColWidth(dailySheetName, name, name, width); err != nil {
			return nil, err
		}
	}

	for r, rec := range rows {
		for i, col := range columns {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}

			style := textStyle
			value := measurementValue(rec, col.Name)
			if d, ok := value.(decimal.Decimal); ok {
				value, _ = d.Float64()
				style = numberStyle
			}

			if err := f.SetCellValue(dailySheetName, cell, value); err != nil {
				return nil, err
			}
			if err := f.SetCellStyle(dailySheetName, cell, cell, style); err != nil {
				return nil, err
			}
		}
	}

	if err := rg.setPrintLayout(f, len(columns), len(rows)+1); err != nil {
		return nil, err
	}
	return f, nil
}

// setPrintLayout prints the sheet on landscape A4, one page wide, with the
// header row repeated on every page
func (rg *ReportGenerator) setPrintLayout(f *excelize.File, columns, lastRow int) error {
	size := paperA4
	orientation := "landscape"
	fitWidth, fitHeight := 1, 0
	if err := f.SetPageLayout(dailySheetName, &excelize.PageLayoutOptions{
		Size:        &size,
		Orientation: &orientation,
		FitToWidth:  &fitWidth,
		FitToHeight: &fitHeight,
	}); err != nil {
		return err
	}

	fitToPage := true
	if err := f.SetSheetProps(dailySheetName, &excelize.SheetPropsOptions{FitToPage: &fitToPage}); err != nil {
		return err
	}

	margin := 0.3
	if err := f.SetPageMargins(dailySheetName, &excelize.PageLayoutMarginsOptions{
		Left:   &margin,
		Right:  &margin,
		Top:    &margin,
		Bottom: &margin,
	}); err != nil {
		return err
	}

	lastColumn, err := excelize.ColumnNumberToName(columns)
	if err != nil {
		return err
	}
	if err := f.SetDefinedName(&excelize.DefinedName{
		Name:     "_xlnm.Print_Area",
		RefersTo: fmt.Sprintf("'%s'!$A$1:$%s$%d", dailySheetName, lastColumn, lastRow),
		Scope:    dailySheetName,
	}); err != nil {
		return err
	}
	return f.SetDefinedName(&excelize.DefinedName{
		Name:     "_xlnm.Print_Titles",
		RefersTo: fmt.Sprintf("'%s'!$1:$1", dailySheetName),
		Scope:    dailySheetName,
	})
}
