package parsers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/xuri/excelize/v2"
)

// SplitLocation splits a "path:sheet" selector. Windows drive letters are
// not mistaken for a sheet name.
func SplitLocation(location string) (path, sheet string) {
	i := strings.LastIndex(location, ":")
	if i <= 1 || strings.ContainsAny(location[i+1:], `/\`) {
		return location, ""
	}
	return location[:i], location[i+1:]
}

// ReadSheet reads one spreadsheet source. XLSX workbooks honor the sheet
// selector and default to the first sheet; any other file is read as CSV.
func ReadSheet(ctx context.Context, location string, config *ParseConfig) (*Table, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.AbortError("source loading", err)
	}

	path, sheet := SplitLocation(location)
	log := logger.GetGlobalLogger().WithComponent("parsers").WithFields(logger.Fields{
		"file_path": path,
		"sheet":     sheet,
	})

	var (
		table *Table
		err   error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		table, err = readWorkbook(path, sheet, config)
	default:
		table, err = readCSV(path, config)
	}
	if err != nil {
		return nil, err
	}

	log.WithField("rows", len(table.Rows)).Debug("Read spreadsheet source")
	return table, nil
}

// readWorkbook reads a worksheet with raw cell values, so dates arrive as
// serial numbers and numbers without display formatting.
func readWorkbook(path, sheet string, config *ParseConfig) (*Table, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	wb, err := excelize.OpenReader(file)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err).
			WithSuggestion("Open the workbook in a spreadsheet application and save it again as .xlsx")
	}
	defer wb.Close()

	if sheet == "" {
		sheets := wb.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "sheet", "", fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	}

	rows, err := wb.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, "sheet", sheet, err).
			WithSuggestion(fmt.Sprintf("Check that the workbook has a sheet named %q", sheet))
	}
	if len(rows) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("Ensure the sheet contains header and data rows")
	}

	return buildTable(path+":"+sheet, rows[0], rows[1:], config.SkipEmptyRows)
}
