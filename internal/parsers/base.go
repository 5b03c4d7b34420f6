// Package parsers loads the period's measurement and fuel records.
//
// Records come from spreadsheets (XLSX workbooks or CSV files) or from a
// relational table. Every source is first read into a Table of rows keyed
// by normalized column name, then decoded into model records:
//
//	table, err := parsers.ReadSheet(ctx, "medicao.xlsx:Plan1", parsers.DefaultParseConfig())
//	records, stats, err := parsers.DecodeMeasurements(table, sourceConfig)
//
// Column headers are normalized to snake-case ASCII ("Nº Placa" becomes
// "no_placa") so configuration can refer to columns independently of the
// spelling used by each spreadsheet.
package parsers

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"
)

// Row is one source row keyed by normalized column name. Empty cells and
// SQL NULLs are both represented by the empty string.
type Row map[string]string

// Get returns the trimmed value of a column
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Table is the raw content of one source
type Table struct {
	Source  string
	Headers []string
	Rows    []Row
}

// HasColumn reports whether the table carries the column
func (t *Table) HasColumn(column string) bool {
	for _, h := range t.Headers {
		if h == column {
			return true
		}
	}
	return false
}

// MissingColumns returns the required columns the table does not carry
func (t *Table) MissingColumns(required []string) []string {
	var missing []string
	for _, column := range required {
		if !t.HasColumn(column) {
			missing = append(missing, column)
		}
	}
	return missing
}

// Append adds the rows of other, widening the header list as needed
func (t *Table) Append(other *Table) {
	for _, h := range other.Headers {
		if !t.HasColumn(h) {
			t.Headers = append(t.Headers, h)
		}
	}
	t.Rows = append(t.Rows, other.Rows...)
}

// ParseConfig holds configuration for reading spreadsheet sources
type ParseConfig struct {
	Delimiter        rune
	Comment          rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		ValidateEncoding: true,
	}
}

// openFile opens a source file, mapping failures to file errors
func openFile(path string) (*os.File, error) {
	log := logger.GetGlobalLogger().WithComponent("parsers")
	log.WithField("file_path", path).Debug("Opening source file")

	file, err := os.Open(path)
	if err != nil {
		log.WithError(err).WithField("file_path", path).Error("Failed to open source file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}
	return file, nil
}

// validateEncoding checks that the first lines of a text file are valid UTF-8
func validateEncoding(file *os.File, path string) error {
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(
				errors.CodeEncodingError,
				path,
				lineNum,
				"encoding",
				"",
				fmt.Errorf("invalid UTF-8 encoding detected"),
			).WithSuggestion("Save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	return nil
}

// buildTable turns a header row and data rows into a Table
func buildTable(source string, header []string, records [][]string, skipEmpty bool) (*Table, error) {
	table := &Table{Source: source}

	position := make(map[string]int, len(header))
	for i, raw := range header {
		name := NormalizeHeader(raw)
		if name == "" {
			continue
		}
		if _, dup := position[name]; dup {
			return nil, errors.ParseError(errors.CodeInvalidFormat, source, 1, name, raw,
				fmt.Errorf("duplicate column %q after normalization", name)).
				WithSuggestion("Rename one of the columns so their names differ")
		}
		position[name] = i
		table.Headers = append(table.Headers, name)
	}

	for _, record := range records {
		if skipEmpty && isEmptyRecord(record) {
			continue
		}
		row := make(Row, len(table.Headers))
		for _, name := range table.Headers {
			if i := position[name]; i < len(record) {
				row[name] = record[i]
			} else {
				row[name] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// readCSV reads a delimited text file into a Table
func readCSV(path string, config *ParseConfig) (*Table, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if config.ValidateEncoding {
		if err := validateEncoding(file, path); err != nil {
			return nil, err
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = config.Delimiter
	reader.Comment = config.Comment
	reader.TrimLeadingSpace = config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		line := 0
		var csvErr *csv.ParseError
		if errors.As(err, &csvErr) {
			line = csvErr.Line
		}
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "", "", err).
			WithSuggestion("Check the file format and ensure it's a valid CSV")
	}
	if len(records) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "file_content", "empty", nil).
			WithSuggestion("Ensure the file contains header and data rows")
	}

	return buildTable(path, records[0], records[1:], config.SkipEmptyRows)
}

// ParseStats holds statistics about decoding one source
type ParseStats struct {
	Source   string
	RowsRead int
	Skipped  int
	Filtered int
	Decoded  int
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("%s: read %d rows, %d skipped for empty required values, %d outside the date range, %d decoded",
		ps.Source, ps.RowsRead, ps.Skipped, ps.Filtered, ps.Decoded)
}
