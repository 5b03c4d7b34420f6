// Package errors is the error taxonomy of settler. Every failure a run can
// report carries a category, which decides the process exit code, and a code
// naming the precise condition, with a suggestion for the operator.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory groups error codes by the stage that reports them
type ErrorCategory string

const (
	CategoryFile           ErrorCategory = "file"
	CategoryParse          ErrorCategory = "parse"
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryReconciliation ErrorCategory = "reconciliation"
	CategoryPricing        ErrorCategory = "pricing"
	CategoryAborted        ErrorCategory = "aborted"
	CategoryInternal       ErrorCategory = "internal"
)

// exitCodes maps categories to process exit codes; anything else exits 1
var exitCodes = map[ErrorCategory]int{
	CategoryFile:           2,
	CategoryParse:          3,
	CategoryValidation:     3,
	CategoryConfiguration:  4,
	CategoryReconciliation: 5,
	CategoryInternal:       5,
	CategoryPricing:        6,
	CategoryAborted:        7,
}

// ErrorCode names one failure condition
type ErrorCode string

const (
	// Reading sources and writing reports
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFilePermission ErrorCode = "file_permission"
	CodeFileCorrupted  ErrorCode = "file_corrupted"
	CodeDirectoryError ErrorCode = "directory_error"
	CodeSourceQuery    ErrorCode = "source_query"

	// Decoding source tables
	CodeInvalidFormat ErrorCode = "invalid_format"
	CodeMissingColumn ErrorCode = "missing_column"
	CodeInvalidData   ErrorCode = "invalid_data"
	CodeEncodingError ErrorCode = "encoding_error"

	// Record and input checks
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidDate   ErrorCode = "invalid_date"
	CodeMissingField  ErrorCode = "missing_field"
	CodeEmptyDataset  ErrorCode = "empty_dataset"

	// Period file
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Fuel attribution
	CodeResolutionFailed ErrorCode = "resolution_failed"
	CodeDataInconsistent ErrorCode = "data_inconsistent"

	CodeUnpricedCategory ErrorCode = "unpriced_category"
	CodeOperatorAbort    ErrorCode = "operator_abort"
	CodeUnexpectedError  ErrorCode = "unexpected_error"
)

// template is the message format and suggestion of one code. The format
// takes the subject of the error (a path, a field, a setting).
type template struct {
	format     string
	suggestion string
}

var templates = map[ErrorCode]template{
	CodeFileNotFound:   {"file not found: %s", "check if the file path is correct and the file exists"},
	CodeFilePermission: {"permission denied accessing file: %s", "check file permissions and ensure you have read access"},
	CodeFileCorrupted:  {"file cannot be read as a spreadsheet: %s", "open the file in a spreadsheet program and save it again as .xlsx or .csv"},
	CodeDirectoryError: {"cannot write to directory: %s", "ensure the output directory exists and is writable"},
	CodeSourceQuery:    {"failed to query source table: %s", "check the database connection settings and the table name"},

	CodeInvalidAmount: {"invalid amount in field '%s'", "write amounts as decimal numbers, like '12.34' or '12,34'"},
	CodeInvalidDate:   {"invalid date in field '%s'", "use date format YYYY-MM-DD or DD/MM/YYYY"},
	CodeMissingField:  {"required field '%s' is missing or empty", "provide a value for this required field"},
	CodeEmptyDataset:  {"no %s records available for the period", "check the source filters and the date range of the period"},

	CodeInvalidConfig:  {"invalid value for '%s'", "check the period file documentation for valid values"},
	CodeMissingConfig:  {"missing required setting: %s", "provide this setting in the period file"},
	CodeConfigConflict: {"conflicting settings at '%s'", "keep only one of the conflicting settings"},

	CodeResolutionFailed: {"vehicle resolution failed during %s", "check the operator input and the unit pattern"},
	CodeDataInconsistent: {"inconsistent records found during %s", "compare the measurement and fuel sheets for the affected vehicles"},

	CodeUnexpectedError: {"unexpected error during %s", "this is likely a bug, report it with the log of the run"},
}

// SettlementError is the error type of every reported failure
type SettlementError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context holds the details shown under the error message
type Context map[string]interface{}

func (e *SettlementError) Error() string {
	if e.Suggestion == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
}

func (e *SettlementError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns the process exit code of the error's category
func (e *SettlementError) GetExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithContext records a detail of the error
func (e *SettlementError) WithContext(key string, value interface{}) *SettlementError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion replaces the suggestion shown to the operator
func (e *SettlementError) WithSuggestion(suggestion string) *SettlementError {
	e.Suggestion = suggestion
	return e
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// New creates an error without a cause
func New(category ErrorCategory, code ErrorCode, message string) *SettlementError {
	return &SettlementError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap creates an error caused by err; a nil err yields nil
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *SettlementError {
	if err == nil {
		return nil
	}
	return &SettlementError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// build creates an error of category from the code's template, falling back
// to fallback when the code has none
func build(category ErrorCategory, code ErrorCode, subject, fallback string, err error) *SettlementError {
	t, ok := templates[code]
	if !ok {
		t = template{format: fallback, suggestion: "check the input and try again"}
	}
	message := fmt.Sprintf(t.format, subject)

	var result *SettlementError
	if err != nil {
		result = Wrap(err, category, code, message)
	} else {
		result = New(category, code, message)
	}
	return result.WithSuggestion(t.suggestion)
}

// FileError reports a source or report file that cannot be used
func FileError(code ErrorCode, path string, err error) *SettlementError {
	return build(CategoryFile, code, path, "file error: %s", err).
		WithContext("file_path", path)
}

// ParseError reports a source table cell or header that cannot be decoded.
// Line is the 1-based row number in the source, the header being row 1.
func ParseError(code ErrorCode, source string, line int, column string, value string, err error) *SettlementError {
	var message, suggestion string
	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column '%s' in %s", column, source)
		suggestion = "check the sheet headers or add a rename entry for the column"
	case CodeEncodingError:
		message = fmt.Sprintf("%s is not UTF-8 text", source)
		suggestion = "save the file with UTF-8 encoding"
	case CodeInvalidData:
		message = fmt.Sprintf("cannot read '%s' in %s at row %d, column '%s'", value, source, line, column)
		suggestion = "correct the value in the source or remove the row"
	case CodeInvalidFormat:
		message = "invalid format in " + source
		if column != "" {
			message += fmt.Sprintf(", %s '%s'", column, value)
		}
		if line > 0 {
			message += fmt.Sprintf(" at row %d", line)
		}
		suggestion = "check that the file is a valid spreadsheet or CSV"
	default:
		message = fmt.Sprintf("parse error in %s at row %d", source, line)
		suggestion = "check the file format and data integrity"
	}

	var result *SettlementError
	if err != nil {
		result = Wrap(err, CategoryParse, code, message)
	} else {
		result = New(CategoryParse, code, message)
	}
	return result.
		WithSuggestion(suggestion).
		WithContext("source", source).
		WithContext("row", line).
		WithContext("column", column).
		WithContext("value", value)
}

// ValidationError reports input that decodes but cannot be settled
func ValidationError(code ErrorCode, field string, value interface{}, err error) *SettlementError {
	return build(CategoryValidation, code, field, "validation error in field '%s'", err).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError reports a bad period file or command line setting
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *SettlementError {
	result := build(CategoryConfiguration, code, setting, "configuration error: %s", err).
		WithContext("setting", setting)
	if value != nil {
		result.WithContext("value", value)
	}
	return result
}

// ReconciliationError reports a failure attributing fuel to units
func ReconciliationError(code ErrorCode, operation string, err error) *SettlementError {
	return build(CategoryReconciliation, code, operation, "reconciliation error during %s", err).
		WithContext("operation", operation)
}

// PricingError reports categories that no pack of the source prices
func PricingError(source string, categories []string) *SettlementError {
	message := fmt.Sprintf("%d categories did not have their price updated in %s: %s",
		len(categories), source, strings.Join(categories, ", "))
	return New(CategoryPricing, CodeUnpricedCategory, message).
		WithSuggestion("add the categories to a pack with a price, or rerun with --allow-unpriced").
		WithContext("source", source).
		WithContext("categories", categories)
}

// AbortError marks a deliberate stop requested by the operator
func AbortError(stage string, err error) *SettlementError {
	message := fmt.Sprintf("run aborted by operator during %s", stage)
	result := Wrap(err, CategoryAborted, CodeOperatorAbort, message)
	if result == nil {
		result = New(CategoryAborted, CodeOperatorAbort, message)
	}
	return result.WithContext("stage", stage)
}

// InternalError reports a failure that no input explains
func InternalError(code ErrorCode, operation string, err error) *SettlementError {
	return build(CategoryInternal, code, operation, "internal error during %s", err).
		WithContext("operation", operation)
}

// IsSettlementError reports whether err itself is a SettlementError
func IsSettlementError(err error) bool {
	_, ok := err.(*SettlementError)
	return ok
}

// AsSettlementError finds the first SettlementError in err's chain
func AsSettlementError(err error) (*SettlementError, bool) {
	var settlementErr *SettlementError
	if errors.As(err, &settlementErr) {
		return settlementErr, true
	}
	return nil, false
}

// IsCategory reports whether err carries a SettlementError of category
func IsCategory(err error, category ErrorCategory) bool {
	settlementErr, ok := AsSettlementError(err)
	return ok && settlementErr.Category == category
}

// WrapIfNeeded returns err's SettlementError, or wraps err into a new one
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *SettlementError {
	if err == nil {
		return nil
	}
	if settlementErr, ok := AsSettlementError(err); ok {
		return settlementErr
	}
	return Wrap(err, category, code, message)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// RootCause returns the innermost error of an Unwrap chain
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}
