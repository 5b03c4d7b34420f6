package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndWrap(t *testing.T) {
	cause := errors.New("no such file")

	wrapped := Wrap(cause, CategoryFile, CodeFileNotFound, "file not found")
	if wrapped.Unwrap() != cause {
		t.Errorf("expected to unwrap to %v, got %v", cause, wrapped.Unwrap())
	}
	if wrapped.Error() != "file not found" {
		t.Errorf("unexpected error string %q", wrapped.Error())
	}
	if len(wrapped.StackTrace) == 0 {
		t.Error("expected a stack trace on wrapped errors")
	}

	if Wrap(nil, CategoryFile, CodeFileNotFound, "x") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}

	plain := New(CategoryParse, CodeInvalidFormat, "invalid format").WithSuggestion("fix it")
	if plain.Error() != "invalid format (suggestion: fix it)" {
		t.Errorf("unexpected error string %q", plain.Error())
	}
	if plain.Cause != nil {
		t.Errorf("expected no cause, got %v", plain.Cause)
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		category     ErrorCategory
		expectedCode int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryReconciliation, 5},
		{CategoryInternal, 5},
		{CategoryPricing, 6},
		{CategoryAborted, 7},
		{"unknown", 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := New(tt.category, "test_code", "test message")
			if err.GetExitCode() != tt.expectedCode {
				t.Errorf("expected exit code %d for category %s, got %d",
					tt.expectedCode, tt.category, err.GetExitCode())
			}
		})
	}
}

func TestConstructorMessages(t *testing.T) {
	tests := []struct {
		name     string
		err      *SettlementError
		category ErrorCategory
		message  string
	}{
		{
			name:     "missing source file",
			err:      FileError(CodeFileNotFound, "medicao.xlsx", nil),
			category: CategoryFile,
			message:  "file not found: medicao.xlsx",
		},
		{
			name:     "bad cell",
			err:      ParseError(CodeInvalidData, "medicao_m3", 7, "m3", "dez", nil),
			category: CategoryParse,
			message:  "cannot read 'dez' in medicao_m3 at row 7, column 'm3'",
		},
		{
			name:     "missing columns",
			err:      ParseError(CodeMissingColumn, "combustivel", 1, "placa, qtd", "", nil),
			category: CategoryParse,
			message:  "missing required column 'placa, qtd' in combustivel",
		},
		{
			name:     "unreadable sheet",
			err:      ParseError(CodeInvalidFormat, "book.xlsx", 0, "sheet", "Medição", nil),
			category: CategoryParse,
			message:  "invalid format in book.xlsx, sheet 'Medição'",
		},
		{
			name:     "broken csv",
			err:      ParseError(CodeInvalidFormat, "fuel.csv", 12, "", "", nil),
			category: CategoryParse,
			message:  "invalid format in fuel.csv at row 12",
		},
		{
			name:     "empty period",
			err:      ValidationError(CodeEmptyDataset, "measurement", 0, nil),
			category: CategoryValidation,
			message:  "no measurement records available for the period",
		},
		{
			name:     "missing setting",
			err:      ConfigurationError(CodeMissingConfig, "period", nil, nil),
			category: CategoryConfiguration,
			message:  "missing required setting: period",
		},
		{
			name:     "operator failure",
			err:      ReconciliationError(CodeResolutionFailed, "operator resolution", errors.New("tty closed")),
			category: CategoryReconciliation,
			message:  "vehicle resolution failed during operator resolution",
		},
		{
			name:     "unknown code falls back",
			err:      InternalError("odd", "report", nil),
			category: CategoryInternal,
			message:  "internal error during report",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, tt.err.Category)
			}
			if tt.err.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, tt.err.Message)
			}
			if tt.err.Suggestion == "" {
				t.Error("expected a suggestion")
			}
		})
	}
}

func TestConstructorContext(t *testing.T) {
	cause := errors.New("permission denied")
	fileErr := FileError(CodeFilePermission, "/test/medicao.xlsx", cause)
	if fileErr.Context["file_path"] != "/test/medicao.xlsx" || fileErr.Cause != cause {
		t.Errorf("unexpected file error: %+v", fileErr)
	}

	parseErr := ParseError(CodeInvalidData, "medicao_m3", 3, "acerto", "x", nil)
	if parseErr.Context["row"] != 3 || parseErr.Context["column"] != "acerto" || parseErr.Context["value"] != "x" {
		t.Errorf("unexpected parse context: %v", parseErr.Context)
	}

	if _, ok := ConfigurationError(CodeMissingConfig, "period", nil, nil).Context["value"]; ok {
		t.Error("expected no value context for a missing setting")
	}
	if v := ConfigurationError(CodeInvalidConfig, "tax_rate", "1.2", nil).Context["value"]; v != "1.2" {
		t.Errorf("expected value context 1.2, got %v", v)
	}

	pricingErr := PricingError("caminhoes_m3", []string{"AREIA", "PO"})
	if pricingErr.Message != "2 categories did not have their price updated in caminhoes_m3: AREIA, PO" {
		t.Errorf("unexpected pricing message %q", pricingErr.Message)
	}
	if pricingErr.GetExitCode() != 6 {
		t.Errorf("expected exit code 6, got %d", pricingErr.GetExitCode())
	}

	abortErr := AbortError("reconciliation", errors.New("operator quit"))
	if !IsCategory(abortErr, CategoryAborted) || abortErr.Context["stage"] != "reconciliation" {
		t.Errorf("unexpected abort error: %+v", abortErr)
	}
	if AbortError("pricing", nil).Cause != nil {
		t.Error("expected an abort without cause")
	}
}

func TestAsSettlementError(t *testing.T) {
	settlementErr := New(CategoryFile, CodeFileNotFound, "test")
	wrapped := fmt.Errorf("loading: %w", settlementErr)
	genericErr := errors.New("generic error")

	if extracted, ok := AsSettlementError(wrapped); !ok || extracted != settlementErr {
		t.Error("expected AsSettlementError to extract from a wrapped chain")
	}
	if _, ok := AsSettlementError(genericErr); ok {
		t.Error("expected AsSettlementError to return false for generic error")
	}
	if _, ok := AsSettlementError(nil); ok {
		t.Error("expected AsSettlementError to return false for nil")
	}
	if IsSettlementError(wrapped) {
		t.Error("expected IsSettlementError to look at the error itself only")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	settlementErr := New(CategoryFile, CodeFileNotFound, "test")
	genericErr := errors.New("generic error")

	if result := WrapIfNeeded(settlementErr, CategoryParse, CodeInvalidFormat, "wrapped"); result != settlementErr {
		t.Error("expected WrapIfNeeded to return original SettlementError")
	}

	result := WrapIfNeeded(genericErr, CategoryParse, CodeInvalidFormat, "wrapped")
	if result.Cause != genericErr || result.Category != CategoryParse {
		t.Errorf("expected WrapIfNeeded to wrap generic error, got %+v", result)
	}

	if WrapIfNeeded(nil, CategoryParse, CodeInvalidFormat, "wrapped") != nil {
		t.Error("expected WrapIfNeeded to return nil for nil input")
	}
}

func TestRootCause(t *testing.T) {
	cause := errors.New("no space left on device")
	err := fmt.Errorf("writing: %w", FileError(CodeDirectoryError, "CA", cause))

	if RootCause(err) != cause {
		t.Errorf("expected root cause %v, got %v", cause, RootCause(err))
	}
	if RootCause(nil) != nil {
		t.Error("expected nil root cause for nil")
	}
}
