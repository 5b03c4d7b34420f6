package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/spf13/viper"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for the operator and returns the process exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// An operator abort is a deliberate stop, not a failure
	if errors.Is(err, reconciler.ErrAborted) || errors.Is(err, context.Canceled) {
		if !errors.IsCategory(err, errors.CategoryAborted) {
			err = errors.AbortError("run", err)
		}
	}

	if settlementErr, ok := errors.AsSettlementError(err); ok {
		if settlementErr.Category == errors.CategoryAborted {
			h.logger.WithError(err).Warn("Run aborted")
		} else {
			h.logger.WithError(err).Error("Command failed")
		}
		return h.handleSettlementError(settlementErr)
	}

	h.logger.WithError(err).Error("Command failed")
	return h.handleGenericError(err)
}

// handleSettlementError handles SettlementError with detailed context
func (h *CLIErrorHandler) handleSettlementError(err *errors.SettlementError) int {
	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	if help := h.getCategoryHelp(err.Category); help != "" {
		fmt.Fprintf(h.out, "\n%s\n", help)
	}

	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles errors outside the settlement error taxonomy
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: %v\n", err)
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if !h.verbose {
		fmt.Fprintf(h.out, "\nRun with --verbose for more details\n")
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check that every file listed in the period file exists and is readable
• Use "book.xlsx:Sheet" to select a worksheet other than the first
• For table sources, check the database driver and DSN`

	case errors.CategoryParse:
		return `Parse error help:
• Check the column headers against the required columns of the source
• Add a rename entry when a sheet names a column differently
• Numbers accept "." or "," as decimal separator; dates use YYYY-MM-DD or DD/MM/YYYY`

	case errors.CategoryValidation:
		return `Validation error help:
• Check the period dates and the source filters
• Make sure at least one measurement record falls inside the period`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check the period file syntax and setting names
• Every pack referenced by a price table must be declared under packs
• Use 'settler mount --help' to see all available options`

	case errors.CategoryPricing:
		return `Pricing error help:
• Add the listed categories to a pack that has a price in the source
• Run 'settler check' to list every unpriced category
• Use --allow-unpriced to settle anyway; unpriced records keep their source price`

	case errors.CategoryAborted:
		return "The run stopped before completing. Run the command again to restart the settlement."

	case errors.CategoryReconciliation:
		return `Reconciliation error help:
• Check the operator answers and the unit pattern of the period file
• Use --assign PLATE=UNIT to answer known vehicles up front`

	default:
		return ""
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory") ||
		strings.Contains(err.Error(), "does not exist")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
