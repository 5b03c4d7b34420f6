package reporter

import (
	"context"
	"strings"

	"fleet-settlement-service/internal/settlement"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with input validation, error
// wrapping and a PDF fallback
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator
func NewSafeReportGenerator(config *ReportConfig) (*SafeReportGenerator, error) {
	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the output format and the report column layout")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          logger.GetGlobalLogger().WithComponent("reporter"),
	}, nil
}

// Generate validates the settlement and writes the reports. When PDF
// rendering fails the reports are written again without PDFs, so the
// spreadsheets and statements are still delivered.
func (srg *SafeReportGenerator) Generate(ctx context.Context, s *settlement.Settlement) (*Output, error) {
	if err := srg.validateInputs(s); err != nil {
		srg.logger.WithError(err).Error("Invalid input for report generation")
		return nil, err
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"units":  len(s.Units),
		"output": srg.config.OutputDir,
	}).Info("Starting report generation")

	out, err := srg.ReportGenerator.Generate(ctx, s)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, errors.AbortError("reporting", err)
	}

	if srg.shouldAttemptPDFFallback(err) {
		srg.logger.WithError(err).Warn("PDF rendering failed, writing reports without PDFs")

		fallback := *srg.config
		fallback.DisablePDF = true
		generator := &ReportGenerator{config: &fallback, logger: srg.logger}
		if out, retryErr := generator.Generate(ctx, s); retryErr == nil {
			return out, nil
		}
	}

	return out, srg.wrapGenerationError(err)
}

// validateInputs validates the settlement before anything is written
func (srg *SafeReportGenerator) validateInputs(s *settlement.Settlement) error {
	if s == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"settlement",
			nil,
			nil,
		).WithSuggestion("Run the settlement before generating reports")
	}

	if s.Summary == nil {
		return errors.ValidationError(
			errors.CodeMissingField,
			"summary",
			nil,
			nil,
		).WithSuggestion("Ensure the settlement includes a period summary")
	}

	return nil
}

// shouldAttemptPDFFallback reports whether err came from a PDF export
func (srg *SafeReportGenerator) shouldAttemptPDFFallback(err error) bool {
	if !srg.config.wantsPDF() || isSpaceError(err) {
		return false
	}
	settlementErr, ok := errors.AsSettlementError(err)
	if !ok {
		return false
	}
	path, _ := settlementErr.Context["file_path"].(string)
	return strings.HasSuffix(path, ".pdf")
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if settlementErr, ok := errors.AsSettlementError(err); ok {
		if isSpaceError(err) {
			settlementErr.WithSuggestion("Free disk space on the output volume and run again")
		}
		return settlementErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if cause := errors.RootCause(err); cause != nil {
		msg += " " + cause.Error()
	}
	return strings.Contains(msg, "no space left") ||
		strings.Contains(msg, "disk full") ||
		strings.Contains(msg, "device full")
}
