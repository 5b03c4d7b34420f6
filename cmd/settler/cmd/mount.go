package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"fleet-settlement-service/cmd/settler/config"
	"fleet-settlement-service/internal/metrics"
	"fleet-settlement-service/internal/parsers"
	"fleet-settlement-service/internal/pricing"
	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/internal/reporter"
	"fleet-settlement-service/internal/settlement"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the mount command
var (
	periodFile     string
	outputDir      string
	outputFormat   string
	nonInteractive bool
	assignments    []string
	allowUnpriced  bool
	crlf           bool
	metricsFile    string
)

// mountCmd represents the mount command
var mountCmd = &cobra.Command{
	Use:   "mount",
	Short: "Mount the settlement of a period",
	Long: `Mount loads the measurement and fuel sources of a period, prices them,
attributes fuel to units and writes the unit statements, daily sheets and the
period summary.

Fuel vehicles that neither the measurement records nor the unit pattern can
attribute are asked about on the terminal. Answers given with --assign are
used first; --non-interactive leaves every other such vehicle unresolved.

Examples:
  # Interactive run
  settler mount --period 2017-03-1.yaml

  # Unattended run with known assignments
  settler mount --period 2017-03-1.yaml --non-interactive \
    --assign ABC1234=CA-12 --assign XYZ9876=CA-3

  # Text statements only, with DOS line endings
  settler mount --period 2017-03-1.yaml --format text --crlf

  # Export run metrics for the node exporter
  settler mount --period 2017-03-1.yaml --metrics-file /var/lib/node_exporter/settler.prom`,

	PreRunE: validateMountFlags,
	RunE:    runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)

	mountCmd.Flags().StringVarP(&periodFile, "period", "p", "", "period definition file (required)")
	mountCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: from the period file, or CA)")
	mountCmd.Flags().StringVarP(&outputFormat, "format", "f", "", "output format: all, text, json (default: from the period file, or all)")
	mountCmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt; unresolved vehicles stay unresolved")
	mountCmd.Flags().StringArrayVar(&assignments, "assign", nil, "assign a fuel vehicle to a unit, as PLATE=UNIT (repeatable)")
	mountCmd.Flags().BoolVar(&allowUnpriced, "allow-unpriced", false, "continue when some categories have no price")
	mountCmd.Flags().BoolVar(&crlf, "crlf", false, "write text files with DOS line endings")
	mountCmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write run metrics to this file in text exposition format")

	mountCmd.MarkFlagRequired("period")

	viper.BindPFlag("output", mountCmd.Flags().Lookup("output"))
	viper.BindPFlag("format", mountCmd.Flags().Lookup("format"))
	viper.BindPFlag("non-interactive", mountCmd.Flags().Lookup("non-interactive"))
	viper.BindPFlag("allow-unpriced", mountCmd.Flags().Lookup("allow-unpriced"))
	viper.BindPFlag("crlf", mountCmd.Flags().Lookup("crlf"))
	viper.BindPFlag("metrics-file", mountCmd.Flags().Lookup("metrics-file"))
}

func validateMountFlags(cmd *cobra.Command, args []string) error {
	if err := resolvePeriodFile(cmd); err != nil {
		return err
	}

	// Get values from viper (allows override from config file)
	outputDir = viper.GetString("output")
	outputFormat = viper.GetString("format")
	nonInteractive = viper.GetBool("non-interactive")
	allowUnpriced = viper.GetBool("allow-unpriced")
	crlf = viper.GetBool("crlf")
	metricsFile = viper.GetString("metrics-file")

	if outputFormat != "" && !reporter.OutputFormat(outputFormat).IsValid() {
		return fmt.Errorf("invalid output format '%s'. Valid formats: all, text, json", outputFormat)
	}

	if _, err := parseAssignments(assignments); err != nil {
		return err
	}
	return nil
}

// resolvePeriodFile reads the period path of the running command through
// viper, so SETTLER_PERIOD and the config file apply to every command. The
// key is bound here since mount and check share it.
func resolvePeriodFile(cmd *cobra.Command) error {
	if err := viper.BindPFlag("period", cmd.Flags().Lookup("period")); err != nil {
		return err
	}
	periodFile = viper.GetString("period")
	return validateFileExists(periodFile, "period file")
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}

	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

// parseAssignments parses PLATE=UNIT pairs; plates are normalized like source plates
func parseAssignments(pairs []string) (reconciler.MapOperator, error) {
	assigned := make(reconciler.MapOperator, len(pairs))
	for _, pair := range pairs {
		plate, unit, ok := strings.Cut(pair, "=")
		plate = parsers.NormalizeVehicle(plate)
		unit = strings.TrimSpace(unit)
		if !ok || plate == "" || unit == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected PLATE=UNIT", pair)
		}
		assigned[plate] = unit
	}
	return assigned, nil
}

// mountOptions are the resolved inputs of one mount run
type mountOptions struct {
	Period         *config.Period
	Output         string
	Format         string
	Assignments    reconciler.MapOperator
	NonInteractive bool
	AllowUnpriced  bool
	CRLF           bool
	MetricsFile    string
	In             io.Reader
	Prompt         io.Writer
	Out            io.Writer
}

// mountResult is what a mount run produced
type mountResult struct {
	RunID      string
	Settlement *settlement.Settlement
	Output     *reporter.Output
}

func runMount(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	period, err := config.Load(periodFile)
	if err != nil {
		return err
	}
	assigned, err := parseAssignments(assignments)
	if err != nil {
		return err
	}

	_, err = mount(ctx, &mountOptions{
		Period:         period,
		Output:         outputDir,
		Format:         outputFormat,
		Assignments:    assigned,
		NonInteractive: nonInteractive,
		AllowUnpriced:  allowUnpriced,
		CRLF:           crlf,
		MetricsFile:    metricsFile,
		In:             os.Stdin,
		Prompt:         os.Stderr,
		Out:            cmd.OutOrStdout(),
	})
	return err
}

// mount runs load, price, settle and report for one period
func mount(ctx context.Context, opts *mountOptions) (*mountResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	logger.SetGlobalLogger(logger.GetGlobalLogger().WithField("run_id", runID))
	log := logger.WithComponent("mount")

	log.WithFields(logger.Fields{
		"period":          opts.Period.Tag,
		"non_interactive": opts.NonInteractive,
		"assignments":     len(opts.Assignments),
	}).Info("Starting settlement run")

	loader, err := newSourceLoader(ctx, opts.Period)
	if err != nil {
		return nil, err
	}
	defer loader.Close()

	loaded, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}

	var console *reconciler.ConsoleOperator
	var confirmer pricing.Confirmer
	if !opts.NonInteractive {
		console = reconciler.NewConsoleOperator(opts.In, opts.Prompt)
		confirmer = console
	}

	for _, u := range loaded.Unpriced {
		if err := pricing.CheckUnpriced(ctx, u.Source, u.Categories, opts.AllowUnpriced, confirmer); err != nil {
			return nil, err
		}
	}

	operators := []reconciler.Operator{opts.Assignments}
	if console != nil {
		operators = append(operators, console)
	}

	engine, err := settlement.NewEngine(opts.Period.CreateSettlementConfig(), reconciler.Chain(operators...))
	if err != nil {
		return nil, err
	}

	s, err := engine.Run(ctx, loaded.Measurements, loaded.Fuel)
	if err != nil {
		return nil, err
	}

	reportConfig := opts.Period.CreateReportConfig(opts.Output, opts.Format, runID)
	if opts.CRLF {
		reportConfig.CRLF = true
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig)
	if err != nil {
		return nil, err
	}

	output, err := generator.Generate(ctx, s)
	if err != nil {
		return nil, err
	}

	if opts.MetricsFile != "" {
		m := metrics.New(runID)
		for _, fs := range loaded.Stats {
			m.ObserveSource(fs.Family, fs.Stats)
		}
		m.ObserveSettlement(s)
		m.RunDuration.Set(time.Since(started).Seconds())
		if err := m.WriteFile(opts.MetricsFile); err != nil {
			return nil, errors.FileError(errors.CodeFilePermission, opts.MetricsFile, err)
		}
	}

	printMountSummary(opts.Out, runID, reportConfig, s, output)
	if n := runWarnings.Total(); n > 0 {
		fmt.Fprintf(opts.Out, "Warnings logged: %d\n", n)
	}

	log.WithFields(logger.Fields{
		"units":    len(s.Units),
		"net":      s.Summary.Net.StringFixed(2),
		"duration": time.Since(started).String(),
	}).Info("Settlement run completed")

	return &mountResult{RunID: runID, Settlement: s, Output: output}, nil
}

func printMountSummary(w io.Writer, runID string, config *reporter.ReportConfig, s *settlement.Settlement, output *reporter.Output) {
	fmt.Fprintf(w, "Run %s\n", runID)
	fmt.Fprintf(w, "Units settled: %d\n", len(s.Units))
	fmt.Fprintf(w, "Total (CA): R$ %s\n", s.Summary.Gross.StringFixed(2))
	fmt.Fprintf(w, "Total líquido: R$ %s\n", s.Summary.Net.StringFixed(2))
	if len(s.Summary.Unresolved) > 0 {
		fmt.Fprintf(w, "Vehicles without a unit: %d (R$ %s)\n",
			len(s.Summary.Unresolved), s.Summary.UnresolvedTotal().StringFixed(2))
	}
	fmt.Fprintf(w, "Files written to %s: %d\n", config.OutputDir, len(output.Files))
}
