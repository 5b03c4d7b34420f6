package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"fleet-settlement-service/cmd/settler/config"
	"fleet-settlement-service/pkg/errors"

	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and price the sources of a period without settling it",
	Long: `Check reads every source of a period, decodes and prices the records and
reports how many were loaded per source. Categories that no pack prices are
listed and make the command fail, so a period file can be fixed before the
settlement is mounted.

Examples:
  settler check --period 2017-03-1.yaml`,

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return resolvePeriodFile(cmd)
	},
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVarP(&periodFile, "period", "p", "", "period definition file (required)")
	checkCmd.MarkFlagRequired("period")
}

func runCheck(cmd *cobra.Command, args []string) error {
	period, err := config.Load(periodFile)
	if err != nil {
		return err
	}
	return check(cmd.Context(), period, cmd.OutOrStdout())
}

// check loads the period and writes a per-source report to w
func check(ctx context.Context, period *config.Period, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	loader, err := newSourceLoader(ctx, period)
	if err != nil {
		return err
	}
	defer loader.Close()

	loaded, err := loader.Load(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Period: %s\n\n", period.Tag)
	for _, fs := range loaded.Stats {
		fmt.Fprintf(w, "%-12s %s\n", fs.Family, fs.Stats)
	}
	fmt.Fprintf(w, "\nMeasurement records: %d\n", len(loaded.Measurements))
	fmt.Fprintf(w, "Fuel records: %d\n", len(loaded.Fuel))

	if len(loaded.Unpriced) == 0 {
		fmt.Fprintf(w, "\nEvery category is priced.\n")
		return nil
	}

	fmt.Fprintf(w, "\nUnpriced categories:\n")
	for _, u := range loaded.Unpriced {
		fmt.Fprintf(w, "  %s: %s\n", u.Source, strings.Join(u.Categories, ", "))
	}

	first := loaded.Unpriced[0]
	return errors.PricingError(first.Source, first.Categories).
		WithContext("sources", len(loaded.Unpriced))
}
