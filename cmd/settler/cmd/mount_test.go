package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fleet-settlement-service/cmd/settler/config"
	"fleet-settlement-service/internal/parsers"
	"fleet-settlement-service/internal/reconciler"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const measurementCSV = "Placa,CA,Cod1,Material,M3,Acerto,Data,Km Inicial\n" +
	"ABC-1234,CA-1,1,BRITA 1,10,1,2017-03-02,100\n" +
	"ABC-1234,CA-1,1,BRITA 1,5,1,2017-03-03,150\n" +
	"DEF5678,CA-2,2,AREIA,4,1,2017-03-04,10\n"

const fuelCSV = "Placa,Prefixo Marca,Tipo de Combustível,Qtd,Data\n" +
	"ABC1234,,DIESEL,2,2017-03-02\n" +
	"GHI0001,CA-2 caminhao,DIESEL,1,2017-03-05\n" +
	"JKL0002,,DIESEL,2,2017-03-05\n" +
	"MNO0003,,DIESEL,1,2017-03-06\n"

// writePeriod writes the sample sources to dir and returns the parsed period
func writePeriod(t *testing.T, dir string, extraPacks string) *config.Period {
	t.Helper()

	measurements := filepath.Join(dir, "medicao.csv")
	fuel := filepath.Join(dir, "combustivel.csv")
	if err := os.WriteFile(measurements, []byte(measurementCSV), 0644); err != nil {
		t.Fatalf("failed to create measurement file: %v", err)
	}
	if err := os.WriteFile(fuel, []byte(fuelCSV), 0644); err != nil {
		t.Fatalf("failed to create fuel file: %v", err)
	}

	content := fmt.Sprintf(`
period: "2017-03:1"
start: "2017-03-01"
end: "2017-03-15"
packs:
  agregados: [BRITA 1]
  diesel: [DIESEL]
%s
measurements:
  - name: medicao_m3
    kind: m3
    files: [%q]
    prices:
      agregados: 3
%s
fuel:
  - name: combustivel
    files: [%q]
    prices:
      diesel: 3.5
report:
  output: %q
`, extraPacks, measurements, pricedAreia(extraPacks), fuel, filepath.Join(dir, "CA"))

	p, err := config.Parse([]byte(content))
	if err != nil {
		t.Fatalf("failed to parse period: %v", err)
	}
	return p
}

func pricedAreia(extraPacks string) string {
	if extraPacks == "" {
		return ""
	}
	return "      areia: 2.5"
}

func quietLogs(t *testing.T) {
	t.Helper()
	previous := logger.GetGlobalLogger()
	logger.SetGlobalLogger(logger.Discard())
	t.Cleanup(func() { logger.SetGlobalLogger(previous) })
}

func TestValidateFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "period.yaml")
	if err := os.WriteFile(validFile, []byte("period: x"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
	}{
		{"valid file", validFile, false},
		{"empty path", "", true},
		{"non-existent file", "/non/existent/period.yaml", true},
		{"directory instead of file", tmpDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "period file")

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseAssignments(t *testing.T) {
	assigned, err := parseAssignments([]string{"abc-1234=CA-12", " XYZ 9876 = CA-3 "})
	if err != nil {
		t.Fatalf("parseAssignments() unexpected error: %v", err)
	}
	if assigned["abc1234"] != "CA-12" || assigned["XYZ9876"] != "CA-3" {
		t.Errorf("unexpected assignments: %v", assigned)
	}

	for _, pair := range []string{"ABC1234", "=CA-1", "ABC1234=", "--=CA-1"} {
		if _, err := parseAssignments([]string{pair}); err == nil {
			t.Errorf("expected error for %q", pair)
		}
	}
}

func TestMount_NonInteractive(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	period := writePeriod(t, dir, "  areia: [AREIA]")

	var out bytes.Buffer
	result, err := mount(context.Background(), &mountOptions{
		Period:         period,
		Format:         "text",
		Assignments:    reconciler.MapOperator{"JKL0002": "CA-9"},
		NonInteractive: true,
		MetricsFile:    filepath.Join(dir, "settler.prom"),
		Out:            &out,
	})
	if err != nil {
		t.Fatalf("mount() unexpected error: %v", err)
	}

	expected := map[string]string{
		"CA-1": "36.48",
		"CA-2": "6.24",
		"CA-9": "-7.00",
	}
	if len(result.Settlement.Units) != len(expected) {
		t.Fatalf("expected %d units, got %d", len(expected), len(result.Settlement.Units))
	}
	for id, net := range expected {
		unit, ok := result.Settlement.Unit(id)
		if !ok {
			t.Errorf("expected unit %s in the settlement", id)
			continue
		}
		if unit.Net.StringFixed(2) != net {
			t.Errorf("expected %s net %s, got %s", id, net, unit.Net.StringFixed(2))
		}
	}

	summary := result.Settlement.Summary
	if !summary.Gross.Equal(decimal.NewFromInt(55)) {
		t.Errorf("expected gross 55, got %s", summary.Gross)
	}
	if len(summary.Unresolved) != 1 || summary.Unresolved[0].Vehicle != "MNO0003" {
		t.Errorf("expected MNO0003 unresolved, got %+v", summary.Unresolved)
	}

	for _, name := range []string{"summaries/CA-1.txt", "summaries/CA-9.txt", "period_summary.txt"} {
		if _, err := os.Stat(filepath.Join(dir, "CA", name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "CA", "summary.json")); !os.IsNotExist(err) {
		t.Error("text format should not write summary.json")
	}

	printed := out.String()
	for _, line := range []string{
		"Run " + result.RunID,
		"Units settled: 3",
		"Total (CA): R$ 55.00",
		"Total líquido: R$ 35.72",
		"Vehicles without a unit: 1 (R$ 3.50)",
	} {
		if !strings.Contains(printed, line) {
			t.Errorf("expected summary to contain %q, got:\n%s", line, printed)
		}
	}

	metrics, err := os.ReadFile(filepath.Join(dir, "settler.prom"))
	if err != nil {
		t.Fatalf("failed to read metrics file: %v", err)
	}
	if !strings.Contains(string(metrics), fmt.Sprintf(`settler_units{run_id=%q} 3`, result.RunID)) {
		t.Errorf("expected unit gauge in metrics, got:\n%s", metrics)
	}
}

func TestMount_Interactive(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	period := writePeriod(t, dir, "  areia: [AREIA]")

	var prompt, out bytes.Buffer
	result, err := mount(context.Background(), &mountOptions{
		Period:      period,
		Output:      filepath.Join(dir, "json"),
		Format:      "json",
		Assignments: reconciler.MapOperator{},
		In:          strings.NewReader("n\ny\nCA-2\n"),
		Prompt:      &prompt,
		Out:         &out,
	})
	if err != nil {
		t.Fatalf("mount() unexpected error: %v", err)
	}

	unit, _ := result.Settlement.Unit("CA-2")
	if len(unit.Fuel) != 2 {
		t.Errorf("expected the operator answer to add fuel to CA-2, got %d records", len(unit.Fuel))
	}
	if len(result.Settlement.Summary.Unresolved) != 1 {
		t.Errorf("expected the declined vehicle to stay unresolved, got %+v", result.Settlement.Summary.Unresolved)
	}
	if !strings.Contains(prompt.String(), "Is there a matching unit for MNO0003?") {
		t.Errorf("expected the operator to be asked about MNO0003, got:\n%s", prompt.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "json", "summary.json")); err != nil {
		t.Errorf("expected summary.json in the output override: %v", err)
	}
}

func TestMount_OperatorAbort(t *testing.T) {
	quietLogs(t)
	period := writePeriod(t, t.TempDir(), "  areia: [AREIA]")
	output := t.TempDir()

	_, err := mount(context.Background(), &mountOptions{
		Period:      period,
		Output:      output,
		Format:      "text",
		Assignments: reconciler.MapOperator{},
		In:          strings.NewReader("q\n"),
		Prompt:      &bytes.Buffer{},
		Out:         &bytes.Buffer{},
	})
	if !errors.IsCategory(err, errors.CategoryAborted) {
		t.Fatalf("expected aborted error, got %v", err)
	}

	entries, err := os.ReadDir(output)
	if err != nil {
		t.Fatalf("failed to read output directory: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected nothing written after an abort, found %d entries", len(entries))
	}
}

func TestMount_Unpriced(t *testing.T) {
	quietLogs(t)

	t.Run("non-interactive stops", func(t *testing.T) {
		period := writePeriod(t, t.TempDir(), "")
		_, err := mount(context.Background(), &mountOptions{
			Period:         period,
			Format:         "text",
			NonInteractive: true,
			Out:            &bytes.Buffer{},
		})
		if !errors.IsCategory(err, errors.CategoryPricing) {
			t.Fatalf("expected pricing error, got %v", err)
		}
	})

	t.Run("operator declines", func(t *testing.T) {
		period := writePeriod(t, t.TempDir(), "")
		_, err := mount(context.Background(), &mountOptions{
			Period: period,
			Format: "text",
			In:     strings.NewReader("\n"),
			Prompt: &bytes.Buffer{},
			Out:    &bytes.Buffer{},
		})
		if !errors.IsCategory(err, errors.CategoryPricing) {
			t.Fatalf("expected pricing error, got %v", err)
		}
	})

	t.Run("allowed", func(t *testing.T) {
		period := writePeriod(t, t.TempDir(), "")
		result, err := mount(context.Background(), &mountOptions{
			Period:         period,
			Format:         "text",
			NonInteractive: true,
			AllowUnpriced:  true,
			Out:            &bytes.Buffer{},
		})
		if err != nil {
			t.Fatalf("mount() unexpected error: %v", err)
		}
		unit, _ := result.Settlement.Unit("CA-2")
		if !unit.Gross.IsZero() {
			t.Errorf("expected unpriced AREIA to keep its missing source price, got gross %s", unit.Gross)
		}
	})
}

func TestMount_TableSource(t *testing.T) {
	quietLogs(t)
	dir := t.TempDir()
	dsn := filepath.Join(dir, "sources.db")

	db, err := parsers.OpenDatabase(context.Background(), parsers.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE medicao_ton (placa TEXT, ca TEXT, cod1 INTEGER, material TEXT, ton REAL, acerto REAL, data TEXT, period TEXT)`,
		`INSERT INTO medicao_ton VALUES ('AAA1111', 'CA-7', 7, 'PEDRA', 2, 1, '2017-03-02', '2017-03:1')`,
		`INSERT INTO medicao_ton VALUES ('AAA1111', 'CA-7', 7, 'PEDRA', 3, 1, '2017-03-20', '2017-03:2')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec(%q) error: %v", stmt, err)
		}
	}
	db.Close()

	period, err := config.Parse([]byte(fmt.Sprintf(`
period: "2017-03:1"
database:
  driver: sqlite3
  dsn: %q
filters:
  period: "2017-03:1"
packs:
  pedra: [PEDRA]
measurements:
  - name: medicao_ton
    kind: ton
    table: medicao_ton
    prices:
      pedra: 4
report:
  output: %q
  format: json
`, dsn, filepath.Join(dir, "CA"))))
	if err != nil {
		t.Fatalf("failed to parse period: %v", err)
	}

	result, err := mount(context.Background(), &mountOptions{
		Period:         period,
		NonInteractive: true,
		Out:            &bytes.Buffer{},
	})
	if err != nil {
		t.Fatalf("mount() unexpected error: %v", err)
	}

	unit, ok := result.Settlement.Unit("CA-7")
	if !ok {
		t.Fatal("expected unit CA-7")
	}
	if len(unit.Measurements) != 1 || !unit.Gross.Equal(decimal.NewFromInt(8)) {
		t.Errorf("expected the filtered row only, got %d records and gross %s", len(unit.Measurements), unit.Gross)
	}
}

func TestResolvePeriodFile_Environment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2017-03-1.yaml")
	if err := os.WriteFile(path, []byte("period: 2017-03:1\n"), 0o644); err != nil {
		t.Fatalf("failed to write period file: %v", err)
	}
	saved := periodFile
	t.Cleanup(func() { periodFile = saved })

	viper.SetEnvPrefix("SETTLER")
	viper.AutomaticEnv()
	t.Setenv("SETTLER_PERIOD", path)

	for _, c := range []*cobra.Command{mountCmd, checkCmd} {
		periodFile = ""
		if err := resolvePeriodFile(c); err != nil {
			t.Fatalf("%s: unexpected error: %v", c.Name(), err)
		}
		if periodFile != path {
			t.Errorf("%s: expected period file %s from the environment, got %q", c.Name(), path, periodFile)
		}
	}

	t.Setenv("SETTLER_PERIOD", filepath.Join(dir, "missing.yaml"))
	if err := resolvePeriodFile(checkCmd); err == nil {
		t.Error("expected an error for a missing period file")
	}
}

func TestCheck(t *testing.T) {
	quietLogs(t)

	var out bytes.Buffer
	if err := check(context.Background(), writePeriod(t, t.TempDir(), "  areia: [AREIA]"), &out); err != nil {
		t.Fatalf("check() unexpected error: %v", err)
	}
	for _, line := range []string{"Period: 2017-03:1", "Measurement records: 3", "Fuel records: 4", "Every category is priced."} {
		if !strings.Contains(out.String(), line) {
			t.Errorf("expected output to contain %q, got:\n%s", line, out.String())
		}
	}

	out.Reset()
	err := check(context.Background(), writePeriod(t, t.TempDir(), ""), &out)
	if !errors.IsCategory(err, errors.CategoryPricing) {
		t.Fatalf("expected pricing error, got %v", err)
	}
	if !strings.Contains(out.String(), "medicao_m3: AREIA") {
		t.Errorf("expected the unpriced category to be listed, got:\n%s", out.String())
	}
}

func TestCLIErrorHandler(t *testing.T) {
	quietLogs(t)

	tests := []struct {
		name     string
		err      error
		exitCode int
		contains string
	}{
		{"nil", nil, 0, ""},
		{"file", errors.FileError(errors.CodeFileNotFound, "medicao.csv", os.ErrNotExist), 2, "File error help"},
		{"configuration", errors.ConfigurationError(errors.CodeMissingConfig, "period", nil, nil), 4, "Configuration error help"},
		{"pricing", errors.PricingError("medicao_m3", []string{"AREIA"}), 6, "Pricing error help"},
		{"operator abort", reconciler.ErrAborted, 7, "The run stopped before completing"},
		{"interrupted", context.Canceled, 7, "Run the command again"},
		{"generic missing file", fmt.Errorf("open x: no such file or directory"), 2, "Check if the file path is correct"},
		{"generic", fmt.Errorf("boom"), 1, "Run with --verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := &CLIErrorHandler{logger: logger.Discard(), out: &out}

			if code := h.HandleError(tt.err); code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			if !strings.Contains(out.String(), tt.contains) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.contains, out.String())
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.0", "abc123", "2017-03-16")
	defer SetVersionInfo("dev", "unknown", "unknown")

	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if out.String() != "settler 1.2.0\n" {
		t.Errorf("unexpected version output: %q", out.String())
	}
}
