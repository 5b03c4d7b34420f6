package reconciler

import (
	"context"
	stderrors "errors"
	"testing"

	"fleet-settlement-service/internal/grouping"
	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedOperator answers from a table and records every vehicle it was asked about
type scriptedOperator struct {
	answers map[string]string
	asked   []string
	briefed []string
	err     error
}

func (s *scriptedOperator) Resolve(_ context.Context, q Query) (string, bool, error) {
	s.asked = append(s.asked, q.Vehicle)
	if s.err != nil {
		return "", false, s.err
	}
	unit, ok := s.answers[q.Vehicle]
	return unit, ok, nil
}

func (s *scriptedOperator) Brief(_ context.Context, _, pending []string) error {
	s.briefed = append(s.briefed, pending...)
	return nil
}

func measurement(vehicle, unit, sequence string) *models.MeasurementRecord {
	return &models.MeasurementRecord{Vehicle: vehicle, Unit: unit, Sequence: sequence}
}

func fuelRecord(vehicle, descriptor, total string) *models.FuelRecord {
	return &models.FuelRecord{Vehicle: vehicle, Descriptor: descriptor, Total: decimal.RequireFromString(total)}
}

func mustGroup(t *testing.T, records ...*models.MeasurementRecord) *grouping.Grouping {
	t.Helper()
	g, err := grouping.New(records)
	require.NoError(t, err)
	return g
}

func mustReconciler(t *testing.T, pattern string, op Operator) *Reconciler {
	t.Helper()
	config := DefaultConfig()
	if pattern != "" {
		config.UnitPattern = pattern
	}
	r, err := NewReconciler(config, op)
	require.NoError(t, err)
	return r
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		wantErr bool
	}{
		{"default", DefaultUnitPattern, false},
		{"custom", `UNIT-\d+`, false},
		{"empty", "  ", true},
		{"bad regex", `CA-(\d+`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Config{UnitPattern: tt.pattern}).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := NewReconciler(&Config{UnitPattern: "("}, nil)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestReconcile_DirectLookup(t *testing.T) {
	g := mustGroup(t, measurement("V1", "U1", "1"), measurement("V1", "U1", "1"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V1", "CA-9 somewhere", "30.00"),
	})
	require.NoError(t, err)

	require.Len(t, result.FuelFor("U1"), 1)
	assert.Empty(t, result.Unresolved)
	assert.Empty(t, op.asked)
	assert.Equal(t, []Resolution{{Vehicle: "V1", Unit: "U1", Tier: TierDirect}}, result.Resolutions)
}

func TestReconcile_PatternTierSkipsOperator(t *testing.T) {
	g := mustGroup(t, measurement("V1", "UNIT-7", "7"))
	op := &scriptedOperator{}
	r := mustReconciler(t, `UNIT-\d+`, op)

	fuel := fuelRecord("V9", "UNIT-7 garage", "12.50")
	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{fuel})
	require.NoError(t, err)

	assert.Equal(t, []*models.FuelRecord{fuel}, result.FuelFor("UNIT-7"))
	assert.Empty(t, op.asked, "no operator prompt occurs")
	assert.Empty(t, op.briefed)
	assert.Equal(t, 1, result.TierCount(TierPattern))
	assert.Empty(t, result.Unresolved)
}

func TestReconcile_PatternUsesFirstDescriptorOnly(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"), measurement("V2", "CA-2", "2"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V9", "posto central", "10"),
		fuelRecord("V9", "CA-2 obra", "10"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"V9"}, op.asked)
	require.Len(t, result.Unresolved, 1)
	assert.True(t, result.Unresolved[0].Total.Equal(decimal.NewFromInt(20)))
}

func TestReconcile_BlankDescriptorsAreSkipped(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"), measurement("V2", "CA-2", "2"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V9", "  ", "10"),
		fuelRecord("V9", "frota CA-2", "5"),
	})
	require.NoError(t, err)

	assert.Empty(t, op.asked)
	assert.Len(t, result.FuelFor("CA-2"), 2)
	assert.Equal(t, []Resolution{{Vehicle: "V9", Unit: "CA-2", Tier: TierPattern}}, result.Resolutions)
}

func TestReconcile_PatternTokenMustBeKnown(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	_, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V9", "CA-99 oficina", "10"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"V9"}, op.asked)
}

func TestReconcile_OperatorDeclines(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V5", "", "10.10"),
		fuelRecord("V1", "", "3.00"),
		fuelRecord("V5", "posto", "5.05"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"V5"}, op.briefed)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "V5", result.Unresolved[0].Vehicle)
	assert.True(t, result.Unresolved[0].Total.Equal(decimal.RequireFromString("15.15")))
	assert.Equal(t, 2, result.Unresolved[0].Records)

	for unit, records := range result.Assigned {
		for _, rec := range records {
			assert.NotEqual(t, "V5", rec.Vehicle, "unresolved fuel must not reach unit %s", unit)
		}
	}
}

func TestReconcile_OperatorCreatesFuelOnlyUnit(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{answers: map[string]string{"V7": "CA-40", "V8": "CA-1"}}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V7", "", "20"),
		fuelRecord("V8", "", "5"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"CA-40"}, result.FuelOnlyUnits)
	assert.Len(t, result.FuelFor("CA-40"), 1)
	assert.Len(t, result.FuelFor("CA-1"), 1)
	assert.Equal(t, 2, result.TierCount(TierOperator))
}

func TestReconcile_EmptyAnswerLeavesVehicleUnresolved(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{answers: map[string]string{"V7": "   "}}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{fuelRecord("V7", "", "20")})
	require.NoError(t, err)
	require.Len(t, result.Unresolved, 1)
	assert.Empty(t, result.FuelOnlyUnits)
}

func TestReconcile_TierOrdering(t *testing.T) {
	g := mustGroup(t,
		measurement("V1", "CA-1", "1"),
		measurement("V2", "CA-2", "2"),
	)
	op := &scriptedOperator{answers: map[string]string{"V1": "CA-2", "V8": "CA-1"}}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{
		fuelRecord("V8", "", "1"),
		fuelRecord("V1", "CA-2 misleading", "1"),
		fuelRecord("V3", "CA-2 patio", "1"),
		fuelRecord("V2", "", "1"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"V8"}, op.asked, "resolvable vehicles never reach the operator")
	assert.Equal(t, []Resolution{
		{Vehicle: "V1", Unit: "CA-1", Tier: TierDirect},
		{Vehicle: "V2", Unit: "CA-2", Tier: TierDirect},
		{Vehicle: "V3", Unit: "CA-2", Tier: TierPattern},
		{Vehicle: "V8", Unit: "CA-1", Tier: TierOperator},
	}, result.Resolutions)
}

func TestReconcile_FuelExclusivity(t *testing.T) {
	g := mustGroup(t,
		measurement("V1", "CA-1", "1"),
		measurement("V1", "CA-2", "2"),
		measurement("V1", "CA-2", "2"),
	)
	r := mustReconciler(t, "", nil)

	fuel := []*models.FuelRecord{
		fuelRecord("V1", "", "1"),
		fuelRecord("V1", "", "2"),
		fuelRecord("V4", "", "3"),
		fuelRecord("V4", "CA-1", "4"),
	}
	result, err := r.Reconcile(context.Background(), g, fuel)
	require.NoError(t, err)

	seen := make(map[*models.FuelRecord]int)
	for _, records := range result.Assigned {
		for _, rec := range records {
			seen[rec]++
		}
	}
	unresolvedCount := 0
	for _, u := range result.Unresolved {
		unresolvedCount += u.Records
	}

	assert.Equal(t, len(fuel), len(seen)+unresolvedCount)
	for rec, n := range seen {
		assert.Equal(t, 1, n, "fuel record %v assigned more than once", rec)
	}
	assert.Len(t, result.FuelFor("CA-2"), 2, "V1 belongs to the unit holding most of its records")
}

func TestReconcile_EmptyFuelSkipsTiers(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Resolutions)
	assert.Empty(t, result.Unresolved)
	assert.Empty(t, result.Assigned)
	assert.Empty(t, op.asked)
	assert.Empty(t, op.briefed)
}

func TestReconcile_OperatorAbort(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{err: ErrAborted}
	r := mustReconciler(t, "", op)

	result, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{fuelRecord("V5", "", "1")})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsCategory(err, errors.CategoryAborted))
	assert.True(t, stderrors.Is(err, ErrAborted))
}

func TestReconcile_OperatorFailure(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"))
	op := &scriptedOperator{err: stderrors.New("terminal gone")}
	r := mustReconciler(t, "", op)

	_, err := r.Reconcile(context.Background(), g, []*models.FuelRecord{fuelRecord("V5", "", "1")})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryReconciliation))
}

func TestReconcile_Deterministic(t *testing.T) {
	g := mustGroup(t, measurement("V1", "CA-1", "1"), measurement("V2", "CA-2", "2"))
	fuel := []*models.FuelRecord{
		fuelRecord("V3", "CA-2", "1"),
		fuelRecord("V2", "", "2"),
		fuelRecord("V9", "", "3"),
		fuelRecord("V1", "", "4"),
	}
	r := mustReconciler(t, "", nil)

	first, err := r.Reconcile(context.Background(), g, fuel)
	require.NoError(t, err)
	second, err := r.Reconcile(context.Background(), g, fuel)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestChain(t *testing.T) {
	first := MapOperator{"V1": "CA-1", "V2": ""}
	second := &scriptedOperator{answers: map[string]string{"V2": "CA-2"}}
	op := Chain(first, second)

	unit, ok, err := op.Resolve(context.Background(), Query{Vehicle: "V1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CA-1", unit)

	unit, ok, err = op.Resolve(context.Background(), Query{Vehicle: "V2"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "CA-2", unit)

	_, ok, err = op.Resolve(context.Background(), Query{Vehicle: "V3"})
	require.NoError(t, err)
	assert.False(t, ok)

	briefer, isBriefer := op.(Briefer)
	require.True(t, isBriefer)
	require.NoError(t, briefer.Brief(context.Background(), nil, []string{"V3"}))
	assert.Equal(t, []string{"V3"}, second.briefed)
}
