// Package reconciler attributes fuel records to organizational units.
//
// Every distinct vehicle found in the fuel records is resolved by the first
// tier that succeeds:
//
//  1. Direct lookup: the vehicle has measurement records, so it belongs to
//     the unit holding most of them.
//  2. Pattern extraction: the first descriptor observed for the vehicle
//     contains a unit-shaped token (e.g. "CA-12") naming a known unit.
//  3. Operator resolution: an injected Operator is asked for the unit.
//
// Each tier produces its own immutable resolution map; the maps are merged
// into the final Result. Vehicles left after tier 3 become unresolved
// ("unproductive") vehicles with their summed fuel cost.
package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"fleet-settlement-service/internal/grouping"
	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// DefaultUnitPattern extracts unit identifiers such as "CA-12"
const DefaultUnitPattern = `CA-\d+`

// Tier identifies how a vehicle was attributed
type Tier int

const (
	TierUnresolved Tier = iota
	TierDirect
	TierPattern
	TierOperator
)

// String returns the string representation of Tier
func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierPattern:
		return "pattern"
	case TierOperator:
		return "operator"
	default:
		return "unresolved"
	}
}

// Config holds configuration options for the reconciler
type Config struct {
	// UnitPattern is the regular expression matched against fuel descriptors
	UnitPattern string
}

// DefaultConfig returns a default configuration for the reconciler
func DefaultConfig() *Config {
	return &Config{UnitPattern: DefaultUnitPattern}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.UnitPattern) == "" {
		return fmt.Errorf("unit pattern cannot be empty")
	}
	if _, err := regexp.Compile(c.UnitPattern); err != nil {
		return fmt.Errorf("invalid unit pattern %q: %w", c.UnitPattern, err)
	}
	return nil
}

// Resolution records the outcome for one vehicle
type Resolution struct {
	Vehicle string `json:"vehicle"`
	Unit    string `json:"unit,omitempty"`
	Tier    Tier   `json:"tier"`
}

// Result contains the outcome of reconciling a period's fuel records
type Result struct {
	// Resolutions has one entry per distinct fuel vehicle, sorted by vehicle
	Resolutions []Resolution

	// Assigned maps unit ids to their fuel records, in input order
	Assigned map[string][]*models.FuelRecord

	// Unresolved has one entry per vehicle no tier could attribute, sorted by vehicle
	Unresolved []models.UnresolvedVehicle

	// FuelOnlyUnits lists units created by operator answers that have no
	// measurement records, in order of resolution
	FuelOnlyUnits []string
}

// FuelFor returns the fuel records assigned to unit
func (r *Result) FuelFor(unit string) []*models.FuelRecord {
	return r.Assigned[unit]
}

// TierCount returns the number of vehicles resolved by tier
func (r *Result) TierCount(tier Tier) int {
	n := 0
	for _, res := range r.Resolutions {
		if res.Tier == tier {
			n++
		}
	}
	return n
}

// Reconciler resolves fuel vehicles to units
type Reconciler struct {
	config   *Config
	pattern  *regexp.Regexp
	operator Operator
	logger   logger.Logger
}

// NewReconciler creates a reconciler. A nil operator declines every prompt.
func NewReconciler(config *Config, operator Operator) (*Reconciler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "unit_pattern", config.UnitPattern, err)
	}
	if operator == nil {
		operator = Decline
	}

	return &Reconciler{
		config:   config,
		pattern:  regexp.MustCompile(config.UnitPattern),
		operator: operator,
		logger:   logger.GetGlobalLogger().WithComponent("reconciler"),
	}, nil
}

// fuelIndex is the per-vehicle view of the fuel records
type fuelIndex struct {
	vehicles    []string
	descriptors map[string][]string
}

func indexFuel(fuel []*models.FuelRecord) fuelIndex {
	idx := fuelIndex{descriptors: make(map[string][]string)}
	seen := make(map[string]map[string]bool)

	for _, rec := range fuel {
		described, ok := seen[rec.Vehicle]
		if !ok {
			described = make(map[string]bool)
			seen[rec.Vehicle] = described
			idx.vehicles = append(idx.vehicles, rec.Vehicle)
		}
		// blank descriptors never count as the vehicle's first descriptor
		desc := strings.TrimSpace(rec.Descriptor)
		if desc != "" && !described[desc] {
			described[desc] = true
			idx.descriptors[rec.Vehicle] = append(idx.descriptors[rec.Vehicle], desc)
		}
	}

	sort.Strings(idx.vehicles)
	return idx
}

// Reconcile attributes every fuel record to a unit of g or to the unresolved list.
// Operator errors abort the run and no partial result is returned.
func (r *Reconciler) Reconcile(ctx context.Context, g *grouping.Grouping, fuel []*models.FuelRecord) (*Result, error) {
	if len(fuel) == 0 {
		r.logger.Info("No fuel records for the period, skipping reconciliation")
		return &Result{Assigned: make(map[string][]*models.FuelRecord)}, nil
	}

	idx := indexFuel(fuel)

	direct, pending := r.directTier(g, idx.vehicles)
	pattern, pending := r.patternTier(g, idx, pending)
	manual, pending, err := r.operatorTier(ctx, g, idx, pending)
	if err != nil {
		return nil, err
	}

	resolved := merge(direct, pattern, manual)
	result := r.assemble(g, idx, fuel, resolved)

	r.logger.WithFields(logger.Fields{
		"vehicles":   len(idx.vehicles),
		"direct":     len(direct),
		"pattern":    len(pattern),
		"operator":   len(manual),
		"unresolved": len(pending),
	}).Info("Reconciled fuel vehicles")

	return result, nil
}

func (r *Reconciler) directTier(g *grouping.Grouping, vehicles []string) (map[string]Resolution, []string) {
	resolved := make(map[string]Resolution)
	var pending []string

	for _, vehicle := range vehicles {
		unit, ok := g.OwningUnit(vehicle)
		if !ok {
			pending = append(pending, vehicle)
			continue
		}
		if units := g.UnitsForVehicle(vehicle); len(units) > 1 {
			r.logger.WithFields(logger.Fields{
				"vehicle": vehicle,
				"units":   units,
				"owner":   unit,
			}).Warn("Vehicle worked for several units, fuel goes to the owning unit")
		}
		resolved[vehicle] = Resolution{Vehicle: vehicle, Unit: unit, Tier: TierDirect}
	}

	return resolved, pending
}

func (r *Reconciler) patternTier(g *grouping.Grouping, idx fuelIndex, vehicles []string) (map[string]Resolution, []string) {
	resolved := make(map[string]Resolution)
	var pending []string

	for _, vehicle := range vehicles {
		token := r.extractUnit(idx.descriptors[vehicle])
		if token == "" || !g.HasUnit(token) {
			pending = append(pending, vehicle)
			continue
		}
		r.logger.WithFields(logger.Fields{
			"vehicle": vehicle,
			"unit":    token,
		}).Debug("Resolved vehicle from descriptor")
		resolved[vehicle] = Resolution{Vehicle: vehicle, Unit: token, Tier: TierPattern}
	}

	return resolved, pending
}

// extractUnit applies the unit pattern to the first observed descriptor
func (r *Reconciler) extractUnit(descriptors []string) string {
	if len(descriptors) == 0 {
		return ""
	}
	return r.pattern.FindString(descriptors[0])
}

func (r *Reconciler) operatorTier(ctx context.Context, g *grouping.Grouping, idx fuelIndex, vehicles []string) (map[string]Resolution, []string, error) {
	resolved := make(map[string]Resolution)
	if len(vehicles) == 0 {
		return resolved, nil, nil
	}

	known := g.Units()
	if b, ok := r.operator.(Briefer); ok {
		if err := b.Brief(ctx, known, vehicles); err != nil {
			return nil, nil, r.operatorError(err)
		}
	}

	var pending []string
	for _, vehicle := range vehicles {
		if err := ctx.Err(); err != nil {
			return nil, nil, r.operatorError(err)
		}

		unit, ok, err := r.operator.Resolve(ctx, Query{
			Vehicle:     vehicle,
			Descriptors: idx.descriptors[vehicle],
			KnownUnits:  known,
		})
		if err != nil {
			return nil, nil, r.operatorError(err)
		}

		unit = strings.TrimSpace(unit)
		if !ok || unit == "" {
			pending = append(pending, vehicle)
			continue
		}

		if !g.HasUnit(unit) {
			r.logger.WithFields(logger.Fields{
				"vehicle": vehicle,
				"unit":    unit,
			}).Warn("Operator assigned vehicle to a unit without measurements")
		}
		resolved[vehicle] = Resolution{Vehicle: vehicle, Unit: unit, Tier: TierOperator}
	}

	return resolved, pending, nil
}

func (r *Reconciler) operatorError(err error) error {
	if stderrors.Is(err, ErrAborted) || stderrors.Is(err, context.Canceled) {
		return errors.AbortError("vehicle resolution", err)
	}
	return errors.ReconciliationError(errors.CodeResolutionFailed, "operator resolution", err)
}

// merge folds tier maps into one; the tiers are disjoint by construction
func merge(tiers ...map[string]Resolution) map[string]Resolution {
	merged := make(map[string]Resolution)
	for _, tier := range tiers {
		for vehicle, res := range tier {
			merged[vehicle] = res
		}
	}
	return merged
}

func (r *Reconciler) assemble(g *grouping.Grouping, idx fuelIndex, fuel []*models.FuelRecord, resolved map[string]Resolution) *Result {
	result := &Result{Assigned: make(map[string][]*models.FuelRecord)}

	fuelOnly := make(map[string]bool)
	for _, vehicle := range idx.vehicles {
		res, ok := resolved[vehicle]
		if !ok {
			res = Resolution{Vehicle: vehicle, Tier: TierUnresolved}
		} else if !g.HasUnit(res.Unit) && !fuelOnly[res.Unit] {
			fuelOnly[res.Unit] = true
			result.FuelOnlyUnits = append(result.FuelOnlyUnits, res.Unit)
		}
		result.Resolutions = append(result.Resolutions, res)
	}

	totals := make(map[string]decimal.Decimal)
	counts := make(map[string]int)
	for _, rec := range fuel {
		if res, ok := resolved[rec.Vehicle]; ok {
			result.Assigned[res.Unit] = append(result.Assigned[res.Unit], rec)
			continue
		}
		totals[rec.Vehicle] = totals[rec.Vehicle].Add(rec.Total)
		counts[rec.Vehicle]++
	}

	for _, vehicle := range idx.vehicles {
		if _, ok := resolved[vehicle]; ok {
			continue
		}
		result.Unresolved = append(result.Unresolved, models.UnresolvedVehicle{
			Vehicle: vehicle,
			Total:   models.RoundMoney(totals[vehicle]),
			Records: counts[vehicle],
		})
	}

	return result
}
