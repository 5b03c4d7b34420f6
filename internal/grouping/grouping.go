// Package grouping partitions the measurement records of a period by
// organizational unit and indexes which units each vehicle worked for.
//
// The grouping is the ground truth the reconciler consults when attributing
// fuel records: a vehicle that has measurement records belongs to the units
// listed in the vehicle index. Fuel data is never consulted here.
package grouping

import (
	"sort"
	"strconv"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"
)

// Grouping is the immutable partition of a period's measurement records
type Grouping struct {
	// order holds unit ids in settlement order
	order []string

	// byUnit maps unit ids to their records, in input order
	byUnit map[string][]*models.MeasurementRecord

	// sequence maps unit ids to their smallest sequence code
	sequence map[string]string

	// vehicleUnits maps vehicle ids to the units they appear under, in unit order
	vehicleUnits map[string][]string

	// vehicleCounts maps vehicle and unit to the number of records
	vehicleCounts map[string]map[string]int
}

// New groups records by unit. It fails only when records is empty.
func New(records []*models.MeasurementRecord) (*Grouping, error) {
	if len(records) == 0 {
		return nil, errors.ValidationError(errors.CodeEmptyDataset, "measurement", 0, nil)
	}

	g := &Grouping{
		byUnit:        make(map[string][]*models.MeasurementRecord),
		sequence:      make(map[string]string),
		vehicleUnits:  make(map[string][]string),
		vehicleCounts: make(map[string]map[string]int),
	}

	var firstSeen []string
	for _, rec := range records {
		if _, exists := g.byUnit[rec.Unit]; !exists {
			firstSeen = append(firstSeen, rec.Unit)
		}
		g.byUnit[rec.Unit] = append(g.byUnit[rec.Unit], rec)

		if rec.Sequence != "" {
			if current, ok := g.sequence[rec.Unit]; !ok || compareSequence(rec.Sequence, current) < 0 {
				g.sequence[rec.Unit] = rec.Sequence
			}
		}

		counts, ok := g.vehicleCounts[rec.Vehicle]
		if !ok {
			counts = make(map[string]int)
			g.vehicleCounts[rec.Vehicle] = counts
		}
		counts[rec.Unit]++
	}

	g.order = g.sortUnits(firstSeen)
	g.buildVehicleIndex()

	return g, nil
}

// sortUnits orders units by their smallest sequence code; units without one
// follow in order of first appearance.
func (g *Grouping) sortUnits(firstSeen []string) []string {
	order := make([]string, len(firstSeen))
	copy(order, firstSeen)

	sort.SliceStable(order, func(i, j int) bool {
		si, iok := g.sequence[order[i]]
		sj, jok := g.sequence[order[j]]
		switch {
		case iok && jok:
			return compareSequence(si, sj) < 0
		case iok:
			return true
		default:
			return false
		}
	})

	return order
}

func (g *Grouping) buildVehicleIndex() {
	position := make(map[string]int, len(g.order))
	for i, unit := range g.order {
		position[unit] = i
	}

	for vehicle, counts := range g.vehicleCounts {
		units := make([]string, 0, len(counts))
		for unit := range counts {
			units = append(units, unit)
		}
		sort.Slice(units, func(i, j int) bool {
			return position[units[i]] < position[units[j]]
		})
		g.vehicleUnits[vehicle] = units
	}
}

// compareSequence compares two sequence codes numerically when both are
// integers and lexically otherwise.
func compareSequence(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Units returns the unit ids in settlement order
func (g *Grouping) Units() []string {
	units := make([]string, len(g.order))
	copy(units, g.order)
	return units
}

// Records returns the measurement records of a unit
func (g *Grouping) Records(unit string) []*models.MeasurementRecord {
	return g.byUnit[unit]
}

// Sequence returns the smallest sequence code of a unit, or "" when it has none
func (g *Grouping) Sequence(unit string) string {
	return g.sequence[unit]
}

// HasUnit reports whether unit has measurement records
func (g *Grouping) HasUnit(unit string) bool {
	_, ok := g.byUnit[unit]
	return ok
}

// UnitsForVehicle returns every unit the vehicle has measurement records under
func (g *Grouping) UnitsForVehicle(vehicle string) []string {
	return g.vehicleUnits[vehicle]
}

// HasVehicle reports whether the vehicle has measurement records
func (g *Grouping) HasVehicle(vehicle string) bool {
	_, ok := g.vehicleUnits[vehicle]
	return ok
}

// OwningUnit returns the unit holding most of the vehicle's measurement
// records, ties broken by settlement order.
func (g *Grouping) OwningUnit(vehicle string) (string, bool) {
	units := g.vehicleUnits[vehicle]
	if len(units) == 0 {
		return "", false
	}

	owner := units[0]
	best := g.vehicleCounts[vehicle][owner]
	for _, unit := range units[1:] {
		if n := g.vehicleCounts[vehicle][unit]; n > best {
			owner, best = unit, n
		}
	}
	return owner, true
}

// RecordCount returns the number of grouped measurement records
func (g *Grouping) RecordCount() int {
	total := 0
	for _, records := range g.byUnit {
		total += len(records)
	}
	return total
}
