// Package pricing assigns unit prices to decoded records from pack-based
// price tables and recomputes their valuations.
//
// A pack is a named list of categories (materials for measurements, fuel
// types for fuel). A source's price table maps pack names to prices; every
// record whose category belongs to the pack gets that price. Categories that
// no pack covers are reported so the caller can decide whether to go on.
package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fleet-settlement-service/internal/models"
	"fleet-settlement-service/pkg/errors"
	"fleet-settlement-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// EmptyCategory names records without a category in unpriced listings
const EmptyCategory = "(empty)"

// Packs maps pack names to their member categories
type Packs map[string][]string

// PriceRemap replaces a source price on records without a material
type PriceRemap struct {
	From decimal.Decimal
	To   decimal.Decimal
}

// Rules are the pricing rules of one source
type Rules struct {
	// Prices maps pack names to the price of their members
	Prices map[string]decimal.Decimal

	// NullPriceMap remaps the source price of records with no material.
	// When set, prices it does not list become missing.
	NullPriceMap []PriceRemap
}

// Pricer applies price rules against a fixed set of packs
type Pricer struct {
	packs  Packs
	logger logger.Logger
}

// NewPricer creates a pricer over the given packs
func NewPricer(packs Packs) *Pricer {
	return &Pricer{
		packs:  packs,
		logger: logger.GetGlobalLogger().WithComponent("pricing"),
	}
}

// Validate checks that every pack referenced by rules exists
func (p *Pricer) Validate(rules *Rules) error {
	for pack := range rules.Prices {
		if _, ok := p.packs[pack]; !ok {
			return fmt.Errorf("price table references unknown pack %q", pack)
		}
	}
	return nil
}

// priceIndex maps each category to its price; with overlapping packs the
// pack listed last in name order wins
func (p *Pricer) priceIndex(rules *Rules) map[string]decimal.Decimal {
	names := make([]string, 0, len(rules.Prices))
	for pack := range rules.Prices {
		names = append(names, pack)
	}
	sort.Strings(names)

	index := make(map[string]decimal.Decimal)
	for _, pack := range names {
		for _, category := range p.packs[pack] {
			index[strings.TrimSpace(category)] = rules.Prices[pack]
		}
	}
	return index
}

// PriceMeasurements returns priced copies of records and the sorted list of
// materials no pack covers.
func (p *Pricer) PriceMeasurements(source string, records []*models.MeasurementRecord, rules *Rules) ([]*models.MeasurementRecord, []string, error) {
	if err := p.Validate(rules); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "price", source, err)
	}

	index := p.priceIndex(rules)
	unpriced := make(map[string]bool)
	priced := make([]*models.MeasurementRecord, 0, len(records))
	lostPrice := 0

	for _, rec := range records {
		price := rec.Price
		switch {
		case !rec.HasMaterial() && len(rules.NullPriceMap) > 0:
			price = remap(rec.Price, rules.NullPriceMap)
			if !price.Valid {
				lostPrice++
			}
		case !rec.HasMaterial():
		default:
			if value, ok := index[rec.Material]; ok {
				price = decimal.NewNullDecimal(value)
			} else {
				unpriced[rec.Material] = true
			}
		}
		priced = append(priced, rec.WithPrice(price))
	}

	if lostPrice > 0 {
		p.logger.WithFields(logger.Fields{
			"source":  source,
			"records": lostPrice,
		}).Warn("Records without material have a price missing from the null price map")
	}

	return priced, sortedKeys(unpriced), nil
}

// PriceFuel returns priced copies of fuel records and the sorted list of fuel
// types no pack covers.
func (p *Pricer) PriceFuel(source string, records []*models.FuelRecord, rules *Rules) ([]*models.FuelRecord, []string, error) {
	if err := p.Validate(rules); err != nil {
		return nil, nil, errors.ConfigurationError(errors.CodeInvalidConfig, "price", source, err)
	}

	index := p.priceIndex(rules)
	unpriced := make(map[string]bool)
	priced := make([]*models.FuelRecord, 0, len(records))

	for _, rec := range records {
		price := rec.Price
		category := strings.TrimSpace(rec.FuelType)
		if value, ok := index[category]; ok && category != "" {
			price = decimal.NewNullDecimal(value)
		} else if category == "" {
			unpriced[EmptyCategory] = true
		} else {
			unpriced[category] = true
		}
		priced = append(priced, rec.WithPrice(price))
	}

	return priced, sortedKeys(unpriced), nil
}

func remap(price decimal.NullDecimal, remaps []PriceRemap) decimal.NullDecimal {
	if !price.Valid {
		return price
	}
	for _, r := range remaps {
		if r.From.Equal(price.Decimal) {
			return decimal.NewNullDecimal(r.To)
		}
	}
	return decimal.NullDecimal{}
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Confirmer asks the operator a yes/no question
type Confirmer interface {
	Confirm(ctx context.Context, question string, def bool) (bool, error)
}

// CheckUnpriced decides what happens to a source with unpriced categories.
// With allow set the run goes on with a warning; otherwise the confirmer is
// asked, and without one the run stops.
func CheckUnpriced(ctx context.Context, source string, unpriced []string, allow bool, confirmer Confirmer) error {
	if len(unpriced) == 0 {
		return nil
	}

	log := logger.GetGlobalLogger().WithComponent("pricing").WithFields(logger.Fields{
		"source":     source,
		"categories": unpriced,
	})

	if allow {
		log.Warn("Categories did not have their price updated, continuing")
		return nil
	}
	if confirmer == nil {
		return errors.PricingError(source, unpriced)
	}

	question := fmt.Sprintf("%d categories did not have their price updated in %s:\n\t%s\nContinue?",
		len(unpriced), source, strings.Join(unpriced, "\n\t"))
	ok, err := confirmer.Confirm(ctx, question, false)
	if err != nil {
		return errors.AbortError("pricing", err)
	}
	if !ok {
		return errors.PricingError(source, unpriced)
	}

	log.Warn("Operator accepted unpriced categories")
	return nil
}
