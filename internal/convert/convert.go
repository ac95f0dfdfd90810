// Package convert holds one conversion strategy per recipe type. Every
// strategy runs the same base conversion (units plus baker's ratios) and then
// adds its own notes and a fixed table of stage timings.
package convert

import (
	"fmt"
	"log/slog"

	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/units"
)

// Converter converts a classified draft into the target unit system.
type Converter interface {
	Type() recipe.Type
	Convert(d recipe.Draft, system recipe.UnitSystem) recipe.ConversionResult
}

// Base is the unit and ratio conversion shared by every strategy.
type Base struct {
	units  *units.Converter
	logger *slog.Logger
}

// NewBase creates the shared conversion step.
func NewBase(logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{units: units.NewConverter(logger), logger: logger}
}

// Converted is the output of the base step before a strategy decorates it.
type Converted struct {
	Draft             recipe.Draft
	BakersPercentages map[string]float64
	Hydration         float64

	// Approximated lists ingredients left in their original units because
	// no conversion exists for them.
	Approximated []string
}

// Run validates the draft, converts every parsed ingredient and computes
// ratios from the unconverted quantities. The input draft is not modified.
func (b *Base) Run(d recipe.Draft, system recipe.UnitSystem) (Converted, *recipe.Error) {
	if len(d.Ingredients) == 0 && len(d.Instructions) == 0 {
		return Converted{}, recipe.ParsingFailed(recipe.SourceConvert, fmt.Errorf("draft has no ingredients and no instructions"))
	}
	if len(d.Ingredients) == 0 {
		return Converted{}, recipe.ConversionFailed("no ingredients were found", nil)
	}
	if !hasUsableLine(d.Ingredients) {
		return Converted{}, recipe.ConversionFailed("no ingredient has a usable quantity", nil)
	}

	out := Converted{
		Draft:             d.Clone(),
		BakersPercentages: units.BakersPercentages(d.Ingredients),
		Hydration:         units.Hydration(d.Ingredients),
	}
	for i, ing := range out.Draft.Ingredients {
		if !ing.IsParsed() || ing.Unit() == "" {
			continue
		}
		if system == recipe.UnitsOriginal || system == "" {
			continue
		}
		value, unit, ok := b.units.ToSystem(ing.Quantity(), ing.Unit(), system)
		if !ok {
			out.Approximated = append(out.Approximated, ing.Name())
			b.logger.Debug("ingredient left in original units", "ingredient", ing.Name(), "unit", ing.Unit(), "system", system)
			continue
		}
		out.Draft.Ingredients[i] = ing.WithQuantity(value, unit)
	}
	return out, nil
}

// hasUsableLine reports whether any ingredient is raw text or carries a
// positive quantity.
func hasUsableLine(ings []recipe.Ingredient) bool {
	for _, ing := range ings {
		if !ing.IsParsed() || ing.Quantity() > 0 {
			return true
		}
	}
	return false
}

// Stage is one named step with a conventional duration.
type Stage struct {
	Name     string
	Duration string
}

// Strategy is a Converter built from the base step, a timing table and a
// note generator.
type Strategy struct {
	typ    recipe.Type
	base   *Base
	stages []Stage
	notes  func(c Converted) []string
}

// Type returns the recipe type the strategy handles.
func (s *Strategy) Type() recipe.Type { return s.typ }

// Stages returns the strategy's timing table in order.
func (s *Strategy) Stages() []Stage { return append([]Stage(nil), s.stages...) }

// Convert runs the base step and decorates the result. Failures return a
// result with Success false and no converted draft.
func (s *Strategy) Convert(d recipe.Draft, system recipe.UnitSystem) recipe.ConversionResult {
	c, err := s.base.Run(d, system)
	if err != nil {
		s.base.logger.Info("conversion failed", "type", s.typ, "kind", err.Kind, "error", err.Message)
		return recipe.Failed(err)
	}

	c.Draft.Type = s.typ
	if s.notes != nil {
		c.Draft.Notes = append(c.Draft.Notes, s.notes(c)...)
	}

	res := recipe.Succeeded(s.typ, c.Draft)
	if len(c.BakersPercentages) > 0 {
		res.BakersPercentages = c.BakersPercentages
	}
	res.Hydration = c.Hydration
	if len(s.stages) > 0 {
		res.Timings = make(map[string]string, len(s.stages))
		for _, st := range s.stages {
			res.Timings[st.Name] = st.Duration
		}
	}
	return res
}
