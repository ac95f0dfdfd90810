package units

import (
	"math"

	"github.com/jackzampolin/larder/internal/recipe"
)

// ToSystem converts a quantity into the preferred unit of the target system.
// Teaspoons and tablespoons are left alone in both systems. ok is false when
// the unit is unknown or the system is "original"; the input is returned.
func (c *Converter) ToSystem(value float64, unit string, system recipe.UnitSystem) (float64, string, bool) {
	canonical, known := Canonicalize(unit)
	if !known || system == recipe.UnitsOriginal || system == "" {
		return value, unit, false
	}
	if canonical == Teaspoon || canonical == Tablespoon {
		return value, canonical, true
	}

	target := preferredUnit(value, canonical, system)
	if target == canonical {
		return roundFor(value, canonical), canonical, true
	}
	out, ok := c.TryConvert(value, canonical, target)
	if !ok {
		return value, unit, false
	}
	return roundFor(out, target), target, true
}

func preferredUnit(value float64, unit string, system recipe.UnitSystem) string {
	switch DimensionOf(unit) {
	case DimensionMass:
		if system == recipe.UnitsMetric {
			grams := value * mustFactor(unit, Gram)
			if grams >= 1000 {
				return Kilogram
			}
			return Gram
		}
		ounces := value * mustFactor(unit, Ounce)
		if ounces >= 16 {
			return Pound
		}
		return Ounce
	case DimensionVolume:
		ml := value * mustFactor(unit, Milliliter)
		if system == recipe.UnitsMetric {
			if ml >= 1000 {
				return Liter
			}
			return Milliliter
		}
		switch {
		case ml >= 4*236.5882365:
			return Quart
		case ml >= 236.5882365/4:
			return Cup
		default:
			return FluidOunce
		}
	}
	return unit
}

func mustFactor(from, to string) float64 {
	f, ok := Factor(from, to)
	if !ok {
		return 1
	}
	return f
}

func roundFor(v float64, unit string) float64 {
	switch unit {
	case Gram, Milliliter:
		return math.Round(v)
	case Teaspoon, Tablespoon, Cup, Quart, Pound, Kilogram, Liter:
		return math.Round(v*100) / 100
	default:
		return Round1(v)
	}
}
