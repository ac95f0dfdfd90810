package units

import (
	"math"
	"strings"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Round1 rounds to one decimal place.
func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// Weight is an ingredient flattened to grams.
type Weight struct {
	Name  string
	Grams float64
}

// liquidsByVolume are weighed at 1 g per ml when given as a volume.
var liquidsByVolume = []string{"water", "milk"}

// Flatten converts parsed ingredients to grams. Mass units convert directly;
// water and milk given by volume convert at 1 g/ml. Raw lines and everything
// else that cannot be weighed are skipped.
func Flatten(ingredients []recipe.Ingredient) []Weight {
	out := make([]Weight, 0, len(ingredients))
	for _, ing := range ingredients {
		if !ing.IsParsed() || ing.Quantity() <= 0 {
			continue
		}
		name := strings.ToLower(ing.Name())
		switch DimensionOf(ing.Unit()) {
		case DimensionMass:
			f, ok := Factor(ing.Unit(), Gram)
			if !ok {
				continue
			}
			out = append(out, Weight{Name: name, Grams: ing.Quantity() * f})
		case DimensionVolume:
			if !containsAny(name, liquidsByVolume) {
				continue
			}
			f, ok := Factor(ing.Unit(), Milliliter)
			if !ok {
				continue
			}
			out = append(out, Weight{Name: name, Grams: ing.Quantity() * f})
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func totalWhere(weights []Weight, term string) float64 {
	var total float64
	for _, w := range weights {
		if strings.Contains(w.Name, term) {
			total += w.Grams
		}
	}
	return total
}

// BakersPercentages expresses every weighable ingredient as a percentage of
// total flour weight. Flour entries together sum to 100. Without flour the
// map is empty.
func BakersPercentages(ingredients []recipe.Ingredient) map[string]float64 {
	weights := Flatten(ingredients)
	flour := totalWhere(weights, "flour")
	out := make(map[string]float64)
	if flour <= 0 {
		return out
	}

	byName := make(map[string]float64)
	for _, w := range weights {
		byName[w.Name] += w.Grams
	}
	for name, grams := range byName {
		out[name] = Round1(grams / flour * 100)
	}
	return out
}

// Hydration returns water weight over flour weight as a percentage, or 0
// when there is no flour.
func Hydration(ingredients []recipe.Ingredient) float64 {
	weights := Flatten(ingredients)
	flour := totalWhere(weights, "flour")
	if flour <= 0 {
		return 0
	}
	water := totalWhere(weights, "water")
	return Round1(water/flour*1000) / 10
}
