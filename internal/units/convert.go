// Package units converts quantities between mass and volume units and
// computes baker's ratios.
package units

import (
	"log/slog"
	"strings"
)

// Dimension groups units that can be converted into one another.
type Dimension int

const (
	DimensionNone Dimension = iota
	DimensionMass
	DimensionVolume
)

func (d Dimension) String() string {
	switch d {
	case DimensionMass:
		return "mass"
	case DimensionVolume:
		return "volume"
	default:
		return "none"
	}
}

// Canonical unit names.
const (
	Gram       = "g"
	Kilogram   = "kg"
	Ounce      = "oz"
	Pound      = "lb"
	Milliliter = "ml"
	Liter      = "l"
	FluidOunce = "fl oz"
	Cup        = "cup"
	Quart      = "qt"
	Pint       = "pt"
	Gallon     = "gal"
	Teaspoon   = "tsp"
	Tablespoon = "tbsp"
)

var dimensions = map[string]Dimension{
	Gram: DimensionMass, Kilogram: DimensionMass, Ounce: DimensionMass, Pound: DimensionMass,
	Milliliter: DimensionVolume, Liter: DimensionVolume, FluidOunce: DimensionVolume,
	Cup: DimensionVolume, Quart: DimensionVolume, Pint: DimensionVolume, Gallon: DimensionVolume,
	Teaspoon: DimensionVolume, Tablespoon: DimensionVolume,
}

var aliases = map[string]string{
	"g": Gram, "gr": Gram, "gram": Gram, "grams": Gram, "gramme": Gram, "grammes": Gram,
	"kg": Kilogram, "kgs": Kilogram, "kilo": Kilogram, "kilos": Kilogram, "kilogram": Kilogram, "kilograms": Kilogram,
	"oz": Ounce, "ounce": Ounce, "ounces": Ounce,
	"lb": Pound, "lbs": Pound, "pound": Pound, "pounds": Pound,
	"ml": Milliliter, "mls": Milliliter, "milliliter": Milliliter, "milliliters": Milliliter, "millilitre": Milliliter, "millilitres": Milliliter,
	"l": Liter, "liter": Liter, "liters": Liter, "litre": Liter, "litres": Liter,
	"fl oz": FluidOunce, "floz": FluidOunce, "fl. oz": FluidOunce, "fluid ounce": FluidOunce, "fluid ounces": FluidOunce,
	"cup": Cup, "cups": Cup, "c": Cup,
	"qt": Quart, "qts": Quart, "quart": Quart, "quarts": Quart,
	"pt": Pint, "pint": Pint, "pints": Pint,
	"gal": Gallon, "gallon": Gallon, "gallons": Gallon,
	"tsp": Teaspoon, "tsps": Teaspoon, "teaspoon": Teaspoon, "teaspoons": Teaspoon,
	"tbsp": Tablespoon, "tbsps": Tablespoon, "tbs": Tablespoon, "tablespoon": Tablespoon, "tablespoons": Tablespoon,
}

// Canonicalize maps a unit spelling to its canonical name. Unknown units
// are returned lower-cased and trimmed, with ok=false.
func Canonicalize(unit string) (string, bool) {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	u = strings.Join(strings.Fields(u), " ")
	if c, ok := aliases[u]; ok {
		return c, true
	}
	return u, false
}

// DimensionOf returns the dimension of a unit, or DimensionNone when unknown.
func DimensionOf(unit string) Dimension {
	c, _ := Canonicalize(unit)
	return dimensions[c]
}

// Known reports whether unit is a recognised unit.
func Known(unit string) bool {
	_, ok := Canonicalize(unit)
	return ok
}

type pair struct{ from, to string }

// factors holds one direction of every explicit conversion. The reverse is
// registered as the reciprocal, so round trips are exact up to float error.
var factors = []struct {
	from, to string
	factor   float64
}{
	// Mass.
	{Gram, Ounce, 1 / 28.349523125},
	{Kilogram, Pound, 1 / 0.45359237},
	{Kilogram, Gram, 1000},
	{Pound, Gram, 453.59237},
	{Pound, Ounce, 16},

	// Volume.
	{Milliliter, FluidOunce, 1 / 29.5735295625},
	{Liter, Quart, 1 / 0.946352946},
	{Cup, Milliliter, 236.5882365},
	{Liter, Milliliter, 1000},
	{Quart, Milliliter, 946.352946},
	{Pint, Milliliter, 473.176473},
	{Gallon, Milliliter, 3785.411784},
	{Teaspoon, Milliliter, 4.92892159375},
	{Tablespoon, Milliliter, 14.78676478125},
	{Cup, FluidOunce, 8},
	{Tablespoon, Teaspoon, 3},
}

var table = buildTable()

func buildTable() map[pair]float64 {
	t := make(map[pair]float64, len(factors)*2)
	for _, f := range factors {
		t[pair{f.from, f.to}] = f.factor
		t[pair{f.to, f.from}] = 1 / f.factor
	}
	return t
}

// Converter performs table-driven unit conversion. It never fails: pairs it
// cannot resolve are passed through unchanged with a warning.
type Converter struct {
	logger *slog.Logger
}

// NewConverter creates a converter. A nil logger uses slog.Default().
func NewConverter(logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{logger: logger}
}

// Convert converts value from one unit to another. Unsupported pairs return
// value unchanged.
func (c *Converter) Convert(value float64, from, to string) float64 {
	out, ok := c.TryConvert(value, from, to)
	if !ok {
		c.logger.Warn("unsupported unit conversion, passing value through",
			"from", from, "to", to, "value", value)
	}
	return out
}

// TryConvert is Convert without the warning; ok reports whether a factor was found.
func (c *Converter) TryConvert(value float64, from, to string) (float64, bool) {
	f, ok := Factor(from, to)
	if !ok {
		return value, false
	}
	return value * f, true
}

// Factor returns the multiplier from one unit to another: direct when the
// table has the pair, otherwise through one intermediate unit.
func Factor(from, to string) (float64, bool) {
	a, _ := Canonicalize(from)
	b, _ := Canonicalize(to)
	if a == b {
		return 1, dimensions[a] != DimensionNone
	}
	if f, ok := table[pair{a, b}]; ok {
		return f, true
	}
	// Two hops through a common unit, e.g. cup -> ml -> fl oz.
	for p, first := range table {
		if p.from != a {
			continue
		}
		if second, ok := table[pair{p.to, b}]; ok {
			return first * second, true
		}
	}
	return 0, false
}

var defaultConverter = NewConverter(nil)

// Convert converts using a converter that logs to slog.Default().
func Convert(value float64, from, to string) float64 {
	return defaultConverter.Convert(value, from, to)
}
