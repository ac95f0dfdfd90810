package units

import (
	"bytes"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/jackzampolin/larder/internal/recipe"
)

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*math.Max(1, math.Abs(b))
}

func TestConvertDirectPairs(t *testing.T) {
	tests := []struct {
		from, to string
		in, want float64
	}{
		{"g", "oz", 28.349523125, 1},
		{"oz", "g", 1, 28.349523125},
		{"kg", "lb", 1, 2.20462262},
		{"lb", "kg", 1, 0.45359237},
		{"ml", "fl oz", 29.5735295625, 1},
		{"fl oz", "ml", 1, 29.5735295625},
		{"l", "qt", 0.946352946, 1},
		{"qt", "l", 1, 0.946352946},
		{"cup", "ml", 1, 236.5882365},
		{"ml", "cup", 236.5882365, 1},
		{"grams", "ounces", 28.349523125, 1},
		{"Cups", "ML", 2, 473.176473},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			got := Convert(tt.in, tt.from, tt.to)
			if !approx(got, tt.want, 1e-6) {
				t.Errorf("Convert(%v, %q, %q) = %v, want %v", tt.in, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConvertTwoHop(t *testing.T) {
	tests := []struct {
		from, to string
		in, want float64
	}{
		{"cup", "fl oz", 1, 8},
		{"kg", "oz", 1, 35.27396195},
		{"tsp", "cup", 48, 1},
		{"qt", "ml", 1, 946.352946},
		{"lb", "g", 1, 453.59237},
		{"tbsp", "l", 1000.0 / 14.78676478125, 1},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			got, ok := NewConverter(nil).TryConvert(tt.in, tt.from, tt.to)
			if !ok {
				t.Fatalf("TryConvert(%q, %q) found no path", tt.from, tt.to)
			}
			if !approx(got, tt.want, 1e-6) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvertRoundTrip(t *testing.T) {
	units := []string{Gram, Kilogram, Ounce, Pound, Milliliter, Liter, FluidOunce, Cup, Quart, Pint, Gallon, Teaspoon, Tablespoon}
	values := []float64{0.25, 1, 3.5, 500, 12345.678}
	for _, a := range units {
		for _, b := range units {
			if DimensionOf(a) != DimensionOf(b) {
				continue
			}
			for _, x := range values {
				there := Convert(x, a, b)
				back := Convert(there, b, a)
				if !approx(back, x, 1e-9) {
					t.Errorf("round trip %s->%s->%s: %v became %v", a, b, a, x, back)
				}
			}
		}
	}
}

func TestConvertUnsupportedPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	c := NewConverter(slog.New(slog.NewTextHandler(&buf, nil)))

	got := c.Convert(3, "cup", "g")
	if got != 3 {
		t.Errorf("Convert() = %v, want unchanged 3", got)
	}
	if !strings.Contains(buf.String(), "unsupported unit conversion") {
		t.Errorf("expected a warning, log was %q", buf.String())
	}

	if got := c.Convert(2, "pinch", "handful"); got != 2 {
		t.Errorf("unknown units should pass through, got %v", got)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in       string
		want     float64
		wantRest string
		ok       bool
	}{
		{"500g bread flour", 500, "g bread flour", true},
		{"1 1/2 cups milk", 1.5, "cups milk", true},
		{"3/4 tsp salt", 0.75, "tsp salt", true},
		{"1.5 kg potatoes", 1.5, "kg potatoes", true},
		{"2,5 dl water", 2.5, "dl water", true},
		{"1,5 l milk", 1.5, "l milk", true},
		{"1,000 g bread flour", 1000, "g bread flour", true},
		{"1,000g bread flour", 1000, "g bread flour", true},
		{"12,500.5 g flour", 12500.5, "g flour", true},
		{"1,2345 kg salt", 1.2345, "kg salt", true},
		{"1,000-1,200 g flour", 1000, "g flour", true},
		{"2-3 cloves garlic", 2, "cloves garlic", true},
		{"2 to 3 tbsp oil", 2, "tbsp oil", true},
		{"2 tomatoes", 2, "tomatoes", true},
		{"a pinch of salt", 0, "a pinch of salt", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, rest, ok := ParseQuantity(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !approx(got, tt.want, 1e-9) {
				t.Errorf("quantity = %v, want %v", got, tt.want)
			}
			if rest != tt.wantRest {
				t.Errorf("rest = %q, want %q", rest, tt.wantRest)
			}
		})
	}
}

func TestSplitUnit(t *testing.T) {
	tests := []struct {
		in, unit, name string
	}{
		{"g bread flour", "g", "bread flour"},
		{"cups of flour", "cup", "flour"},
		{"fl oz cream", "fl oz", "cream"},
		{"Tablespoons olive oil", "tbsp", "olive oil"},
		{"eggs", "", "eggs"},
		{"large eggs", "", "large eggs"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			unit, name := SplitUnit(tt.in)
			if unit != tt.unit || name != tt.name {
				t.Errorf("SplitUnit(%q) = (%q, %q), want (%q, %q)", tt.in, unit, name, tt.unit, tt.name)
			}
		})
	}
}

func TestHydration(t *testing.T) {
	t.Run("500g flour 350g water is 70", func(t *testing.T) {
		got := Hydration([]recipe.Ingredient{
			recipe.Parsed("flour", 500, "g"),
			recipe.Parsed("water", 350, "g"),
		})
		if got != 70.0 {
			t.Errorf("Hydration() = %v, want 70.0", got)
		}
	})

	t.Run("no flour is zero", func(t *testing.T) {
		got := Hydration([]recipe.Ingredient{recipe.Parsed("water", 350, "g")})
		if got != 0 {
			t.Errorf("Hydration() = %v, want 0", got)
		}
	})

	t.Run("mixed units and raw lines", func(t *testing.T) {
		got := Hydration([]recipe.Ingredient{
			recipe.Parsed("bread flour", 1, "kg"),
			recipe.Parsed("warm water", 750, "ml"),
			recipe.Raw("a handful of seeds"),
		})
		if got != 75.0 {
			t.Errorf("Hydration() = %v, want 75.0", got)
		}
	})
}

func TestBakersPercentages(t *testing.T) {
	t.Run("flour entries sum to 100", func(t *testing.T) {
		pct := BakersPercentages([]recipe.Ingredient{
			recipe.Parsed("bread flour", 400, "g"),
			recipe.Parsed("whole wheat flour", 100, "g"),
			recipe.Parsed("water", 350, "g"),
			recipe.Parsed("salt", 10, "g"),
		})
		sum := pct["bread flour"] + pct["whole wheat flour"]
		if math.Abs(sum-100) > 0.1 {
			t.Errorf("flour percentages sum to %v", sum)
		}
		if pct["water"] != 70 {
			t.Errorf("water = %v, want 70", pct["water"])
		}
		if pct["salt"] != 2 {
			t.Errorf("salt = %v, want 2", pct["salt"])
		}
	})

	t.Run("uneven flours still sum to about 100", func(t *testing.T) {
		pct := BakersPercentages([]recipe.Ingredient{
			recipe.Parsed("rye flour", 1, "oz"),
			recipe.Parsed("spelt flour", 2, "oz"),
			recipe.Parsed("bread flour", 3.3, "oz"),
		})
		sum := pct["rye flour"] + pct["spelt flour"] + pct["bread flour"]
		if math.Abs(sum-100) > 0.15 {
			t.Errorf("flour percentages sum to %v", sum)
		}
	})

	t.Run("no flour is empty", func(t *testing.T) {
		pct := BakersPercentages([]recipe.Ingredient{recipe.Parsed("sugar", 100, "g")})
		if len(pct) != 0 {
			t.Errorf("expected empty map, got %v", pct)
		}
	})
}

func TestToSystem(t *testing.T) {
	c := NewConverter(nil)
	tests := []struct {
		name     string
		value    float64
		unit     string
		system   recipe.UnitSystem
		want     float64
		wantUnit string
	}{
		{"cups to ml", 1, "cup", recipe.UnitsMetric, 237, "ml"},
		{"lb to kg", 2.5, "lb", recipe.UnitsMetric, 1.13, "kg"},
		{"grams to ounces", 100, "g", recipe.UnitsImperial, 3.5, "oz"},
		{"grams to pounds", 1000, "g", recipe.UnitsImperial, 2.2, "lb"},
		{"ml to cups", 250, "ml", recipe.UnitsImperial, 1.06, "cup"},
		{"teaspoons stay", 2, "tsp", recipe.UnitsMetric, 2, "tsp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, unit, ok := c.ToSystem(tt.value, tt.unit, tt.system)
			if !ok {
				t.Fatal("ToSystem() not ok")
			}
			if unit != tt.wantUnit || !approx(got, tt.want, 1e-9) {
				t.Errorf("ToSystem() = %v %s, want %v %s", got, unit, tt.want, tt.wantUnit)
			}
		})
	}

	if _, unit, ok := c.ToSystem(3, "pinch", recipe.UnitsMetric); ok || unit != "pinch" {
		t.Errorf("unknown unit should be returned unchanged, got %q ok=%v", unit, ok)
	}
}
