package normalize

import (
	"strings"
	"testing"
)

func TestNormalizeFractionAndCupRepair(t *testing.T) {
	res := Normalize("l/2 cup5 flour")
	if !strings.Contains(res.Text, "1/2 cup flour") {
		t.Errorf("Normalize() = %q, want it to contain %q", res.Text, "1/2 cup flour")
	}
	if !res.Fixes.Has(FixFractions) || !res.Fixes.Has(FixMeasurements) {
		t.Errorf("fixes = %s, want fractions and measurements", res.Fixes)
	}
}

func TestWhitespace(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"crlf", "a\r\nb\rc", "a\nb\nc"},
		{"collapse spaces", "2   cups\t\tflour", "2 cups flour"},
		{"cap blank runs", "a\n\n\n\n b", "a\n\nb"},
		{"blank lines with spaces", "a\n   \n  \n\nb", "a\n\nb"},
		{"nbsp", "2\u00a0cups", "2 cups"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Whitespace(tt.in); got != tt.want {
				t.Errorf("Whitespace(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFractions(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"lowercase l", "l/2 tsp salt", "1/2 tsp salt"},
		{"capital I", "I/4 cup", "1/4 cup"},
		{"vulgar", "½ cup milk", "1/2 cup milk"},
		{"mixed number", "1½ cups", "1 1/2 cups"},
		{"three quarters", "¾ tsp", "3/4 tsp"},
		{"ml untouched", "250ml/2 bowls", "250ml/2 bowls"},
		{"fraction slash", "1\u20443 cup", "1/3 cup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Fractions(tt.in); got != tt.want {
				t.Errorf("Fractions(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMeasurements(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"glued grams", "500g bread flour", "500 g bread flour"},
		{"cup5", "2 cup5 sugar", "2 cups sugar"},
		{"zero oz", "8 0z butter", "8 oz butter"},
		{"glued zero oz", "40z cheese", "4 oz cheese"},
		{"tbps", "2 tbps oil", "2 tbsp oil"},
		{"upper case unit", "2 Tbsp honey", "2 tbsp honey"},
		{"singular after half", "1/2 cups milk", "1/2 cup milk"},
		{"mixed stays plural", "1 1/2 cups milk", "1 1/2 cups milk"},
		{"plural stays plural", "3 cups water", "3 cups water"},
		{"words untouched", "2 large eggs", "2 large eggs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Measurements(tt.in); got != tt.want {
				t.Errorf("Measurements(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestHeaders(t *testing.T) {
	t.Run("synonyms become canonical blocks", func(t *testing.T) {
		in := "Bread\nYou will need:\n500 g flour\nMethod\n1. Mix"
		want := "Bread\n\nINGREDIENTS:\n\n500 g flour\n\nINSTRUCTIONS:\n\n1. Mix"
		if got := Headers(in); got != want {
			t.Errorf("Headers() = %q, want %q", got, want)
		}
	})

	t.Run("inline time value stays on the header", func(t *testing.T) {
		got := Headers("Prep time: 10 min")
		if got != "PREP TIME: 10 min" {
			t.Errorf("Headers() = %q", got)
		}
	})

	t.Run("list value moves to its own line", func(t *testing.T) {
		got := Headers("Ingredients: flour, water")
		if got != "INGREDIENTS:\n\nflour, water" {
			t.Errorf("Headers() = %q", got)
		}
	})

	t.Run("markdown decoration", func(t *testing.T) {
		got := Headers("## Directions")
		if got != "INSTRUCTIONS:" {
			t.Errorf("Headers() = %q", got)
		}
	})

	t.Run("no headers leaves text unchanged", func(t *testing.T) {
		in := "500 g flour\n\n\n350 g water"
		if got := Headers(in); got != in {
			t.Errorf("Headers() changed text without headers: %q", got)
		}
	})
}

func TestCookingTerms(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"shouting at line start", "PREHEAT the oven", "Preheat the oven"},
		{"mid sentence lower", "then KNEAD for 10 minutes", "then knead for 10 minutes"},
		{"after step marker", "2. fold the dough", "2. Fold the dough"},
		{"misspelling", "Autolyze for 30 minutes", "Autolyse for 30 minutes"},
		{"multi word", "BULK FERMENT 4 hours", "Bulk ferment 4 hours"},
		{"headers untouched", "INSTRUCTIONS:", "INSTRUCTIONS:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CookingTerms(tt.in); got != tt.want {
				t.Errorf("CookingTerms(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPassesAreIndependent(t *testing.T) {
	in := "you will need\r\nl/2 cup5 flour"
	for _, p := range Passes {
		t.Run(p.Name, func(t *testing.T) {
			out := p.Apply(in)
			if out == "" {
				t.Errorf("%s produced empty output", p.Name)
			}
		})
	}
}

func TestNormalizeOrder(t *testing.T) {
	in := "Classic Loaf\r\n\r\nyou'll need:\r\n500g bread flour\r\n½ cup5 water\r\ndirections\r\n1. PREHEAT oven"
	res := Normalize(in)
	want := "Classic Loaf\n\nINGREDIENTS:\n\n500 g bread flour\n1/2 cup water\n\nINSTRUCTIONS:\n\n1. Preheat oven"
	if res.Text != want {
		t.Errorf("Normalize() =\n%q\nwant\n%q", res.Text, want)
	}
	for _, f := range []Fix{FixWhitespace, FixFractions, FixMeasurements, FixHeaders, FixCookingTerms} {
		if !res.Fixes.Has(f) {
			t.Errorf("expected fix %s in %s", f, res.Fixes)
		}
	}
}

func TestFixString(t *testing.T) {
	if got := (FixFractions | FixHeaders).String(); got != "fractions,headers" {
		t.Errorf("String() = %q", got)
	}
	if got := Fix(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}
