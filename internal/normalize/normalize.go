// Package normalize cleans up raw extracted recipe text. Each pass is a pure
// function that can run on its own; Normalize applies them in order:
// whitespace, fractions, measurements, headers, cooking terms.
package normalize

import "strings"

// Fix flags record which passes changed the text. They are diagnostic only.
type Fix uint8

const (
	FixWhitespace Fix = 1 << iota
	FixFractions
	FixMeasurements
	FixHeaders
	FixCookingTerms
)

var fixNames = []struct {
	flag Fix
	name string
}{
	{FixWhitespace, "whitespace"},
	{FixFractions, "fractions"},
	{FixMeasurements, "measurements"},
	{FixHeaders, "headers"},
	{FixCookingTerms, "cooking_terms"},
}

// Has reports whether flag is set.
func (f Fix) Has(flag Fix) bool { return f&flag != 0 }

// List returns the names of all set flags in pass order.
func (f Fix) List() []string {
	var out []string
	for _, n := range fixNames {
		if f.Has(n.flag) {
			out = append(out, n.name)
		}
	}
	return out
}

func (f Fix) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.List(), ",")
}

// Result is normalized text plus the fixes that were applied.
type Result struct {
	Text  string `json:"text"`
	Fixes Fix    `json:"-"`
}

// Pass is one normalization step.
type Pass struct {
	Name  string
	Flag  Fix
	Apply func(string) string
}

// Passes is the documented pass order. Fractions and measurements must run
// before header rewriting.
var Passes = []Pass{
	{Name: "whitespace", Flag: FixWhitespace, Apply: Whitespace},
	{Name: "fractions", Flag: FixFractions, Apply: Fractions},
	{Name: "measurements", Flag: FixMeasurements, Apply: Measurements},
	{Name: "headers", Flag: FixHeaders, Apply: Headers},
	{Name: "cooking_terms", Flag: FixCookingTerms, Apply: CookingTerms},
}

// Normalize runs every pass in order.
func Normalize(text string) Result {
	var fixes Fix
	for _, p := range Passes {
		out := p.Apply(text)
		if out != text {
			fixes |= p.Flag
		}
		text = out
	}
	return Result{Text: text, Fixes: fixes}
}
