// Package recipe defines the data shapes that flow through the ingestion
// pipeline: ingredients, drafts, recipe types and conversion results.
package recipe

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Type is the baking category assigned by the classifier.
type Type string

const (
	TypeStandard   Type = "standard"
	TypeSourdough  Type = "sourdough"
	TypeYeasted    Type = "yeasted"
	TypeEnriched   Type = "enriched"
	TypeQuickbread Type = "quickbread"
)

// Types lists every recipe type.
var Types = []Type{TypeStandard, TypeSourdough, TypeYeasted, TypeEnriched, TypeQuickbread}

// Valid reports whether t is one of the known recipe types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// UnitSystem selects the target units for conversion.
type UnitSystem string

const (
	UnitsOriginal UnitSystem = "original"
	UnitsMetric   UnitSystem = "metric"
	UnitsImperial UnitSystem = "imperial"
)

// ParseUnitSystem parses a user-supplied unit system name.
// An empty string selects the original units.
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original", "none":
		return UnitsOriginal, nil
	case "metric", "si":
		return UnitsMetric, nil
	case "imperial", "us", "customary":
		return UnitsImperial, nil
	default:
		return "", fmt.Errorf("unknown unit system: %q", s)
	}
}

// IngredientKind tags which form an Ingredient holds.
type IngredientKind int

const (
	// IngredientRaw is an opaque line that did not parse.
	IngredientRaw IngredientKind = iota
	// IngredientParsed is a structured name/quantity/unit triple.
	IngredientParsed
)

// Ingredient is either a raw line of text or a parsed triple.
// Both forms coexist in one ordered list.
type Ingredient struct {
	kind     IngredientKind
	text     string
	name     string
	quantity float64
	unit     string
}

// Raw returns an ingredient holding an unparsed line.
func Raw(line string) Ingredient {
	return Ingredient{kind: IngredientRaw, text: strings.TrimSpace(line)}
}

// Parsed returns a structured ingredient.
func Parsed(name string, quantity float64, unit string) Ingredient {
	return Ingredient{
		kind:     IngredientParsed,
		name:     strings.TrimSpace(name),
		quantity: quantity,
		unit:     strings.TrimSpace(unit),
	}
}

// Kind returns which variant the ingredient holds.
func (i Ingredient) Kind() IngredientKind { return i.kind }

// IsParsed reports whether the ingredient is the structured variant.
func (i Ingredient) IsParsed() bool { return i.kind == IngredientParsed }

// Text returns the raw line. Empty for parsed ingredients.
func (i Ingredient) Text() string { return i.text }

// Name returns the ingredient name. Empty for raw ingredients.
func (i Ingredient) Name() string { return i.name }

// Quantity returns the parsed quantity. Zero for raw ingredients.
func (i Ingredient) Quantity() float64 { return i.quantity }

// Unit returns the canonical unit, possibly empty for counted items.
func (i Ingredient) Unit() string { return i.unit }

// DisplayName is the text matched by name-based rules: the name for parsed
// ingredients and the whole line for raw ones.
func (i Ingredient) DisplayName() string {
	if i.kind == IngredientParsed {
		return i.name
	}
	return i.text
}

// WithQuantity returns a copy of a parsed ingredient with a new quantity and unit.
func (i Ingredient) WithQuantity(quantity float64, unit string) Ingredient {
	if i.kind != IngredientParsed {
		return i
	}
	i.quantity = quantity
	i.unit = unit
	return i
}

func (i Ingredient) String() string {
	if i.kind == IngredientRaw {
		return i.text
	}
	qty := strconv.FormatFloat(i.quantity, 'f', -1, 64)
	if i.unit == "" {
		return qty + " " + i.name
	}
	return qty + " " + i.unit + " " + i.name
}

type parsedJSON struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// MarshalJSON encodes raw ingredients as JSON strings and parsed ones as objects.
func (i Ingredient) MarshalJSON() ([]byte, error) {
	if i.kind == IngredientRaw {
		return json.Marshal(i.text)
	}
	return json.Marshal(parsedJSON{Name: i.name, Quantity: i.quantity, Unit: i.unit})
}

// UnmarshalJSON accepts either a string or a {name, quantity, unit} object.
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = Raw(s)
		return nil
	}
	var p parsedJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("ingredient must be a string or object: %w", err)
	}
	*i = Parsed(p.Name, p.Quantity, p.Unit)
	return nil
}

// Draft is a structured recipe that has not been classified yet.
type Draft struct {
	Title        string       `json:"title"`
	Ingredients  []Ingredient `json:"ingredients"`
	Instructions []string     `json:"instructions"`
	Notes        []string     `json:"notes,omitempty"`
	PrepTime     string       `json:"prep_time,omitempty"`
	CookTime     string       `json:"cook_time,omitempty"`
	Servings     string       `json:"servings,omitempty"`
	Type         Type         `json:"recipe_type,omitempty"`
}

// Clone returns a deep copy so later stages never mutate an earlier stage's output.
func (d Draft) Clone() Draft {
	out := d
	out.Ingredients = append([]Ingredient(nil), d.Ingredients...)
	out.Instructions = append([]string(nil), d.Instructions...)
	if d.Notes != nil {
		out.Notes = append([]string(nil), d.Notes...)
	}
	return out
}

// IngredientNames returns the lower-cased display names in order.
func (d Draft) IngredientNames() []string {
	names := make([]string, 0, len(d.Ingredients))
	for _, ing := range d.Ingredients {
		names = append(names, strings.ToLower(ing.DisplayName()))
	}
	return names
}

// ConversionResult is the output of classify-and-convert.
// Success implies Converted is set and Error is nil, and vice versa.
type ConversionResult struct {
	Success           bool               `json:"success"`
	RecipeType        Type               `json:"recipe_type,omitempty"`
	Converted         *Draft             `json:"converted,omitempty"`
	BakersPercentages map[string]float64 `json:"bakers_percentages,omitempty"`
	Hydration         float64            `json:"hydration,omitempty"`
	Timings           map[string]string  `json:"timings,omitempty"`
	Error             *ErrorInfo         `json:"error,omitempty"`
}

// Succeeded builds a successful result around the converted draft.
func Succeeded(t Type, converted Draft) ConversionResult {
	return ConversionResult{Success: true, RecipeType: t, Converted: &converted}
}

// Failed builds a failed result carrying err.
func Failed(err *Error) ConversionResult {
	return ConversionResult{Success: false, Error: err.Info()}
}

// Valid reports whether Success, Converted and Error agree.
func (r ConversionResult) Valid() bool {
	if r.Success {
		return r.Converted != nil && r.Error == nil
	}
	return r.Converted == nil && r.Error != nil
}
