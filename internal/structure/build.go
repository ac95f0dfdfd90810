package structure

import (
	"strings"
	"unicode"

	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/units"
)

// UntitledRecipe is used when no title line exists.
const UntitledRecipe = "Untitled Recipe"

// Build segments text and assembles a draft from the sections.
func Build(text string) recipe.Draft {
	return Assemble(Segment(text))
}

// Assemble converts sections into a draft. The first preamble line is the
// title and the rest of the preamble is kept as notes.
func Assemble(s Sections) recipe.Draft {
	d := recipe.Draft{
		Title:        UntitledRecipe,
		Ingredients:  []recipe.Ingredient{},
		Instructions: []string{},
		PrepTime:     s.Meta[MetaPrepTime],
		CookTime:     s.Meta[MetaCookTime],
		Servings:     s.Meta[MetaServings],
	}

	preamble := s.Preamble
	if len(preamble) > 0 {
		if title := cleanTitle(preamble[0].Text); title != "" {
			d.Title = title
		}
		preamble = preamble[1:]
	}
	for _, l := range preamble {
		d.Notes = append(d.Notes, l.Text)
	}
	for _, l := range s.Notes {
		d.Notes = append(d.Notes, StripBullet(l.Text))
	}

	for _, l := range s.Ingredients {
		if ing, ok := ParseIngredient(l.Text); ok {
			d.Ingredients = append(d.Ingredients, ing)
		}
	}
	d.Instructions = Steps(s.Instructions)
	return d
}

func cleanTitle(line string) string {
	return strings.TrimSpace(strings.Trim(line, "#*_= "))
}

// ParseIngredient turns one ingredient line into a Parsed ingredient when it
// starts with a quantity, or a Raw one otherwise. The boolean is false for
// lines that are empty once the bullet is removed.
func ParseIngredient(line string) (recipe.Ingredient, bool) {
	line = StripBullet(line)
	if line == "" {
		return recipe.Ingredient{}, false
	}
	qty, rest, ok := units.ParseQuantity(line)
	if !ok || rest == "" {
		return recipe.Raw(line), true
	}
	unit, name := units.SplitUnit(rest)
	if name == "" || !startsWithLetter(name) {
		return recipe.Raw(line), true
	}
	return recipe.Parsed(name, qty, unit), true
}

func startsWithLetter(s string) bool {
	for _, r := range s {
		return unicode.IsLetter(r) || r == '('
	}
	return false
}

// Steps strips step markers and joins wrapped lines onto the step they
// continue. When markers are present, an unmarked line directly below a step
// belongs to it. Without markers, a line continues the previous one only when
// it starts lower case and the previous one does not end a sentence.
func Steps(lines []Line) []string {
	marked := false
	for _, l := range lines {
		if IsStepMarker(l.Text) {
			marked = true
			break
		}
	}

	var steps []string
	for _, l := range lines {
		text := StripBullet(l.Text)
		isMarker := IsStepMarker(text)
		if isMarker {
			text = StripStepMarker(text)
		}
		if text == "" {
			continue
		}
		n := len(steps)
		join := false
		if n > 0 && !l.AfterBlank && !isMarker {
			if marked {
				join = true
			} else {
				join = startsLower(text) && !endsSentence(steps[n-1])
			}
		}
		if join {
			steps[n-1] = joinWrapped(steps[n-1], text)
			continue
		}
		steps = append(steps, text)
	}
	if steps == nil {
		steps = []string{}
	}
	return steps
}

func joinWrapped(prev, next string) string {
	if strings.HasSuffix(prev, "-") && startsLower(next) {
		return strings.TrimSuffix(prev, "-") + next
	}
	return prev + " " + next
}

func startsLower(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
