// Package structure splits normalized recipe text into sections and builds a
// recipe.Draft from them.
package structure

import (
	"regexp"
	"strings"

	"github.com/jackzampolin/larder/internal/normalize"
)

// Section identifies which part of a recipe a line belongs to.
type Section int

const (
	SectionPreamble Section = iota
	SectionIngredients
	SectionInstructions
	SectionNotes
)

func (s Section) String() string {
	switch s {
	case SectionIngredients:
		return "ingredients"
	case SectionInstructions:
		return "instructions"
	case SectionNotes:
		return "notes"
	default:
		return "preamble"
	}
}

// Line is one non-empty line of segmented text. AfterBlank is set when a blank
// line preceded it, which separates instruction paragraphs.
type Line struct {
	Text       string
	AfterBlank bool
}

// Sections is the segmented form of a recipe. Every non-empty input line
// lands in exactly one of Preamble, Ingredients, Instructions, Notes or Meta.
type Sections struct {
	Preamble     []Line
	Ingredients  []Line
	Instructions []Line
	Notes        []Line
	Meta         map[string]string

	// Inferred is true when no explicit headers were found and the sections
	// come from the line heuristics.
	Inferred bool
}

func (s *Sections) add(sec Section, l Line) {
	switch sec {
	case SectionIngredients:
		s.Ingredients = append(s.Ingredients, l)
	case SectionInstructions:
		s.Instructions = append(s.Instructions, l)
	case SectionNotes:
		s.Notes = append(s.Notes, l)
	default:
		s.Preamble = append(s.Preamble, l)
	}
}

// Meta keys.
const (
	MetaPrepTime = "prep_time"
	MetaCookTime = "cook_time"
	MetaServings = "servings"
)

var (
	// reIngredientLine matches "<number> <unit>? <words>".
	reIngredientLine = regexp.MustCompile(`^(?:[-*•]\s*)?\d+(?:[.,/]\d+)?(?:\s+\d+/\d+)?(?:\s*(?:-|to)\s*\d+(?:[.,/]\d+)?)?\s*(?:[A-Za-z]+\.?\s+)?[A-Za-z(]`)

	// reStepMarker matches "1.", "2)", "Step 3:" at the start of a line.
	reStepMarker = regexp.MustCompile(`^(?:(?i:step)\s*\d+\s*[:.)-]?|\d+[.)])(?:\s+|$)`)

	reBullet = regexp.MustCompile(`^[-*•]\s*`)
)

type header struct {
	section Section
	meta    string
}

var headers = map[string]header{
	normalize.HeaderIngredients:  {section: SectionIngredients},
	normalize.HeaderInstructions: {section: SectionInstructions},
	normalize.HeaderNotes:        {section: SectionNotes},
	normalize.HeaderPrepTime:     {meta: MetaPrepTime},
	normalize.HeaderCookTime:     {meta: MetaCookTime},
	normalize.HeaderServings:     {meta: MetaServings},
}

// parseHeader recognizes a canonical header, case-insensitively and with or
// without its colon, and returns any inline value.
func parseHeader(line string) (header, string, bool) {
	upper := strings.ToUpper(line)
	for canonical, h := range headers {
		bare := strings.TrimSuffix(canonical, ":")
		switch {
		case upper == canonical || upper == bare:
			return h, "", true
		case strings.HasPrefix(upper, canonical):
			return h, strings.TrimSpace(line[len(canonical):]), true
		}
	}
	return header{}, "", false
}

// IsStepMarker reports whether line begins with a step marker.
func IsStepMarker(line string) bool {
	return reStepMarker.MatchString(line)
}

// StripStepMarker removes a leading step marker.
func StripStepMarker(line string) string {
	return strings.TrimSpace(reStepMarker.ReplaceAllString(line, ""))
}

// StripBullet removes a leading list bullet.
func StripBullet(line string) string {
	return strings.TrimSpace(reBullet.ReplaceAllString(line, ""))
}

// LooksLikeIngredient reports whether line starts with a quantity followed by
// words, optionally behind a bullet.
func LooksLikeIngredient(line string) bool {
	return !IsStepMarker(line) && reIngredientLine.MatchString(line)
}

// Segment splits text into sections. Explicit headers are used when present;
// otherwise ingredient and instruction blocks are inferred line by line.
// No content is discarded.
func Segment(text string) Sections {
	lines := splitLines(text)
	for _, l := range lines {
		if h, _, ok := parseHeader(l.Text); ok && h.meta == "" {
			return segmentExplicit(lines)
		}
	}
	return segmentInferred(lines)
}

func splitLines(text string) []Line {
	var out []Line
	blank := false
	for _, raw := range strings.Split(text, "\n") {
		t := strings.TrimSpace(raw)
		if t == "" {
			blank = len(out) > 0
			continue
		}
		out = append(out, Line{Text: t, AfterBlank: blank})
		blank = false
	}
	return out
}

func segmentExplicit(lines []Line) Sections {
	s := Sections{Meta: map[string]string{}}
	cur := SectionPreamble
	pendingMeta := ""
	for _, l := range lines {
		if h, value, ok := parseHeader(l.Text); ok {
			if h.meta != "" {
				pendingMeta = ""
				if value == "" {
					pendingMeta = h.meta
				} else {
					s.Meta[h.meta] = value
				}
				continue
			}
			cur = h.section
			pendingMeta = ""
			if value != "" {
				s.add(cur, Line{Text: value})
			}
			continue
		}
		if pendingMeta != "" {
			s.Meta[pendingMeta] = l.Text
			pendingMeta = ""
			continue
		}
		s.add(cur, l)
	}
	return s
}

func segmentInferred(lines []Line) Sections {
	s := Sections{Meta: map[string]string{}, Inferred: true}
	cur := SectionPreamble
	pendingMeta := ""
	for _, l := range lines {
		if h, value, ok := parseHeader(l.Text); ok {
			pendingMeta = ""
			if value == "" {
				// A bare "PREP TIME:" takes the next line as its value.
				pendingMeta = h.meta
			} else {
				s.Meta[h.meta] = value
			}
			continue
		}
		if pendingMeta != "" {
			s.Meta[pendingMeta] = l.Text
			pendingMeta = ""
			continue
		}
		switch cur {
		case SectionPreamble:
			if LooksLikeIngredient(l.Text) {
				cur = SectionIngredients
			}
		case SectionIngredients:
			if opensInstructions(l.Text) {
				cur = SectionInstructions
				if strings.HasSuffix(l.Text, ":") {
					// A label such as "Method:" is kept, but not as a step.
					s.Notes = append(s.Notes, l)
					continue
				}
			}
		}
		s.add(cur, l)
	}
	return s
}

// opensInstructions decides whether a line inside an inferred ingredient
// block starts the instructions.
func opensInstructions(line string) bool {
	switch {
	case strings.HasSuffix(line, ":"), IsStepMarker(line):
		return true
	case LooksLikeIngredient(line):
		return false
	case len(line) > 50:
		return true
	}
	return startsWithCookingVerb(line)
}

func startsWithCookingVerb(line string) bool {
	first, _, _ := strings.Cut(strings.ToLower(line), " ")
	first = strings.Trim(first, ".,;:!")
	for _, term := range normalize.Vocabulary {
		verb, _, _ := strings.Cut(term, " ")
		if first == verb {
			return true
		}
	}
	return false
}
