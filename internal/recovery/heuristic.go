package recovery

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jackzampolin/larder/internal/normalize"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/structure"
	"github.com/jackzampolin/larder/internal/units"
)

const (
	maxTitleRunes    = 60
	maxTitleWords    = 8
	minStepWords     = 6
	maxNoiseFraction = 0.5
)

var (
	reHyphenWrap  = regexp.MustCompile(`(\p{L})-\n(\p{Ll})`)
	reMarkupTag   = regexp.MustCompile(`<[^<>\n]*>`)
	reRTFGroup    = regexp.MustCompile(`\{\\[^{}\s]*\}`)
	reRTFControl  = regexp.MustCompile(`\\[a-z]+-?\d* ?`)
	reSectionHead = regexp.MustCompile(`^[\p{L} ]{2,30}:$`)
)

// Prepare applies the tweaks for a failure kind to text.
func Prepare(text string, kind FailureKind) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	switch kind {
	case FailurePDF:
		text = reHyphenWrap.ReplaceAllString(text, "$1$2")
		text = joinSoftWraps(text)
	case FailureImage:
		text = normalize.Measurements(normalize.Fractions(text))
		text = dropNoise(text)
	case FailureFormat:
		text = reRTFGroup.ReplaceAllString(text, "")
		text = reMarkupTag.ReplaceAllString(text, " ")
		text = reRTFControl.ReplaceAllString(text, "")
		text = strings.NewReplacer("{", "", "}", "").Replace(text)
	}
	return text
}

// joinSoftWraps joins a line onto the previous one when the previous line
// has no closing punctuation and the next starts in lower case.
func joinSoftWraps(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if n := len(out); n > 0 && trimmed != "" && out[n-1] != "" {
			prev := out[n-1]
			first := []rune(trimmed)[0]
			if unicode.IsLower(first) && !strings.ContainsAny(prev[len(prev)-1:], ".:;!?") {
				out[n-1] = prev + " " + trimmed
				continue
			}
		}
		out = append(out, trimmed)
	}
	return strings.Join(out, "\n")
}

// dropNoise removes OCR lines where more than half of the visible characters
// are neither letters, digits nor quantity punctuation.
func dropNoise(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if noiseFraction(line) <= maxNoiseFraction {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func noiseFraction(line string) float64 {
	visible, noise := 0, 0
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		visible++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("/.,-()%'", r) {
			noise++
		}
	}
	if visible == 0 {
		return 0
	}
	return float64(noise) / float64(visible)
}

// Heuristic classifies each line on its own. Lines with a leading quantity or
// a unit word are ingredients. The first short line before any content is the
// title. Step-marked lines, lines with a cooking verb and long lines are
// instructions. Everything else becomes a note.
func Heuristic(text string) recipe.Draft {
	d := recipe.Draft{Ingredients: []recipe.Ingredient{}, Instructions: []string{}}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || reSectionHead.MatchString(line) {
			continue
		}

		switch {
		case structure.IsStepMarker(line):
			if step := structure.StripStepMarker(line); step != "" {
				d.Instructions = append(d.Instructions, step)
			}
		case isIngredientLine(line):
			if ing, ok := structure.ParseIngredient(line); ok {
				d.Ingredients = append(d.Ingredients, ing)
			}
		case d.Title == "" && isTitleLine(line) && len(d.Ingredients) == 0 && len(d.Instructions) == 0:
			d.Title = strings.TrimSpace(strings.Trim(line, "#*_= "))
		case isInstructionLine(line):
			d.Instructions = append(d.Instructions, structure.StripBullet(line))
		default:
			d.Notes = append(d.Notes, structure.StripBullet(line))
		}
	}
	return d
}

func isIngredientLine(line string) bool {
	body := structure.StripBullet(line)
	if _, _, ok := units.ParseQuantity(body); ok {
		return true
	}
	fields := strings.Fields(strings.ToLower(body))
	for i, f := range fields {
		if units.Known(strings.Trim(f, ".,;:()")) {
			return true
		}
		if i+1 < len(fields) && units.Known(f+" "+fields[i+1]) {
			return true
		}
	}
	return false
}

func isInstructionLine(line string) bool {
	if len(strings.Fields(line)) >= minStepWords {
		return true
	}
	lower := strings.ToLower(line)
	for _, verb := range normalize.Vocabulary {
		if hasWord(lower, verb) {
			return true
		}
	}
	return false
}

func isTitleLine(line string) bool {
	return len([]rune(line)) <= maxTitleRunes &&
		len(strings.Fields(line)) <= maxTitleWords &&
		!strings.HasSuffix(line, ".")
}

// hasWord reports whether phrase occurs in s on word boundaries.
func hasWord(s, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(phrase)
		before := start == 0 || !isWordByte(s[start-1])
		after := end == len(s) || !isWordByte(s[end])
		if before && after {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
