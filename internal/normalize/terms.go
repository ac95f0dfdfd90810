package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Vocabulary is the set of cooking terms whose casing is normalized.
var Vocabulary = []string{
	"preheat", "knead", "fold", "proof", "autolyse", "bulk ferment", "shape",
	"bake", "whisk", "cream", "beat", "stir", "mix", "combine", "simmer",
	"boil", "saute", "roast", "broil", "grease", "sift", "rest",
	"cover", "score", "stretch and fold", "laminate", "glaze", "drizzle",
}

// Misspellings are corrected before casing.
var Misspellings = map[string]string{
	"autolyze":    "autolyse",
	"autolise":    "autolyse",
	"proove":      "proof",
	"kneed":       "knead",
	"preheet":     "preheat",
	"pre-heat":    "preheat",
	"pre heat":    "preheat",
	"bulk fermet": "bulk ferment",
}

var (
	reTerms        = buildAlternation(Vocabulary)
	reMisspellings = buildAlternation(keys(Misspellings))
	reLeadMarker   = regexp.MustCompile(`^\s*(?:[-*•]\s*|(?i:step)\s*\d+[:.)]?\s*|\d+[.)]\s*)?$`)
)

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// buildAlternation compiles a case-insensitive whole-word alternation,
// longest phrase first so multi-word terms win.
func buildAlternation(words []string) *regexp.Regexp {
	sorted := append([]string(nil), words...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && len(sorted[j]) > len(sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// CookingTerms corrects common misspellings of cooking vocabulary and
// normalizes casing: title case at the start of a line or step, lower case
// elsewhere. Header lines are left untouched.
func CookingTerms(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if isHeaderLine(line) {
			continue
		}
		line = reMisspellings.ReplaceAllStringFunc(line, func(m string) string {
			fixed := Misspellings[strings.ToLower(m)]
			if fixed == "" {
				return m
			}
			if isUpperInitial(m) {
				return toTitle(fixed)
			}
			return fixed
		})
		lines[i] = recaseTerms(line)
	}
	return strings.Join(lines, "\n")
}

func recaseTerms(line string) string {
	locs := reTerms.FindAllStringIndex(line, -1)
	if len(locs) == 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	last := 0
	for _, loc := range locs {
		b.WriteString(line[last:loc[0]])
		term := line[loc[0]:loc[1]]
		if reLeadMarker.MatchString(line[:loc[0]]) {
			// Only the first word is capitalized: "Bulk ferment", not "Bulk Ferment".
			low := toLower(term)
			first, rest, _ := strings.Cut(low, " ")
			term = toTitle(first)
			if rest != "" {
				term += " " + rest
			}
		} else {
			term = toLower(term)
		}
		b.WriteString(term)
		last = loc[1]
	}
	b.WriteString(line[last:])
	return b.String()
}

// Casers carry state, so each call gets its own.
func toLower(s string) string { return cases.Lower(language.English).String(s) }
func toTitle(s string) string { return cases.Title(language.English).String(s) }

func isUpperInitial(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

func isHeaderLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, h := range HeaderSynonyms {
		if strings.HasPrefix(trimmed, h.Canonical) {
			return true
		}
	}
	return false
}
