package normalize

import (
	"regexp"
	"strings"

	"github.com/jackzampolin/larder/internal/units"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`[\t\f\v]+`)
	reMultiSpace = regexp.MustCompile(` {2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reInvisible  = strings.NewReplacer("\u00a0", " ", "\u200b", "", "\ufeff", "", "\u2009", " ")
)

// Whitespace converts CRLF to LF, collapses runs of spaces and caps blank
// line runs at one.
func Whitespace(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reInvisible.Replace(s)
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

var vulgarFractions = map[rune]string{
	'½': "1/2", '⅓': "1/3", '⅔': "2/3", '¼': "1/4", '¾': "3/4",
	'⅕': "1/5", '⅖': "2/5", '⅗': "3/5", '⅘': "4/5", '⅙': "1/6",
	'⅚': "5/6", '⅛': "1/8", '⅜': "3/8", '⅝': "5/8", '⅞': "7/8",
}

// reMisreadOne matches "l/2" or "I/2" where OCR read the digit 1 as a letter.
var reMisreadOne = regexp.MustCompile(`(^|[^A-Za-z0-9])[lI]/(\d)`)

// reFractionSlash normalizes the Unicode fraction slash.
var reFractionSlash = strings.NewReplacer("⁄", "/", "∕", "/")

// Fractions repairs OCR-mangled fractions and rewrites Unicode vulgar
// fractions as ASCII n/d. A digit directly before a vulgar fraction becomes a
// mixed number ("1½" -> "1 1/2").
func Fractions(s string) string {
	s = reFractionSlash.Replace(s)
	s = reMisreadOne.ReplaceAllString(s, "${1}1/$2")

	if !strings.ContainsFunc(s, func(r rune) bool { _, ok := vulgarFractions[r]; return ok }) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	var prev rune
	for _, r := range s {
		frac, ok := vulgarFractions[r]
		if !ok {
			b.WriteRune(r)
			prev = r
			continue
		}
		if prev >= '0' && prev <= '9' {
			b.WriteByte(' ')
		}
		b.WriteString(frac)
		prev = r
	}
	return b.String()
}

var (
	// OCR unit corruptions. Ordered: the spacing fix below depends on them.
	unitCorruptions = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)\bcup5\b`), "cups"},
		{regexp.MustCompile(`(?i)\bcu\s?ps\b`), "cups"},
		{regexp.MustCompile(`(\d)\s*0z\b`), "$1 oz"},
		{regexp.MustCompile(`\b0z\b`), "oz"},
		{regexp.MustCompile(`(?i)\btbps\b`), "tbsp"},
		{regexp.MustCompile(`(?i)\btspn\b`), "tsp"},
		{regexp.MustCompile(`(\d)\s*1bs?\b`), "$1 lb"},
		{regexp.MustCompile(`(?i)\blbs\.`), "lb"},
	}

	// reGluedUnit separates a quantity from its unit: "500g" -> "500 g".
	reGluedUnit = regexp.MustCompile(`(?i)(\d)\s*(cups|cup|tbsp|tsp|fl\.? oz|oz|kg|g|ml|lbs|lb|l)\b`)

	// reSingularCup matches a quantity followed by "cups". Mixed numbers are
	// captured in group 1 so they can be left plural.
	reSingularCup = regexp.MustCompile(`(\d+\s+)?(\d+/\d+|\d*\.\d+|\d+)\s+cups\b`)
)

// Measurements fixes common OCR unit corruptions, normalizes the spacing
// between a quantity and its unit, and singularizes "cups" after quantities
// of one or less.
func Measurements(s string) string {
	for _, c := range unitCorruptions {
		s = c.re.ReplaceAllString(s, c.repl)
	}
	s = reGluedUnit.ReplaceAllStringFunc(s, func(m string) string {
		sub := reGluedUnit.FindStringSubmatch(m)
		return sub[1] + " " + strings.ToLower(sub[2])
	})
	s = reSingularCup.ReplaceAllStringFunc(s, func(m string) string {
		sub := reSingularCup.FindStringSubmatch(m)
		if sub[1] != "" {
			return m
		}
		qty, _, ok := units.ParseQuantity(sub[2])
		if !ok || qty > 1 {
			return m
		}
		return strings.TrimSuffix(m, "s")
	})
	return s
}
