package units

import (
	"regexp"
	"strconv"
	"strings"
)

// number is a mixed number ("1 1/2"), a fraction ("3/4"), a grouped integer
// ("1,000", "12,500.5") or a decimal ("1.5", "1,5"). A comma followed by
// exactly three digits groups thousands; any other comma is a decimal point.
const number = `\d+\s+\d+/\d+|\d+/\d+|\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?`

// quantityRe matches a leading quantity, optionally followed by a range
// ("2-3", "2 to 3") whose upper bound is ignored.
var quantityRe = regexp.MustCompile(`^(` + number + `|[.,]\d+)(?:\s*(?:-|–|to)\s*(?:` + number + `))?`)

// plainQuantityRe is quantityRe without digit grouping, for "1,2345" where the
// grouped reading would stop mid-number.
var plainQuantityRe = regexp.MustCompile(`^(\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?|[.,]\d+)(?:\s*(?:-|–|to)\s*(?:\d+\s+\d+/\d+|\d+/\d+|\d+(?:[.,]\d+)?))?`)

var groupedRe = regexp.MustCompile(`^\d{1,3}(?:,\d{3})+(?:\.\d+)?$`)

// ParseQuantity parses a quantity at the start of s. It returns the value,
// the remainder of the string, and whether a quantity was found.
func ParseQuantity(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	loc := quantityRe.FindStringSubmatchIndex(s)
	if loc == nil {
		return 0, s, false
	}
	if loc[3] < len(s) && s[loc[3]] >= '0' && s[loc[3]] <= '9' {
		loc = plainQuantityRe.FindStringSubmatchIndex(s)
	}
	value, ok := parseNumber(s[loc[2]:loc[3]])
	if !ok {
		return 0, s, false
	}
	return value, strings.TrimSpace(s[loc[1]:]), true
}

func parseNumber(tok string) (float64, bool) {
	tok = strings.TrimSpace(tok)
	if whole, frac, found := strings.Cut(tok, " "); found {
		w, ok1 := parseNumber(whole)
		f, ok2 := parseNumber(strings.TrimSpace(frac))
		return w + f, ok1 && ok2
	}
	if num, den, found := strings.Cut(tok, "/"); found {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	if groupedRe.MatchString(tok) {
		tok = strings.ReplaceAll(tok, ",", "")
	} else {
		tok = strings.Replace(tok, ",", ".", 1)
	}
	if strings.HasPrefix(tok, ".") {
		tok = "0" + tok
	}
	v, err := strconv.ParseFloat(tok, 64)
	return v, err == nil
}

// SplitUnit splits a leading unit token off rest. It handles glued units left
// over from quantities like "500g" and two-word units such as "fl oz".
// A leading "of" after the unit is dropped ("2 cups of flour").
func SplitUnit(rest string) (unit, name string) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", ""
	}
	fields := strings.Fields(rest)

	if len(fields) >= 2 {
		if c, ok := Canonicalize(fields[0] + " " + fields[1]); ok {
			return c, trimOf(strings.Join(fields[2:], " "))
		}
	}
	if c, ok := Canonicalize(fields[0]); ok {
		// A bare "c" or "l" followed by nothing is a name, not a unit.
		if len(fields) == 1 {
			return "", rest
		}
		return c, trimOf(strings.Join(fields[1:], " "))
	}
	return "", rest
}

func trimOf(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(strings.ToLower(s), "of ") {
		return strings.TrimSpace(s[3:])
	}
	return s
}

// FormatQuantity renders a quantity without trailing zeros.
func FormatQuantity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
