package normalize

import (
	"regexp"
	"strings"
)

// Canonical section headers.
const (
	HeaderIngredients  = "INGREDIENTS:"
	HeaderInstructions = "INSTRUCTIONS:"
	HeaderPrepTime     = "PREP TIME:"
	HeaderCookTime     = "COOK TIME:"
	HeaderServings     = "SERVINGS:"
	HeaderNotes        = "NOTES:"
)

// HeaderSynonyms maps each canonical header to the phrases rewritten to it.
// Matching is case-insensitive against the whole line, ignoring a trailing
// colon and markdown decoration.
var HeaderSynonyms = []struct {
	Canonical string
	Inline    bool // header may carry a value on the same line
	Phrases   []string
}{
	{HeaderIngredients, false, []string{"ingredients", "ingredient list", "you will need", "you'll need", "what you need", "what you'll need", "shopping list"}},
	{HeaderInstructions, false, []string{"instructions", "method", "directions", "preparation", "steps", "how to make it", "how to make"}},
	{HeaderPrepTime, true, []string{"prep time", "preparation time", "prep"}},
	{HeaderCookTime, true, []string{"cook time", "cooking time", "bake time", "baking time"}},
	{HeaderServings, true, []string{"servings", "serves", "yield", "makes"}},
	{HeaderNotes, false, []string{"notes", "note", "tips", "chef's notes", "cook's notes"}},
}

var reHeaderDecor = regexp.MustCompile(`^[#*_=\s]+|[*_=\s]+$`)

// matchHeader returns the canonical header for line and any inline value.
func matchHeader(line string) (canonical, value string, ok bool) {
	trimmed := reHeaderDecor.ReplaceAllString(strings.TrimSpace(line), "")
	if trimmed == "" {
		return "", "", false
	}
	lower := strings.ToLower(trimmed)
	for _, h := range HeaderSynonyms {
		for _, phrase := range h.Phrases {
			if lower == phrase || lower == phrase+":" {
				return h.Canonical, "", true
			}
			if !strings.HasPrefix(lower, phrase+":") {
				continue
			}
			rest := strings.TrimSpace(trimmed[len(phrase)+1:])
			return h.Canonical, rest, true
		}
	}
	return "", "", false
}

// Headers rewrites section-header synonyms to canonical uppercase headers and
// places each header in its own blank-line-delimited block. Values following
// ingredient, instruction and note headers move to the next line; time and
// serving values stay inline.
func Headers(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines)+8)
	blank := func() {
		if len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
	}

	changed := false
	for _, line := range lines {
		canonical, value, ok := matchHeader(line)
		if !ok {
			out = append(out, line)
			continue
		}
		changed = true
		blank()
		inline := false
		for _, h := range HeaderSynonyms {
			if h.Canonical == canonical {
				inline = h.Inline
				break
			}
		}
		switch {
		case value == "":
			out = append(out, canonical)
		case inline:
			out = append(out, canonical+" "+value)
		default:
			out = append(out, canonical, "", value)
		}
		out = append(out, "")
	}
	if !changed {
		return s
	}

	joined := strings.Join(out, "\n")
	joined = reMultiBlank.ReplaceAllString(joined, "\n\n")
	return strings.Trim(joined, "\n")
}
