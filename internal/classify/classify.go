// Package classify assigns a recipe.Type to a draft using an ordered decision
// list. The first rule that matches wins, so rule order is the priority.
package classify

import (
	"log/slog"
	"strings"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Match reports whether a rule applies to a list of lower-cased ingredient
// display names.
type Match func(names []string) bool

// Rule pairs a predicate with the type it assigns.
type Rule struct {
	Name  string
	Type  recipe.Type
	Match Match
}

// Group is a set of terms that count as one ingredient family. Exclude
// removes false positives such as "buttermilk" for butter.
type Group struct {
	Terms   []string
	Exclude []string
}

func (g Group) matches(name string) bool {
	for _, ex := range g.Exclude {
		if strings.Contains(name, ex) {
			return false
		}
	}
	for _, t := range g.Terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

// Any matches when some ingredient belongs to the group.
func Any(g Group) Match {
	return func(names []string) bool {
		for _, n := range names {
			if g.matches(n) {
				return true
			}
		}
		return false
	}
}

// AtLeast matches when at least n of the groups are present.
func AtLeast(n int, groups ...Group) Match {
	return func(names []string) bool {
		present := 0
		for _, g := range groups {
			if Any(g)(names) {
				present++
			}
		}
		return present >= n
	}
}

// Always matches every list.
func Always(names []string) bool { return true }

var (
	sourdoughGroup = Group{Terms: []string{"starter", "levain", "sourdough"}}
	yeastGroup     = Group{Terms: []string{"yeast"}}
	butterGroup    = Group{Terms: []string{"butter", "margarine"}, Exclude: []string{"buttermilk", "peanut butter"}}
	eggGroup       = Group{Terms: []string{"egg"}, Exclude: []string{"eggplant"}}
	milkGroup      = Group{Terms: []string{"milk"}}
	leaveningGroup = Group{Terms: []string{"baking powder", "baking soda", "bicarbonate of soda"}}
)

// DefaultRules is the decision list. Sourdough precedes enriched, so a
// starter dough with butter, egg and milk is still sourdough. Enriched
// precedes quickbread.
var DefaultRules = []Rule{
	{Name: "sourdough", Type: recipe.TypeSourdough, Match: Any(sourdoughGroup)},
	{Name: "yeasted", Type: recipe.TypeYeasted, Match: Any(yeastGroup)},
	{Name: "enriched", Type: recipe.TypeEnriched, Match: AtLeast(2, butterGroup, eggGroup, milkGroup)},
	{Name: "quickbread", Type: recipe.TypeQuickbread, Match: Any(leaveningGroup)},
	{Name: "standard", Type: recipe.TypeStandard, Match: Always},
}

// Classifier evaluates a decision list.
type Classifier struct {
	rules  []Rule
	logger *slog.Logger
}

// New returns a classifier over rules, or DefaultRules when none are given.
func New(logger *slog.Logger, rules ...Rule) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules, logger: logger}
}

// Classify returns the type of the first matching rule, or standard.
func (c *Classifier) Classify(d recipe.Draft) recipe.Type {
	rule, ok := c.Explain(d)
	if !ok {
		return recipe.TypeStandard
	}
	c.logger.Debug("classified recipe", "title", d.Title, "type", rule.Type, "rule", rule.Name)
	return rule.Type
}

// Explain returns the rule that decided the type. Raw and parsed
// ingredients are matched the same way through their display names.
func (c *Classifier) Explain(d recipe.Draft) (Rule, bool) {
	names := d.IngredientNames()
	for _, r := range c.rules {
		if r.Match(names) {
			return r, true
		}
	}
	return Rule{}, false
}

// Classify runs DefaultRules against d.
func Classify(d recipe.Draft) recipe.Type {
	return New(nil).Classify(d)
}
