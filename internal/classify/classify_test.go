package classify

import (
	"testing"

	"github.com/jackzampolin/larder/internal/recipe"
)

func draft(ings ...recipe.Ingredient) recipe.Draft {
	return recipe.Draft{Title: "test", Ingredients: ings}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		d    recipe.Draft
		want recipe.Type
	}{
		{
			name: "sourdough starter",
			d:    draft(recipe.Parsed("bread flour", 500, "g"), recipe.Parsed("active starter", 100, "g")),
			want: recipe.TypeSourdough,
		},
		{
			name: "levain as raw line",
			d:    draft(recipe.Raw("a handful of levain")),
			want: recipe.TypeSourdough,
		},
		{
			name: "instant yeast",
			d:    draft(recipe.Parsed("flour", 500, "g"), recipe.Parsed("instant dry yeast", 7, "g")),
			want: recipe.TypeYeasted,
		},
		{
			name: "enriched without yeast",
			d:    draft(recipe.Parsed("butter", 100, "g"), recipe.Parsed("eggs", 2, "")),
			want: recipe.TypeEnriched,
		},
		{
			name: "one enrichment is not enough",
			d:    draft(recipe.Parsed("flour", 200, "g"), recipe.Parsed("milk", 250, "ml")),
			want: recipe.TypeStandard,
		},
		{
			name: "buttermilk counts once",
			d:    draft(recipe.Parsed("buttermilk", 250, "ml")),
			want: recipe.TypeStandard,
		},
		{
			name: "quickbread",
			d:    draft(recipe.Parsed("flour", 250, "g"), recipe.Raw("1 tsp Baking Soda")),
			want: recipe.TypeQuickbread,
		},
		{
			name: "enriched wins over quickbread",
			d:    draft(recipe.Parsed("butter", 100, "g"), recipe.Parsed("milk", 1, "cup"), recipe.Parsed("baking powder", 2, "tsp")),
			want: recipe.TypeEnriched,
		},
		{
			name: "standard",
			d:    draft(recipe.Parsed("rice", 200, "g")),
			want: recipe.TypeStandard,
		},
		{
			name: "empty",
			d:    draft(),
			want: recipe.TypeStandard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.d); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSourdoughPrecedesEnriched(t *testing.T) {
	d := draft(
		recipe.Parsed("sourdough starter", 100, "g"),
		recipe.Parsed("butter", 50, "g"),
		recipe.Raw("1 egg"),
		recipe.Parsed("milk", 120, "ml"),
	)
	rule, ok := New(nil).Explain(d)
	if !ok {
		t.Fatal("no rule matched")
	}
	if rule.Type != recipe.TypeSourdough {
		t.Fatalf("Explain() chose %s (%s), want sourdough", rule.Type, rule.Name)
	}

	// The same ingredients satisfy the enriched rule on their own.
	if !DefaultRules[2].Match(d.IngredientNames()) {
		t.Error("enriched rule should also match this list")
	}
}

func TestCustomRules(t *testing.T) {
	c := New(nil,
		Rule{Name: "quick first", Type: recipe.TypeQuickbread, Match: Any(Group{Terms: []string{"baking powder"}})},
		Rule{Name: "fallback", Type: recipe.TypeStandard, Match: Always},
	)
	d := draft(recipe.Parsed("yeast", 7, "g"), recipe.Parsed("baking powder", 1, "tsp"))
	if got := c.Classify(d); got != recipe.TypeQuickbread {
		t.Errorf("Classify() = %s, want quickbread", got)
	}
}

func TestNoMatchingRule(t *testing.T) {
	c := New(nil, Rule{Name: "never", Type: recipe.TypeYeasted, Match: func([]string) bool { return false }})
	if got := c.Classify(draft(recipe.Parsed("yeast", 7, "g"))); got != recipe.TypeStandard {
		t.Errorf("Classify() = %s, want standard", got)
	}
}
