package endpoints

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackzampolin/larder/internal/api"
	"github.com/jackzampolin/larder/internal/pipeline"
	"github.com/jackzampolin/larder/internal/recipe"
)

// draftTable renders a draft one line per row.
type draftTable recipe.Draft

func (d draftTable) Headers() []string { return []string{"SECTION", "VALUE"} }

func (d draftTable) Rows() [][]string {
	rows := [][]string{{"title", d.Title}}
	if d.Type != "" {
		rows = append(rows, []string{"type", string(d.Type)})
	}
	for _, kv := range [][2]string{{"prep time", d.PrepTime}, {"cook time", d.CookTime}, {"servings", d.Servings}} {
		if kv[1] != "" {
			rows = append(rows, []string{kv[0], kv[1]})
		}
	}
	for _, ing := range d.Ingredients {
		rows = append(rows, []string{"ingredient", ing.String()})
	}
	for i, step := range d.Instructions {
		rows = append(rows, []string{"step " + strconv.Itoa(i+1), step})
	}
	for _, n := range d.Notes {
		rows = append(rows, []string{"note", n})
	}
	return rows
}

// resultTable adds the ratios and timings of a conversion to its draft.
type resultTable recipe.ConversionResult

func (r resultTable) Headers() []string { return []string{"SECTION", "VALUE"} }

func (r resultTable) Rows() [][]string {
	if !r.Success || r.Converted == nil {
		if r.Error != nil {
			return [][]string{{"error", r.Error.Message}, {"remedy", r.Error.Remedy}}
		}
		return nil
	}
	d := *r.Converted
	if d.Type == "" {
		d.Type = r.RecipeType
	}
	rows := draftTable(d).Rows()
	if r.Hydration > 0 {
		rows = append(rows, []string{"hydration", fmt.Sprintf("%.1f%%", r.Hydration)})
	}
	for _, name := range sortedKeys(r.BakersPercentages) {
		rows = append(rows, []string{"baker's %", fmt.Sprintf("%s %.1f%%", name, r.BakersPercentages[name])})
	}
	for _, stage := range sortedKeys(r.Timings) {
		rows = append(rows, []string{"timing", stage + ": " + r.Timings[stage]})
	}
	return rows
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutputResult prints a conversion result in the configured format.
func OutputResult(res recipe.ConversionResult) error {
	if api.GetOutputFormat() == api.OutputFormatTable {
		return api.Output(resultTable(res))
	}
	return api.Output(res)
}

// OutputOutcome prints a processing outcome in the configured format.
// Table output shows the converted recipe with the request summary above it.
func OutputOutcome(out pipeline.Outcome) error {
	if api.GetOutputFormat() != api.OutputFormatTable {
		return api.Output(out)
	}
	var summary []string
	if out.RecipeID != "" {
		summary = append(summary, "saved as "+out.RecipeID)
	}
	if out.Recovered {
		summary = append(summary, "recovered ("+string(out.RecoveryKind)+")")
	}
	if len(out.Fixes) > 0 {
		summary = append(summary, "fixes: "+strings.Join(out.Fixes, ", "))
	}
	if len(summary) > 0 {
		fmt.Println(strings.Join(summary, "; "))
	}
	if out.Result != nil {
		return api.Output(resultTable(*out.Result))
	}
	if f := out.Failure(); f != nil {
		return api.Output(resultTable(recipe.ConversionResult{Error: f}))
	}
	return nil
}
