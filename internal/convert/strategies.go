package convert

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Stage timings are conventions for each style of bake, not derived from the
// recipe.
var (
	SourdoughStages = []Stage{
		{"autolyse", "30-60min"},
		{"bulk_ferment", "4-6h"},
		{"shape", "15-20min"},
		{"proof", "12-14h refrigerated"},
		{"bake", "20min covered + 20-25min uncovered"},
	}
	YeastedStages = []Stage{
		{"first_rise", "1-2h"},
		{"shape", "15min"},
		{"second_rise", "45-60min"},
		{"bake", "25-35min"},
	}
	EnrichedStages = []Stage{
		{"first_rise", "1.5-2.5h"},
		{"shape", "20min"},
		{"second_rise", "1-1.5h"},
		{"bake", "20-30min"},
	}
	QuickbreadStages = []Stage{
		{"mix", "5-10min"},
		{"rest", "0-10min"},
		{"bake", "45-60min"},
		{"cool", "10min in pan"},
	}
)

// HighHydration is the hydration above which sourdough gets a handling note.
const HighHydration = 75.0

// NewSourdough returns the sourdough strategy.
func NewSourdough(base *Base) *Strategy {
	return &Strategy{
		typ:    recipe.TypeSourdough,
		base:   base,
		stages: SourdoughStages,
		notes: func(c Converted) []string {
			notes := []string{
				"Use the starter at its peak: doubled in size and bubbly. A spoonful should float in water.",
			}
			if c.Hydration > HighHydration {
				notes = append(notes, fmt.Sprintf("At %.1f%% hydration this dough is slack. Use wet hands and coil folds instead of kneading.", c.Hydration))
			}
			return notes
		},
	}
}

// NewYeasted returns the yeasted bread strategy.
func NewYeasted(base *Base) *Strategy {
	return &Strategy{
		typ:    recipe.TypeYeasted,
		base:   base,
		stages: YeastedStages,
		notes: func(Converted) []string {
			return []string{
				"Activate dry yeast in water at 38-43°C (100-110°F). Hotter water kills the yeast.",
			}
		},
	}
}

// NewEnriched returns the enriched dough strategy.
func NewEnriched(base *Base) *Strategy {
	return &Strategy{
		typ:    recipe.TypeEnriched,
		base:   base,
		stages: EnrichedStages,
		notes: func(Converted) []string {
			return []string{
				"Butter, eggs and sugar slow fermentation; expect longer rises than a lean dough.",
				"Brush with egg wash before baking for a glossy crust.",
			}
		},
	}
}

// NewQuickbread returns the chemically leavened quickbread strategy.
func NewQuickbread(base *Base) *Strategy {
	return &Strategy{
		typ:    recipe.TypeQuickbread,
		base:   base,
		stages: QuickbreadStages,
		notes: func(Converted) []string {
			return []string{
				"Mix until just combined. Overmixing makes the crumb tough.",
				"It is done when a skewer inserted in the center comes out clean.",
			}
		},
	}
}

// NewStandard returns the fallback strategy. It has no timings and only
// notes conversions that could not be made.
func NewStandard(base *Base) *Strategy {
	return &Strategy{
		typ:  recipe.TypeStandard,
		base: base,
		notes: func(c Converted) []string {
			if len(c.Approximated) == 0 {
				return nil
			}
			return []string{
				"Some quantities were kept in their original units: " + strings.Join(c.Approximated, ", ") + ".",
			}
		},
	}
}

// Registry maps recipe types to converters.
type Registry struct {
	mu         sync.RWMutex
	converters map[recipe.Type]Converter
	logger     *slog.Logger
}

// NewRegistry returns a registry holding the five built-in strategies.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBase(logger)
	r := &Registry{converters: make(map[recipe.Type]Converter), logger: logger}
	for _, c := range []Converter{
		NewStandard(base),
		NewSourdough(base),
		NewYeasted(base),
		NewEnriched(base),
		NewQuickbread(base),
	} {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the converter for its type.
func (r *Registry) Register(c Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[c.Type()] = c
}

// For returns the converter for t, falling back to standard.
func (r *Registry) For(t recipe.Type) Converter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.converters[t]; ok {
		return c
	}
	r.logger.Warn("no converter for recipe type, using standard", "type", t)
	return r.converters[recipe.TypeStandard]
}

// Types lists the registered recipe types.
func (r *Registry) Types() []recipe.Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]recipe.Type, 0, len(r.converters))
	for _, t := range recipe.Types {
		if _, ok := r.converters[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Convert converts d with the strategy for t.
func (r *Registry) Convert(d recipe.Draft, t recipe.Type, system recipe.UnitSystem) recipe.ConversionResult {
	return r.For(t).Convert(d, system)
}
