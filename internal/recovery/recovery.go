// Package recovery re-structures text that the normal pipeline could not
// turn into a recipe. A tolerant heuristic pass always runs; when an LLM is
// configured a semantic pass may replace its draft. Each (request, failure
// kind) pair is handled at most once.
package recovery

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

// FailureKind selects the heuristic tweaks applied before re-structuring.
type FailureKind string

const (
	FailureParsing FailureKind = "parsing"
	FailurePDF     FailureKind = "pdf-extraction"
	FailureImage   FailureKind = "image-processing"
	FailureFormat  FailureKind = "format-detection"
)

// Placeholders used when a section could not be recovered.
const (
	PlaceholderIngredients  = "Could not parse ingredients, please review"
	PlaceholderInstructions = "Could not parse instructions, please review"
	PlaceholderTitle        = "Recovered Recipe"
)

// KindFor maps a pipeline error to the recovery strategy for it.
func KindFor(err *recipe.Error) FailureKind {
	if err == nil {
		return FailureParsing
	}
	switch {
	case err.Source == recipe.SourcePDF:
		return FailurePDF
	case err.Source == recipe.SourceImage:
		return FailureImage
	case err.Kind == recipe.KindUnsupported:
		return FailureFormat
	default:
		return FailureParsing
	}
}

// Request is one recovery attempt.
type Request struct {
	ID      string // Pipeline request id
	Text    string // Best available text
	Failure *recipe.Error
	Kind    FailureKind // Overrides KindFor(Failure) when set
}

// Result is the outcome of a recovery attempt. The draft always has a title,
// at least one ingredient and at least one instruction.
type Result struct {
	Draft    recipe.Draft  `json:"draft"`
	Kind     FailureKind   `json:"kind"`
	Semantic bool          `json:"semantic"` // Draft came from the LLM pass
	Duration time.Duration `json:"duration"`
}

// Config configures the stage.
type Config struct {
	LLM        providers.LLMClient // Optional semantic pass
	Model      string              // Model override for the LLM
	MaxRetries int                 // Transport retries for the LLM call
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type key struct {
	id   string
	kind FailureKind
}

type entry struct {
	once   sync.Once
	result Result
}

// Stage runs recovery and remembers what it has already handled.
type Stage struct {
	mu         sync.Mutex
	llm        providers.LLMClient
	model      string
	maxRetries int
	retryDelay time.Duration
	handled    map[key]*entry
	logger     *slog.Logger
}

// New creates a recovery stage.
func New(cfg Config) *Stage {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Stage{
		llm:        cfg.LLM,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		handled:    make(map[key]*entry),
		logger:     cfg.Logger,
	}
}

// SetLLM swaps the semantic-pass client. nil disables the pass.
func (s *Stage) SetLLM(llm providers.LLMClient, model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.llm = llm
	s.model = model
}

// HasLLM reports whether the semantic pass is enabled.
func (s *Stage) HasLLM() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.llm != nil
}

// Recover re-structures req.Text. A second call for the same request id and
// failure kind returns the first result without running again. Recover never
// fails: whatever cannot be recovered is filled with placeholders.
func (s *Stage) Recover(ctx context.Context, req Request) Result {
	kind := req.Kind
	if kind == "" {
		kind = KindFor(req.Failure)
	}
	k := key{id: req.ID, kind: kind}

	s.mu.Lock()
	e, ok := s.handled[k]
	if !ok {
		e = &entry{}
		s.handled[k] = e
	}
	llm, model := s.llm, s.model
	s.mu.Unlock()

	e.once.Do(func() {
		e.result = s.run(ctx, req, k.kind, llm, model)
	})
	return e.result
}

// Handled reports whether the pair was already recovered.
func (s *Stage) Handled(id string, kind FailureKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handled[key{id: id, kind: kind}]
	return ok
}

// Forget drops the records for a finished request.
func (s *Stage) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.handled {
		if k.id == id {
			delete(s.handled, k)
		}
	}
}

func (s *Stage) run(ctx context.Context, req Request, kind FailureKind, llm providers.LLMClient, model string) Result {
	start := time.Now()
	cleaned := Prepare(req.Text, kind)
	res := Result{Draft: Heuristic(cleaned), Kind: kind}

	if llm != nil && strings.TrimSpace(cleaned) != "" {
		d, err := s.semantic(ctx, llm, model, req.ID, cleaned, kind)
		switch {
		case err != nil:
			s.logger.Warn("semantic recovery failed, using heuristic draft",
				"request_id", req.ID, "kind", kind, "error", err)
		default:
			res.Draft = d
			res.Semantic = true
		}
	}

	res.Draft = fillPlaceholders(res.Draft)
	res.Duration = time.Since(start)
	s.logger.Info("recovered recipe",
		"request_id", req.ID,
		"kind", kind,
		"semantic", res.Semantic,
		"ingredients", len(res.Draft.Ingredients),
		"instructions", len(res.Draft.Instructions),
		"duration_ms", res.Duration.Milliseconds())
	return res
}

func fillPlaceholders(d recipe.Draft) recipe.Draft {
	d = d.Clone()
	if strings.TrimSpace(d.Title) == "" {
		d.Title = PlaceholderTitle
	}
	if len(d.Ingredients) == 0 {
		d.Ingredients = []recipe.Ingredient{recipe.Raw(PlaceholderIngredients)}
	}
	if len(d.Instructions) == 0 {
		d.Instructions = []string{PlaceholderInstructions}
	}
	return d
}
