// Package pipeline ties the stages together: extraction, normalization and
// structure detection, classification and conversion, with one recovery
// attempt when conversion fails.
package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jackzampolin/larder/internal/classify"
	"github.com/jackzampolin/larder/internal/convert"
	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/normalize"
	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/recovery"
	"github.com/jackzampolin/larder/internal/store"
	"github.com/jackzampolin/larder/internal/structure"
)

// Config holds the pipeline collaborators. Nil fields get defaults: a text-only
// orchestrator, the default rules, the built-in strategies, a heuristic-only
// recovery stage and an in-memory store.
type Config struct {
	Orchestrator *extract.Orchestrator
	Classifier   *classify.Classifier
	Converters   *convert.Registry
	Recovery     *recovery.Stage
	Store        store.Store
	Logger       *slog.Logger
}

// Pipeline runs recipe ingestion end to end.
type Pipeline struct {
	orch       *extract.Orchestrator
	classifier *classify.Classifier
	converters *convert.Registry
	recovery   *recovery.Stage
	store      store.Store
	logger     *slog.Logger

	// Set by FromConfig so ApplyConfig can rewire on reload.
	registry *providers.Registry
	image    *extract.ImageBackend
	runner   providers.Runner

	mu    sync.RWMutex
	units recipe.UnitSystem
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		orch:       cfg.Orchestrator,
		classifier: cfg.Classifier,
		converters: cfg.Converters,
		recovery:   cfg.Recovery,
		store:      cfg.Store,
		logger:     logger,
		units:      recipe.UnitsOriginal,
	}
	if p.orch == nil {
		p.orch = extract.New(extract.DefaultConfig(), logger, extract.NewTextBackend(logger))
	}
	if p.classifier == nil {
		p.classifier = classify.New(logger)
	}
	if p.converters == nil {
		p.converters = convert.NewRegistry(logger)
	}
	if p.recovery == nil {
		p.recovery = recovery.New(recovery.Config{Logger: logger})
	}
	if p.store == nil {
		p.store = store.NewMemoryStore()
	}
	return p
}

// Orchestrator returns the extraction orchestrator.
func (p *Pipeline) Orchestrator() *extract.Orchestrator { return p.orch }

// Recovery returns the recovery stage.
func (p *Pipeline) Recovery() *recovery.Stage { return p.recovery }

// Store returns the storage collaborator.
func (p *Pipeline) Store() store.Store { return p.store }

// Extract runs extraction and blocks until it finishes. Cancelling ctx
// cancels the extraction.
func (p *Pipeline) Extract(ctx context.Context, in extract.RawInput, fn extract.ProgressFunc) extract.Result {
	return p.orch.Extract(ctx, in, fn)
}

// Start begins extraction and returns a *extract.Task handle, or a
// *extract.Failure when the input is rejected up front.
func (p *Pipeline) Start(ctx context.Context, in extract.RawInput, fn extract.ProgressFunc) extract.Result {
	return p.orch.Start(ctx, in, fn)
}

// NormalizeAndStructure cleans text and builds a draft from it.
func NormalizeAndStructure(text string) recipe.Draft {
	return structure.Build(normalize.Normalize(text).Text)
}

// NormalizeAndStructure is the package function with the applied fixes logged.
func (p *Pipeline) NormalizeAndStructure(text string) recipe.Draft {
	d, _ := p.normalizeAndStructure(text)
	return d
}

func (p *Pipeline) normalizeAndStructure(text string) (recipe.Draft, normalize.Fix) {
	norm := normalize.Normalize(text)
	d := structure.Build(norm.Text)
	p.logger.Debug("structured recipe text",
		"fixes", norm.Fixes.String(),
		"title", d.Title,
		"ingredients", len(d.Ingredients),
		"instructions", len(d.Instructions))
	return d, norm.Fixes
}

// ClassifyAndConvert classifies d and converts it with the matching strategy.
// The result always satisfies ConversionResult.Valid.
func (p *Pipeline) ClassifyAndConvert(ctx context.Context, d recipe.Draft, system recipe.UnitSystem) recipe.ConversionResult {
	if err := ctx.Err(); err != nil {
		return recipe.Failed(recipe.AsError(recipe.SourceConvert, err))
	}
	t := p.classifier.Classify(d)
	res := p.converters.Convert(d.Clone(), t, system)
	if !res.Valid() {
		p.logger.Error("converter returned an inconsistent result", "type", t, "success", res.Success)
		return recipe.Failed(recipe.Unknown(recipe.SourceConvert, nil))
	}
	return res
}
