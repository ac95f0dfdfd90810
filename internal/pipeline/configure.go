package pipeline

import (
	"log/slog"

	"github.com/jackzampolin/larder/internal/config"
	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
	"github.com/jackzampolin/larder/internal/recovery"
	"github.com/jackzampolin/larder/internal/store"
)

// Options are the collaborators FromConfig cannot build from configuration.
type Options struct {
	Registry *providers.Registry // nil builds one from cfg
	Store    store.Store         // nil uses an in-memory store
	Runner   providers.Runner    // nil uses os/exec
	Logger   *slog.Logger
}

// FromConfig builds a pipeline with the text, PDF and image backends, the
// configured OCR provider and, when one is set, the recovery LLM.
func FromConfig(cfg *config.Config, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		rc := cfg.ToProviderRegistryConfig()
		rc.Runner = opts.Runner
		registry = providers.NewRegistry()
		registry.SetLogger(logger)
		registry.Reload(rc)
	}

	image := extract.NewImageBackend(registry, cfg.Defaults.OCRProvider, logger)
	orch := extract.New(cfg.ToExtractConfig(), logger,
		extract.NewTextBackend(logger),
		newPDFBackend(cfg, opts.Runner, logger),
		image,
	)
	rec := recovery.New(recovery.Config{
		MaxRetries: cfg.Defaults.RecoveryMaxRetries,
		Logger:     logger,
	})

	p := New(Config{Orchestrator: orch, Recovery: rec, Store: opts.Store, Logger: logger})
	p.registry = registry
	p.image = image
	p.runner = opts.Runner
	p.applyDefaults(cfg)
	return p
}

// ApplyConfig updates limits, tools and provider selection after a reload.
// Running extractions keep the settings they started with. The provider
// registry itself is reloaded by its owner.
func (p *Pipeline) ApplyConfig(cfg *config.Config) {
	p.orch.SetConfig(cfg.ToExtractConfig())
	if p.image != nil {
		p.image.SetProvider(cfg.Defaults.OCRProvider)
		p.orch.Register(newPDFBackend(cfg, p.runner, p.logger))
	}
	p.applyDefaults(cfg)
	p.logger.Info("pipeline reconfigured",
		"ocr_provider", cfg.Defaults.OCRProvider,
		"llm_provider", cfg.Defaults.LLMProvider,
		"units", p.DefaultUnits())
}

func (p *Pipeline) applyDefaults(cfg *config.Config) {
	units, err := recipe.ParseUnitSystem(cfg.Defaults.Units)
	if err != nil {
		p.logger.Warn("invalid default unit system, using original", "units", cfg.Defaults.Units)
		units = recipe.UnitsOriginal
	}
	p.mu.Lock()
	p.units = units
	p.mu.Unlock()

	name := cfg.Defaults.LLMProvider
	if name == "" || p.registry == nil {
		p.recovery.SetLLM(nil, "")
		return
	}
	llm, err := p.registry.GetLLM(name)
	if err != nil {
		p.logger.Info("semantic recovery disabled", "llm_provider", name, "reason", err)
		p.recovery.SetLLM(nil, "")
		return
	}
	p.recovery.SetLLM(llm, "")
}

// DefaultUnits is the unit system used when a request names none.
func (p *Pipeline) DefaultUnits() recipe.UnitSystem {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.units
}

// Registry returns the provider registry, or nil for pipelines not built
// from configuration.
func (p *Pipeline) Registry() *providers.Registry { return p.registry }

func newPDFBackend(cfg *config.Config, runner providers.Runner, logger *slog.Logger) *extract.PDFBackend {
	opts := cfg.PDFOptions()
	opts.Runner = runner
	opts.Logger = logger
	return extract.NewPDFBackend(opts)
}
