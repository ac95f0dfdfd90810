package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Provider types accepted in configuration.
const (
	TypeTesseract  = "tesseract"
	TypeMistralOCR = "mistral-ocr"
	TypeOpenAI     = "openai"
)

// Registry holds references to LLM clients and OCR providers.
// It supports config-driven instantiation and hot-reload, and is safe for
// concurrent use.
type Registry struct {
	mu           sync.RWMutex
	llmClients   map[string]LLMClient
	ocrProviders map[string]OCRProvider
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients:   make(map[string]LLMClient),
		ocrProviders: make(map[string]OCRProvider),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	r.logger.Info("registered LLM client", "name", name)
}

// RegisterOCR registers an OCR provider by name.
func (r *Registry) RegisterOCR(name string, provider OCRProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocrProviders[name] = provider
	r.logger.Info("registered OCR provider", "name", name)
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// GetOCR returns an OCR provider by name.
func (r *Registry) GetOCR(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ocrProviders[name]
	if !ok {
		return nil, fmt.Errorf("OCR provider not found: %s", name)
	}
	return provider, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.llmClients)
}

// ListOCR returns all registered OCR provider names, sorted.
func (r *Registry) ListOCR() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.ocrProviders)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// HasOCR checks if an OCR provider is registered.
func (r *Registry) HasOCR(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ocrProviders[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	OCRProviders map[string]OCRProviderConfig
	LLMProviders map[string]LLMProviderConfig

	// Runner executes local tools; nil uses os/exec.
	Runner Runner
}

// OCRProviderConfig describes one OCR provider with its API key resolved.
type OCRProviderConfig struct {
	Type        string  // "tesseract", "mistral-ocr"
	Model       string  // Model name (mistral)
	APIKey      string  // Resolved API key (mistral)
	BaseURL     string  // Optional endpoint override
	RateLimit   float64 // Requests per second
	Binary      string  // tesseract executable
	Lang        string  // tesseract language
	TessdataDir string
	Enabled     bool
}

// LLMProviderConfig describes one chat provider with its API key resolved.
type LLMProviderConfig struct {
	Type      string  // "openai"
	Model     string  // Model name
	APIKey    string  // Resolved API key
	BaseURL   string  // Optional OpenAI-compatible endpoint
	RateLimit float64 // Requests per second
	Enabled   bool
}

// usable reports whether a provider can be created. Local tesseract needs no key.
func (c OCRProviderConfig) usable() bool {
	return c.Enabled && (c.Type == TypeTesseract || c.APIKey != "")
}

func (c LLMProviderConfig) usable() bool {
	return c.Enabled && c.APIKey != ""
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration. Providers that are
// no longer configured are removed; providers whose settings changed are
// recreated.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wantLLM := make(map[string]bool)
	wantOCR := make(map[string]bool)

	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.usable() {
			continue
		}
		wantLLM[name] = true

		existing, hasExisting := r.llmClients[name]
		if hasExisting && !needsLLMUpdate(existing, provCfg) {
			continue
		}
		client := createLLMClient(provCfg)
		if client == nil {
			r.logger.Warn("unknown LLM provider type", "name", name, "type", provCfg.Type)
			continue
		}
		r.llmClients[name] = client
		r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type, "updated", hasExisting)
	}

	for name, provCfg := range cfg.OCRProviders {
		if !provCfg.usable() {
			continue
		}
		wantOCR[name] = true

		existing, hasExisting := r.ocrProviders[name]
		if hasExisting && !needsOCRUpdate(existing, provCfg) {
			continue
		}
		provider := createOCRProvider(provCfg, cfg.Runner, r.logger)
		if provider == nil {
			r.logger.Warn("unknown OCR provider type", "name", name, "type", provCfg.Type)
			continue
		}
		r.ocrProviders[name] = provider
		r.logger.Info("registered OCR provider", "name", name, "type", provCfg.Type, "updated", hasExisting)
	}

	for name := range r.llmClients {
		if !wantLLM[name] {
			delete(r.llmClients, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}
	for name := range r.ocrProviders {
		if !wantOCR[name] {
			delete(r.ocrProviders, name)
			r.logger.Info("unregistered OCR provider", "name", name)
		}
	}
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(cfg LLMProviderConfig) LLMClient {
	switch cfg.Type {
	case TypeOpenAI:
		return NewOpenAIChatClient(OpenAIChatConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil
	}
}

// createOCRProvider creates an OCR provider based on provider type.
func createOCRProvider(cfg OCRProviderConfig, runner Runner, logger *slog.Logger) OCRProvider {
	switch cfg.Type {
	case TypeTesseract:
		return NewTesseractClient(TesseractConfig{
			Binary:      cfg.Binary,
			Lang:        cfg.Lang,
			TessdataDir: cfg.TessdataDir,
			Runner:      runner,
			Logger:      logger,
		})
	case TypeMistralOCR:
		return NewMistralOCRClient(MistralOCRConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil
	}
}

// needsLLMUpdate checks if an LLM client needs to be recreated.
func needsLLMUpdate(client LLMClient, cfg LLMProviderConfig) bool {
	switch c := client.(type) {
	case *OpenAIChatClient:
		return c.apiKey != cfg.APIKey ||
			c.model != cfg.Model ||
			c.baseURL != cfg.BaseURL ||
			(cfg.RateLimit > 0 && c.rateLimit != cfg.RateLimit)
	default:
		return true
	}
}

// needsOCRUpdate checks if an OCR provider needs to be recreated.
func needsOCRUpdate(provider OCRProvider, cfg OCRProviderConfig) bool {
	switch p := provider.(type) {
	case *MistralOCRClient:
		return cfg.Type != TypeMistralOCR ||
			p.apiKey != cfg.APIKey ||
			(cfg.RateLimit > 0 && p.rateLimit != cfg.RateLimit)
	case *TesseractClient:
		return cfg.Type != TypeTesseract ||
			(cfg.Binary != "" && p.binary != cfg.Binary) ||
			(cfg.Lang != "" && p.lang != cfg.Lang) ||
			p.tessdataDir != cfg.TessdataDir
	default:
		return true
	}
}
