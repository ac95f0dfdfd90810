package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/larder/internal/extract"
	"github.com/jackzampolin/larder/internal/providers"
)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.logger = logger
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("ocr_providers", defaults.OCRProviders)
	v.SetDefault("llm_providers", defaults.LLMProviders)
	setStructDefaults(v, "defaults", defaults.Defaults)
	setStructDefaults(v, "extraction", defaults.Extraction)
	setStructDefaults(v, "tools", defaults.Tools)
	setStructDefaults(v, "storage", defaults.Storage)

	// Environment variables with LARDER_ prefix, e.g. LARDER_STORAGE_DRIVER
	v.SetEnvPrefix("LARDER")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.larder")
	}

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the file the configuration was read from, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cm.reload(e.Name)
	})
	cm.v.WatchConfig()
}

// reload re-reads the viper state and notifies callbacks.
func (cm *Manager) reload(source string) {
	cfg, err := cm.load()
	if err != nil {
		cm.mu.RLock()
		logger := cm.logger
		cm.mu.RUnlock()
		logger.Warn("config reload failed, keeping previous config", "file", source, "error", err)
		return
	}

	cm.mu.Lock()
	cm.config = cfg
	callbacks := make([]func(*Config), len(cm.callbacks))
	copy(callbacks, cm.callbacks)
	logger := cm.logger
	cm.mu.Unlock()

	logger.Info("config reloaded", "file", source)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys. Tesseract providers pick
// up the tool settings.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		OCRProviders: make(map[string]providers.OCRProviderConfig),
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, ocr := range c.OCRProviders {
		pc := providers.OCRProviderConfig{
			Type:      ocr.Type,
			Model:     ocr.Model,
			APIKey:    ResolveEnvVars(ocr.APIKey),
			BaseURL:   ocr.BaseURL,
			RateLimit: ocr.RateLimit,
			Enabled:   ocr.Enabled,
		}
		if ocr.Type == providers.TypeTesseract {
			pc.Binary = c.Tools.Tesseract
			pc.Lang = c.Tools.TesseractLang
			pc.TessdataDir = c.Tools.TessdataDir
		}
		cfg.OCRProviders[name] = pc
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:      llm.Type,
			Model:     llm.Model,
			APIKey:    ResolveEnvVars(llm.APIKey),
			BaseURL:   llm.BaseURL,
			RateLimit: llm.RateLimit,
			Enabled:   llm.Enabled,
		}
	}

	return cfg
}

// ToExtractConfig converts the extraction section into orchestrator limits.
// Zero values fall back to the extract defaults.
func (c *Config) ToExtractConfig() extract.Config {
	e := c.Extraction
	out := extract.DefaultConfig()
	setBytes(&out.MaxImageBytes, e.MaxImageMB)
	setBytes(&out.MaxPDFBytes, e.MaxPDFMB)
	setBytes(&out.MaxTextBytes, e.MaxTextMB)
	setDuration(&out.ImageTimeout, e.ImageTimeoutSeconds, time.Second)
	setDuration(&out.TextTimeout, e.TextTimeoutSeconds, time.Second)
	setDuration(&out.PDFTimeoutBase, e.PDFTimeoutBaseSeconds, time.Second)
	setDuration(&out.PDFTimeoutPer2MiB, e.PDFTimeoutPer2MBSecond, time.Second)
	setDuration(&out.PDFTimeoutMax, e.PDFTimeoutMaxSeconds, time.Second)
	setDuration(&out.ProgressInterval, e.ProgressIntervalMS, time.Millisecond)
	setDuration(&out.StallAfter, e.StallSeconds, time.Second)
	setDuration(&out.SlowAfter, e.SlowSeconds, time.Second)
	return out
}

// PDFOptions returns the PDF backend settings. Runner and Logger are left
// for the caller.
func (c *Config) PDFOptions() extract.PDFConfig {
	e := c.Extraction
	opts := extract.PDFConfig{
		Binary:     c.Tools.PDFToText,
		Workers:    e.PDFWorkers,
		ChunkPages: e.ChunkPages,
		YieldDelay: time.Duration(e.YieldDelayMS) * time.Millisecond,
	}
	setBytes(&opts.ChunkThreshold, e.ChunkThresholdMB)
	return opts
}

func setBytes(dst *int64, mb float64) {
	if mb > 0 {
		*dst = int64(mb * (1 << 20))
	}
}

func setDuration(dst *time.Duration, n int, unit time.Duration) {
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Larder configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export MISTRAL_API_KEY=xxx OPENAI_API_KEY=xxx
# Leave defaults.llm_provider empty to recover failed recipes without an LLM

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
