package config

// Config holds larder configuration.
// Stored at: {home}/config.yaml
type Config struct {
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Extraction   ExtractionCfg             `mapstructure:"extraction" yaml:"extraction"`
	Tools        ToolsCfg                  `mapstructure:"tools" yaml:"tools"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
}

// OCRProviderCfg configures an OCR provider.
type OCRProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`                           // "tesseract", "mistral-ocr"
	Model     string  `mapstructure:"model" yaml:"model,omitempty"`               // Model name (mistral-ocr)
	APIKey    string  `mapstructure:"api_key" yaml:"api_key,omitempty"`           // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url,omitempty"`         // Endpoint override
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"`     // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// LLMProviderCfg configures an LLM provider for semantic recovery.
type LLMProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`                       // "openai"
	Model     string  `mapstructure:"model" yaml:"model"`                     // Model name
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	BaseURL   string  `mapstructure:"base_url" yaml:"base_url,omitempty"`     // OpenAI-compatible endpoint
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit,omitempty"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	OCRProvider        string `mapstructure:"ocr_provider" yaml:"ocr_provider"`                 // OCR provider for images
	LLMProvider        string `mapstructure:"llm_provider" yaml:"llm_provider"`                 // LLM for recovery; empty disables the semantic pass
	Units              string `mapstructure:"units" yaml:"units"`                               // original, metric or imperial
	RecoveryMaxRetries int    `mapstructure:"recovery_max_retries" yaml:"recovery_max_retries"` // Transport retries for the recovery LLM call
}

// ExtractionCfg holds limits, timeouts and progress settings.
type ExtractionCfg struct {
	MaxImageMB             float64 `mapstructure:"max_image_mb" yaml:"max_image_mb"`
	MaxPDFMB               float64 `mapstructure:"max_pdf_mb" yaml:"max_pdf_mb"`
	MaxTextMB              float64 `mapstructure:"max_text_mb" yaml:"max_text_mb"`
	ImageTimeoutSeconds    int     `mapstructure:"image_timeout_seconds" yaml:"image_timeout_seconds"`
	TextTimeoutSeconds     int     `mapstructure:"text_timeout_seconds" yaml:"text_timeout_seconds"`
	PDFTimeoutBaseSeconds  int     `mapstructure:"pdf_timeout_base_seconds" yaml:"pdf_timeout_base_seconds"`
	PDFTimeoutPer2MBSecond int     `mapstructure:"pdf_timeout_per_2mb_seconds" yaml:"pdf_timeout_per_2mb_seconds"`
	PDFTimeoutMaxSeconds   int     `mapstructure:"pdf_timeout_max_seconds" yaml:"pdf_timeout_max_seconds"`
	ProgressIntervalMS     int     `mapstructure:"progress_interval_ms" yaml:"progress_interval_ms"`
	StallSeconds           int     `mapstructure:"stall_seconds" yaml:"stall_seconds"`
	SlowSeconds            int     `mapstructure:"slow_seconds" yaml:"slow_seconds"`
	PDFWorkers             int     `mapstructure:"pdf_workers" yaml:"pdf_workers"`             // 0 = NumCPU
	ChunkThresholdMB       float64 `mapstructure:"chunk_threshold_mb" yaml:"chunk_threshold_mb"` // PDFs above this are chunked
	ChunkPages             int     `mapstructure:"chunk_pages" yaml:"chunk_pages"`
	YieldDelayMS           int     `mapstructure:"yield_delay_ms" yaml:"yield_delay_ms"`
}

// ToolsCfg locates external programs.
type ToolsCfg struct {
	Tesseract     string `mapstructure:"tesseract" yaml:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang" yaml:"tesseract_lang"`
	TessdataDir   string `mapstructure:"tessdata_dir" yaml:"tessdata_dir,omitempty"`
	PDFToText     string `mapstructure:"pdftotext" yaml:"pdftotext"`
}

// StorageCfg selects where processed recipes are kept.
type StorageCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "memory"
	Path   string `mapstructure:"path" yaml:"path"`     // SQLite file; empty uses the home directory
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OCRProviders: map[string]OCRProviderCfg{
			"tesseract": {
				Type:    "tesseract",
				Enabled: true,
			},
			"mistral": {
				Type:      "mistral-ocr",
				APIKey:    "${MISTRAL_API_KEY}",
				RateLimit: 6.0,
				Enabled:   true,
			},
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openai": {
				Type:      "openai",
				Model:     "gpt-4o-mini",
				APIKey:    "${OPENAI_API_KEY}",
				RateLimit: 8.0,
				Enabled:   true,
			},
		},
		Defaults: DefaultsCfg{
			OCRProvider:        "tesseract",
			LLMProvider:        "openai",
			Units:              "original",
			RecoveryMaxRetries: 2,
		},
		Extraction: ExtractionCfg{
			MaxImageMB:             15,
			MaxPDFMB:               20,
			MaxTextMB:              10,
			ImageTimeoutSeconds:    240,
			TextTimeoutSeconds:     10,
			PDFTimeoutBaseSeconds:  180,
			PDFTimeoutPer2MBSecond: 60,
			PDFTimeoutMaxSeconds:   600,
			ProgressIntervalMS:     500,
			StallSeconds:           15,
			SlowSeconds:            30,
			ChunkThresholdMB:       5,
			ChunkPages:             4,
			YieldDelayMS:           50,
		},
		Tools: ToolsCfg{
			Tesseract:     "tesseract",
			TesseractLang: "eng",
			PDFToText:     "pdftotext",
		},
		Storage: StorageCfg{
			Driver: "sqlite",
		},
	}
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}
