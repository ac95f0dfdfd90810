package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if _, ok := cfg.GetOCRProvider("tesseract"); !ok {
		t.Error("expected tesseract OCR provider")
	}
	mistral, ok := cfg.GetOCRProvider("mistral")
	if !ok || mistral.APIKey != "${MISTRAL_API_KEY}" {
		t.Errorf("mistral = %+v, want api key placeholder", mistral)
	}
	openai, ok := cfg.GetLLMProvider("openai")
	if !ok || openai.APIKey != "${OPENAI_API_KEY}" {
		t.Errorf("openai = %+v, want api key placeholder", openai)
	}
	if cfg.Defaults.Units != "original" {
		t.Errorf("Defaults.Units = %q, want original", cfg.Defaults.Units)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_MISTRAL_KEY", "m-key")

	cfg := DefaultConfig()
	cfg.OCRProviders["mistral"] = OCRProviderCfg{Type: "mistral-ocr", APIKey: "${TEST_MISTRAL_KEY}", Enabled: true}
	cfg.Tools.Tesseract = "/opt/bin/tesseract"
	cfg.Tools.TesseractLang = "deu"

	reg := cfg.ToProviderRegistryConfig()

	if got := reg.OCRProviders["mistral"].APIKey; got != "m-key" {
		t.Errorf("mistral APIKey = %q, want m-key", got)
	}
	tess := reg.OCRProviders["tesseract"]
	if tess.Binary != "/opt/bin/tesseract" || tess.Lang != "deu" {
		t.Errorf("tesseract = %+v, want tool settings applied", tess)
	}
	if reg.OCRProviders["mistral"].Binary != "" {
		t.Error("tool settings leaked into a remote provider")
	}
	if reg.LLMProviders["openai"].Model != "gpt-4o-mini" {
		t.Errorf("openai = %+v", reg.LLMProviders["openai"])
	}
}

func TestToExtractConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extraction.MaxTextMB = 1
	cfg.Extraction.ProgressIntervalMS = 250
	cfg.Extraction.StallSeconds = 0

	ec := cfg.ToExtractConfig()
	if ec.MaxTextBytes != 1<<20 {
		t.Errorf("MaxTextBytes = %d, want %d", ec.MaxTextBytes, 1<<20)
	}
	if ec.ProgressInterval != 250*time.Millisecond {
		t.Errorf("ProgressInterval = %v", ec.ProgressInterval)
	}
	if ec.StallAfter != 15*time.Second {
		t.Errorf("StallAfter = %v, want the default when unset", ec.StallAfter)
	}
	if ec.PDFTimeoutMax != 10*time.Minute {
		t.Errorf("PDFTimeoutMax = %v", ec.PDFTimeoutMax)
	}

	pdf := cfg.PDFOptions()
	if pdf.Binary != "pdftotext" || pdf.ChunkPages != 4 || pdf.ChunkThreshold != 5<<20 {
		t.Errorf("PDFOptions() = %+v", pdf)
	}
	if pdf.YieldDelay != 50*time.Millisecond {
		t.Errorf("YieldDelay = %v", pdf.YieldDelay)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
defaults:
  units: metric
llm_providers:
  local:
    type: openai
    model: llama3
    api_key: none
    base_url: http://localhost:11434/v1
    enabled: true
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.Units != "metric" {
			t.Errorf("Units = %q, want metric", cfg.Defaults.Units)
		}
		if cfg.Defaults.OCRProvider != "tesseract" {
			t.Errorf("OCRProvider = %q, want default kept for unset key", cfg.Defaults.OCRProvider)
		}
		local, ok := cfg.GetLLMProvider("local")
		if !ok || local.BaseURL != "http://localhost:11434/v1" {
			t.Errorf("local = %+v", local)
		}
		if cfg.Extraction.ChunkPages != 4 {
			t.Errorf("ChunkPages = %d, want default", cfg.Extraction.ChunkPages)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("ConfigFile() = %q", mgr.ConfigFile())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LARDER_STORAGE_DRIVER", "memory")
		mgr, err := NewManager(writeConfig(t, "storage:\n  driver: sqlite\n"))
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Storage.Driver; got != "memory" {
			t.Errorf("Storage.Driver = %q, want memory", got)
		}
	})

	t.Run("malformed file", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "defaults: [unclosed\n")); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestManager_Reload(t *testing.T) {
	configFile := writeConfig(t, "defaults:\n  units: metric\n")
	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var calls atomic.Int32
	var last atomic.Pointer[Config]
	mgr.OnChange(func(cfg *Config) {
		calls.Add(1)
		last.Store(cfg)
	})
	mgr.OnChange(func(*Config) { calls.Add(1) })

	if err := os.WriteFile(configFile, []byte("defaults:\n  units: imperial\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := mgr.v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	mgr.reload(configFile)

	if calls.Load() != 2 {
		t.Errorf("callbacks = %d, want 2", calls.Load())
	}
	if cfg := last.Load(); cfg == nil || cfg.Defaults.Units != "imperial" {
		t.Errorf("callback config = %+v", cfg)
	}
	if mgr.Get().Defaults.Units != "imperial" {
		t.Errorf("Get().Defaults.Units = %q", mgr.Get().Defaults.Units)
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"defaults.units", false},
		{"ocr_providers.mistral-2.api_key", false},
		{"", true},
		{".defaults", true},
		{"defaults.", true},
		{"defaults units", true},
		{"defaults/units", true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidKey) {
				t.Errorf("error %v is not ErrInvalidKey", err)
			}
		})
	}
}

func TestManager_Entries(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "tools:\n  tesseract_lang: fra\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	entries := mgr.Entries()
	byKey := make(map[string]Entry)
	for i, e := range entries {
		byKey[e.Key] = e
		if i > 0 && entries[i-1].Key > e.Key {
			t.Errorf("entries not sorted at %q", e.Key)
		}
	}
	lang, ok := byKey["tools.tesseract_lang"]
	if !ok || lang.Value != "fra" {
		t.Errorf("tools.tesseract_lang = %+v", lang)
	}
	if byKey["storage.driver"].Description == "" {
		t.Error("storage.driver has no description")
	}

	entry, err := mgr.Lookup("Defaults.Units")
	if err != nil || entry.Value != "original" {
		t.Errorf("Lookup() = %+v, %v", entry, err)
	}
	if _, err := mgr.Lookup("nope.nothing"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Lookup(missing) error = %v", err)
	}
	if _, err := mgr.Lookup("bad key"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Lookup(bad) error = %v", err)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# Larder configuration") {
		t.Errorf("missing header:\n%s", data)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager(written default) error = %v", err)
	}
	if got := mgr.Get().Extraction.MaxImageMB; got != 15 {
		t.Errorf("MaxImageMB = %v, want 15", got)
	}
}
