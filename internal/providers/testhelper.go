package providers

import (
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey  string
	MistralAPIKey string
	HasTesseract  bool
}

// LoadTestConfig loads provider API keys from environment variables and
// checks whether tesseract is on PATH.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		MistralAPIKey: os.Getenv("MISTRAL_API_KEY"),
		HasTesseract:  LookPath(tesseractDefaultBinary),
	}
}

// HasOpenAI returns true if an OpenAI API key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasMistral returns true if Mistral API key is configured.
func (c TestConfig) HasMistral() bool {
	return c.MistralAPIKey != ""
}

// HasAnyOCR returns true if any OCR provider is usable.
func (c TestConfig) HasAnyOCR() bool {
	return c.HasMistral() || c.HasTesseract
}

// RegistryConfig builds a registry config from whatever is available.
func (c TestConfig) RegistryConfig() RegistryConfig {
	return RegistryConfig{
		OCRProviders: map[string]OCRProviderConfig{
			TypeTesseract:  {Type: TypeTesseract, Enabled: c.HasTesseract},
			TypeMistralOCR: {Type: TypeMistralOCR, APIKey: c.MistralAPIKey, Enabled: c.HasMistral()},
		},
		LLMProviders: map[string]LLMProviderConfig{
			TypeOpenAI: {Type: TypeOpenAI, APIKey: c.OpenAIAPIKey, Enabled: c.HasOpenAI()},
		},
	}
}
