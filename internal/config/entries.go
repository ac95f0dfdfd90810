package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/viper"
)

// ErrInvalidKey is returned when a config key contains invalid characters.
var ErrInvalidKey = errors.New("invalid config key")

// ErrUnknownKey is returned when a key is not set in any config source.
var ErrUnknownKey = errors.New("unknown config key")

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

// Entry is one flattened configuration value.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

var descriptions = map[string]string{
	"defaults.ocr_provider":                  "OCR provider used for image uploads",
	"defaults.llm_provider":                  "LLM provider for semantic recovery (empty disables it)",
	"defaults.units":                         "Unit system when a request does not name one",
	"defaults.recovery_max_retries":          "Transport retries for the recovery LLM call",
	"extraction.max_image_mb":                "Largest accepted image upload",
	"extraction.max_pdf_mb":                  "Largest accepted PDF upload",
	"extraction.max_text_mb":                 "Largest accepted text upload",
	"extraction.image_timeout_seconds":       "Time limit for image OCR",
	"extraction.text_timeout_seconds":        "Time limit for text decoding",
	"extraction.pdf_timeout_base_seconds":    "Minimum time limit for PDF extraction",
	"extraction.pdf_timeout_per_2mb_seconds": "Extra PDF time per started 2 MB",
	"extraction.pdf_timeout_max_seconds":     "Maximum time limit for PDF extraction",
	"extraction.progress_interval_ms":        "Minimum gap between progress updates",
	"extraction.stall_seconds":               "Warn when progress has not moved for this long",
	"extraction.slow_seconds":                "Warn when extraction runs longer than this",
	"extraction.pdf_workers":                 "Concurrent PDF pages (0 uses every CPU)",
	"extraction.chunk_threshold_mb":          "PDFs above this size are processed in chunks",
	"extraction.chunk_pages":                 "Pages per PDF chunk",
	"extraction.yield_delay_ms":              "Pause between PDF chunks",
	"tools.tesseract":                        "tesseract executable",
	"tools.tesseract_lang":                   "tesseract language",
	"tools.tessdata_dir":                     "tesseract data directory",
	"tools.pdftotext":                        "pdftotext executable",
	"storage.driver":                         "Recipe store: sqlite or memory",
	"storage.path":                           "SQLite file (empty uses the larder home)",
}

// ValidateKey checks if a config key contains only allowed characters.
// Valid keys contain letters, digits, dots, underscores and hyphens.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	for i, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '_' && r != '-' {
			return fmt.Errorf("%w: invalid character %q at position %d", ErrInvalidKey, r, i)
		}
	}
	if key[0] == '.' || key[len(key)-1] == '.' {
		return fmt.Errorf("%w: key cannot start or end with a dot", ErrInvalidKey)
	}
	return nil
}

// Entries returns every configured key with its effective value, sorted by key.
// API keys are shown as written, so ${ENV_VAR} references are not expanded.
func (cm *Manager) Entries() []Entry {
	keys := cm.v.AllKeys()
	sort.Strings(keys)
	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: cm.v.Get(k), Description: describe(k)})
	}
	return entries
}

// Lookup returns the entry for one key. A section key such as "tools"
// returns the whole section.
func (cm *Manager) Lookup(key string) (*Entry, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	key = strings.ToLower(key)
	if !cm.v.IsSet(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return &Entry{Key: key, Value: cm.v.Get(key), Description: describe(key)}, nil
}

func describe(key string) string {
	if d, ok := descriptions[key]; ok {
		return d
	}
	parts := strings.Split(key, ".")
	if len(parts) == 3 {
		switch parts[0] {
		case "ocr_providers":
			return fmt.Sprintf("OCR provider %s: %s", parts[1], strings.ReplaceAll(parts[2], "_", " "))
		case "llm_providers":
			return fmt.Sprintf("LLM provider %s: %s", parts[1], strings.ReplaceAll(parts[2], "_", " "))
		}
	}
	return ""
}

// setStructDefaults registers each field of a flat section struct as its own
// key so environment overrides like LARDER_TOOLS_TESSERACT are seen.
func setStructDefaults(v *viper.Viper, section string, value any) {
	rv := reflect.ValueOf(value)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		v.SetDefault(section+"."+tag, rv.Field(i).Interface())
	}
}
