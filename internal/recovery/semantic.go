package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

// maxPromptChars bounds the recipe text sent to the model.
const maxPromptChars = 16000

// DraftSchema is the JSON schema the semantic pass asks the model to follow.
var DraftSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "required": ["title", "ingredients", "instructions"],
  "properties": {
    "title": {"type": "string"},
    "ingredients": {
      "type": "array",
      "items": {
        "oneOf": [
          {"type": "string", "minLength": 1},
          {
            "type": "object",
            "required": ["name", "quantity", "unit"],
            "additionalProperties": false,
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "quantity": {"type": "number", "minimum": 0},
              "unit": {"type": "string"}
            }
          }
        ]
      }
    },
    "instructions": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "notes": {"type": "array", "items": {"type": "string"}}
  }
}`)

var kindHints = map[FailureKind]string{
	FailureParsing: "The text was typed or pasted but has no clear sections.",
	FailurePDF:     "The text came from a PDF. Words may be hyphenated across lines and paragraphs may be split mid-sentence.",
	FailureImage:   "The text came from OCR of a photo. Expect misread characters, broken fractions such as 1/2 read as 12, and stray symbols.",
	FailureFormat:  "The text came from a document of an unknown format. Ignore any leftover markup or control codes.",
}

func systemPrompt(kind FailureKind) string {
	return `You restructure recipe text into JSON. Keep the original wording and quantities. ` +
		`Use an object {name, quantity, unit} for ingredients with a clear amount and a plain string otherwise. ` +
		`Never invent ingredients or steps that are not in the text. ` + kindHints[kind]
}

// clipPrompt cuts text to at most maxPromptChars bytes without splitting a
// UTF-8 sequence.
func clipPrompt(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	i := maxPromptChars
	for i > 0 && !utf8.RuneStart(text[i]) {
		i--
	}
	return text[:i]
}

type semanticDraft struct {
	Title        string              `json:"title"`
	Ingredients  []recipe.Ingredient `json:"ingredients"`
	Instructions []string            `json:"instructions"`
	Notes        []string            `json:"notes"`
}

// semantic asks the LLM to re-structure text. Only transport failures are
// retried; a reply that does not match DraftSchema is returned as an error so
// the caller keeps the heuristic draft.
func (s *Stage) semantic(ctx context.Context, llm providers.LLMClient, model, requestID, text string, kind FailureKind) (recipe.Draft, error) {
	text = clipPrompt(text)
	req := &providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: systemPrompt(kind)},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: DraftSchema},
		RequestID:      requestID,
	}

	var result *providers.ChatResult
	err := retry.Do(
		func() error {
			res, err := llm.Chat(ctx, req)
			if err != nil {
				return err
			}
			result = res
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(s.maxRetries+1)),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransportError),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Debug("semantic recovery retry", "request_id", requestID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return recipe.Draft{}, fmt.Errorf("LLM call failed: %w", err)
	}
	s.logger.Debug("semantic recovery reply",
		"request_id", requestID,
		"model", llm.Name(),
		"prompt_tokens", result.PromptTokens,
		"completion_tokens", result.CompletionTokens,
		"duration_ms", result.ExecutionTime.Milliseconds())

	parsed := result.ParsedJSON
	if len(parsed) == 0 {
		if parsed, err = providers.ParseStructuredJSON(result.Content); err != nil {
			return recipe.Draft{}, err
		}
	}
	if err := providers.ValidateStructuredJSON(DraftSchema, parsed); err != nil {
		return recipe.Draft{}, err
	}

	var sd semanticDraft
	if err := json.Unmarshal(parsed, &sd); err != nil {
		return recipe.Draft{}, fmt.Errorf("failed to decode recovered draft: %w", err)
	}
	d := recipe.Draft{
		Title:        strings.TrimSpace(sd.Title),
		Ingredients:  sd.Ingredients,
		Instructions: trimAll(sd.Instructions),
		Notes:        trimAll(sd.Notes),
	}
	if len(d.Ingredients) == 0 && len(d.Instructions) == 0 {
		return recipe.Draft{}, errors.New("LLM returned an empty recipe")
	}
	return d, nil
}

// isTransportError separates network and server trouble from replies that
// failed schema validation, which a retry would not fix.
func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rle *providers.RateLimitError
	if errors.As(err, &rle) {
		return true
	}
	var se *providers.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	msg := err.Error()
	return !strings.Contains(msg, "schema") && !strings.Contains(msg, "structured")
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
