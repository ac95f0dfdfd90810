package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// maxStructuredRepairAttempts bounds the follow-up requests sent when a
// structured reply fails to parse or validate.
const maxStructuredRepairAttempts = 2

// maxEchoedOutput caps how much of a bad reply is quoted back in a repair prompt.
const maxEchoedOutput = 12000

var (
	errEmptyStructured = errors.New("empty structured output")

	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ParseStructuredJSON pulls one JSON document out of model output. Replies
// wrapped in markdown fences or prose are accepted, as are trailing commas
// and typographic quotes. The result is compact JSON.
func ParseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errEmptyStructured
	}

	for _, candidate := range jsonCandidates(content) {
		if doc, ok := compactJSON(candidate); ok {
			return doc, nil
		}
		if doc, ok := compactJSON(lenient(candidate)); ok {
			return doc, nil
		}
	}
	return nil, fmt.Errorf("failed to parse structured JSON")
}

// jsonCandidates lists the substrings of content that may hold the document,
// most literal first.
func jsonCandidates(content string) []string {
	out := []string{content}
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, c := range out {
			if c == s {
				return
			}
		}
		out = append(out, s)
	}
	add(unfence(content))
	add(balancedValue(content))
	return out
}

func compactJSON(s string) (json.RawMessage, bool) {
	if !json.Valid([]byte(s)) {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

func lenient(s string) string {
	return trailingComma.ReplaceAllString(smartQuotes.Replace(s), "$1")
}

// unfence returns the body of a ``` fenced block, or "".
func unfence(content string) string {
	start := strings.Index(content, "```")
	if start < 0 {
		return ""
	}
	body := content[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:] // language tag
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return body
}

// balancedValue returns the first complete {...} or [...] in content,
// ignoring brackets inside strings.
func balancedValue(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// compiled schemas keyed by their source text; recovery validates every
// reply against the same schema.
var schemaCache sync.Map

// ValidateStructuredJSON validates parsed JSON against schemaRaw, which may be
// a bare schema, {"name","schema"} or {"json_schema":{"schema"}}.
func ValidateStructuredJSON(schemaRaw, parsed json.RawMessage) error {
	if len(schemaRaw) == 0 || len(parsed) == 0 {
		return nil
	}

	schema, err := compileSchema(schemaRaw)
	if err != nil {
		return err
	}

	var doc any
	if err := json.Unmarshal(parsed, &doc); err != nil {
		return fmt.Errorf("failed to decode structured JSON for validation: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("structured output does not match schema: %w", err)
	}
	return nil
}

func compileSchema(schemaRaw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaRaw)
	if s, ok := schemaCache.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	core, err := innerSchema(schemaRaw)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(core)); err != nil {
		return nil, fmt.Errorf("failed to load structured schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile structured schema: %w", err)
	}
	schemaCache.Store(key, schema)
	return schema, nil
}

// innerSchema unwraps the response_format envelopes used by chat APIs.
func innerSchema(schemaRaw json.RawMessage) (json.RawMessage, error) {
	var envelope struct {
		Schema     json.RawMessage `json:"schema"`
		JSONSchema *struct {
			Schema json.RawMessage `json:"schema"`
		} `json:"json_schema"`
	}
	if err := json.Unmarshal(schemaRaw, &envelope); err != nil {
		var arr []any
		if json.Unmarshal(schemaRaw, &arr) == nil {
			return schemaRaw, nil
		}
		return nil, fmt.Errorf("invalid structured schema JSON: %w", err)
	}
	switch {
	case len(envelope.Schema) > 0:
		return envelope.Schema, nil
	case envelope.JSONSchema != nil && len(envelope.JSONSchema.Schema) > 0:
		return envelope.JSONSchema.Schema, nil
	}
	return schemaRaw, nil
}

func structuredRepairPrompt(schemaRaw json.RawMessage, lastOutput string, issue error) string {
	lastOutput = strings.TrimSpace(lastOutput)
	if len(lastOutput) > maxEchoedOutput {
		lastOutput = lastOutput[:maxEchoedOutput] + "\n...[truncated]"
	}

	var b strings.Builder
	b.WriteString("Your last reply could not be used as a recipe draft.\n")
	fmt.Fprintf(&b, "Problem: %v\n\n", issue)
	b.WriteString("Reply again with ONLY a JSON object (no markdown, no commentary) matching this schema:\n")
	b.Write(schemaRaw)
	b.WriteString("\n\nYour previous reply was:\n")
	b.WriteString(lastOutput)
	return b.String()
}
