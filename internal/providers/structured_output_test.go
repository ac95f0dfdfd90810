package providers

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

var draftSchema = json.RawMessage(`{
	"name":"recipe_draft",
	"strict":true,
	"schema":{
		"type":"object",
		"properties":{
			"title":{"type":"string","minLength":1},
			"ingredients":{"type":"array","items":{"type":"string"},"minItems":1}
		},
		"required":["title","ingredients"],
		"additionalProperties":false
	}
}`)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"plain", `{"title":"Bread"}`, false},
		{"code fence", "```json\n{\"title\":\"Bread\"}\n```", false},
		{"surrounding prose", "Here is the recipe:\n{\"title\":\"Bread\"}\nEnjoy!", false},
		{"prose with trailing braces", "{\"title\":\"Bread\"} and {not json}", false},
		{"brace inside string", "Result: {\"title\":\"Bread\",\"note\":\"use {fresh} yeast\"}.", false},
		{"trailing comma", "{\"title\":\"Bread\",\"ingredients\":[\"flour\",],}", false},
		{"smart quotes", "{“title”:“Bread”}", false},
		{"empty", "   ", true},
		{"not json", "no braces here", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStructuredJSON(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStructuredJSON() error = %v", err)
			}
			var parsed map[string]any
			if err := json.Unmarshal(got, &parsed); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if parsed["title"] != "Bread" {
				t.Fatalf("parsed = %#v", parsed)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	valid := json.RawMessage(`{"title":"Bread","ingredients":["500 g flour"]}`)
	if err := ValidateStructuredJSON(draftSchema, valid); err != nil {
		t.Fatalf("ValidateStructuredJSON(valid) error = %v", err)
	}

	for _, doc := range []string{
		`{"title":"Bread","ingredients":[]}`,
		`{"title":"","ingredients":["x"]}`,
		`{"title":"Bread","ingredients":["x"],"extra":1}`,
	} {
		if err := ValidateStructuredJSON(draftSchema, json.RawMessage(doc)); err == nil {
			t.Errorf("ValidateStructuredJSON(%s) expected error", doc)
		}
	}
}

func TestValidateStructuredJSONBareSchema(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","required":["ok"]}`)
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"ok":true}`)); err != nil {
		t.Fatalf("error = %v", err)
	}
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for missing field")
	}
}

func TestStructuredRepairPrompt(t *testing.T) {
	long := strings.Repeat("x", maxEchoedOutput+10)
	got := structuredRepairPrompt(draftSchema, long, errors.New("missing ingredients"))
	for _, want := range []string{"missing ingredients", "recipe_draft", "[truncated]"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSchemaCache(t *testing.T) {
	first, err := compileSchema(draftSchema)
	if err != nil {
		t.Fatal(err)
	}
	second, err := compileSchema(draftSchema)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("schema compiled twice")
	}
	if _, err := compileSchema(json.RawMessage(`{"schema":`)); err == nil {
		t.Error("compileSchema() accepted invalid JSON")
	}
}
