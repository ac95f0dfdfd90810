package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackzampolin/larder/internal/providers"
	"github.com/jackzampolin/larder/internal/recipe"
)

func TestKindFor(t *testing.T) {
	tests := []struct {
		name string
		err  *recipe.Error
		want FailureKind
	}{
		{"nil", nil, FailureParsing},
		{"parsing", recipe.ParsingFailed(recipe.SourceStructure, nil), FailureParsing},
		{"conversion", recipe.ConversionFailed("bad unit", nil), FailureParsing},
		{"unsupported text", recipe.Unsupported(recipe.SourceText, "binary data", ""), FailureFormat},
		{"pdf", recipe.Unsupported(recipe.SourcePDF, "damaged", ""), FailurePDF},
		{"image", recipe.Empty(recipe.SourceImage, "insufficient text"), FailureImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindFor(tt.err); got != tt.want {
				t.Errorf("KindFor() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrepare(t *testing.T) {
	tests := []struct {
		name string
		kind FailureKind
		in   string
		want string
	}{
		{
			name: "pdf dehyphenates and joins soft wraps",
			kind: FailurePDF,
			in:   "Mix the flour and wa-\nter until no dry\nbits remain.\nRest 1 hour.",
			want: "Mix the flour and water until no dry bits remain.\nRest 1 hour.",
		},
		{
			name: "pdf keeps sentence breaks",
			kind: FailurePDF,
			in:   "Bake until golden.\nlet cool",
			want: "Bake until golden.\nlet cool",
		},
		{
			name: "image repairs fractions and drops noise lines",
			kind: FailureImage,
			in:   "½ cup water\n#@*&^%$ ~~\n500g flour",
			want: "1/2 cup water\n500 g flour",
		},
		{
			name: "format strips markup",
			kind: FailureFormat,
			in:   "<p>2 cups <b>flour</b></p>\n{\\b}Knead well",
			want: " 2 cups  flour  \nKnead well",
		},
		{
			name: "parsing leaves text alone",
			kind: FailureParsing,
			in:   "<b>as is</b>",
			want: "<b>as is</b>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Prepare(tt.in, tt.kind); got != tt.want {
				t.Errorf("Prepare() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHeuristic(t *testing.T) {
	text := strings.Join([]string{
		"Grandma's Rye",
		"a family favourite",
		"Ingredients:",
		"500 g rye flour",
		"salt to taste, about a tsp",
		"1. Mix everything together",
		"Knead for ten minutes",
		"Leave it somewhere warm overnight until doubled",
	}, "\n")

	d := Heuristic(text)
	if d.Title != "Grandma's Rye" {
		t.Errorf("Title = %q", d.Title)
	}
	if len(d.Ingredients) != 2 {
		t.Fatalf("ingredients = %v", d.Ingredients)
	}
	if !d.Ingredients[0].IsParsed() || d.Ingredients[0].Name() != "rye flour" {
		t.Errorf("first ingredient = %#v", d.Ingredients[0])
	}
	if d.Ingredients[1].IsParsed() {
		t.Errorf("unit-word line should stay raw: %#v", d.Ingredients[1])
	}
	want := []string{
		"Mix everything together",
		"Knead for ten minutes",
		"Leave it somewhere warm overnight until doubled",
	}
	if strings.Join(d.Instructions, "|") != strings.Join(want, "|") {
		t.Errorf("Instructions = %q", d.Instructions)
	}
	if len(d.Notes) != 1 || d.Notes[0] != "a family favourite" {
		t.Errorf("Notes = %q", d.Notes)
	}
}

func TestRecoverPlaceholders(t *testing.T) {
	s := New(Config{})
	res := s.Recover(context.Background(), Request{ID: "r1", Text: "   "})

	if res.Draft.Title != PlaceholderTitle {
		t.Errorf("Title = %q", res.Draft.Title)
	}
	if len(res.Draft.Ingredients) != 1 || res.Draft.Ingredients[0].Text() != PlaceholderIngredients {
		t.Errorf("Ingredients = %v", res.Draft.Ingredients)
	}
	if len(res.Draft.Instructions) != 1 || res.Draft.Instructions[0] != PlaceholderInstructions {
		t.Errorf("Instructions = %v", res.Draft.Instructions)
	}
	if res.Semantic {
		t.Error("Semantic = true without an LLM")
	}
}

func TestRecoverOncePerFailure(t *testing.T) {
	llm := providers.NewMockClient()
	llm.ResponseJSON = json.RawMessage(`{"title":"Focaccia","ingredients":[{"name":"flour","quantity":500,"unit":"g"}],"instructions":["Bake."]}`)
	s := New(Config{LLM: llm})

	req := Request{ID: "r1", Text: "focaccia 500 g flour bake", Failure: recipe.ParsingFailed(recipe.SourceStructure, nil)}
	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Recover(context.Background(), req)
		}(i)
	}
	wg.Wait()

	if n := llm.RequestCount(); n != 1 {
		t.Errorf("LLM calls = %d, want 1", n)
	}
	for _, r := range results {
		if r.Draft.Title != "Focaccia" || !r.Semantic {
			t.Errorf("result = %+v", r)
		}
	}
	if !s.Handled("r1", FailureParsing) {
		t.Error("Handled() = false")
	}

	// A different failure kind for the same request is a separate attempt.
	s.Recover(context.Background(), Request{ID: "r1", Text: "x", Failure: recipe.Empty(recipe.SourceImage, "")})
	if n := llm.RequestCount(); n != 2 {
		t.Errorf("LLM calls = %d, want 2", n)
	}

	s.Forget("r1")
	if s.Handled("r1", FailureParsing) {
		t.Error("Handled() = true after Forget")
	}
}

func TestSemanticPass(t *testing.T) {
	text := "Flatbread\n300 g flour\nMix and bake"

	t.Run("valid reply replaces heuristic draft", func(t *testing.T) {
		llm := providers.NewMockClient()
		llm.ResponseJSON = json.RawMessage(`{"title":"Flatbread","ingredients":["a pinch of salt",{"name":"flour","quantity":300,"unit":"g"}],"instructions":["Mix."," Bake. "]}`)
		s := New(Config{LLM: llm, Model: "small"})

		res := s.Recover(context.Background(), Request{ID: "a", Text: text})
		if !res.Semantic {
			t.Fatal("Semantic = false")
		}
		if got := res.Draft.Ingredients[1]; !got.IsParsed() || got.Quantity() != 300 {
			t.Errorf("ingredient = %#v", got)
		}
		if res.Draft.Instructions[1] != "Bake." {
			t.Errorf("Instructions = %q", res.Draft.Instructions)
		}
		req := llm.Requests()[0]
		if req.Model != "small" || req.ResponseFormat == nil || req.RequestID != "a" {
			t.Errorf("request = %+v", req)
		}
	})

	t.Run("invalid reply falls back to heuristic", func(t *testing.T) {
		llm := providers.NewMockClient()
		llm.ResponseJSON = json.RawMessage(`{"title":"Flatbread"}`)
		s := New(Config{LLM: llm, MaxRetries: 3, RetryDelay: time.Millisecond})

		res := s.Recover(context.Background(), Request{ID: "b", Text: text})
		if res.Semantic {
			t.Error("Semantic = true for an invalid reply")
		}
		if res.Draft.Title != "Flatbread" || len(res.Draft.Ingredients) != 1 {
			t.Errorf("draft = %+v", res.Draft)
		}
		if n := llm.RequestCount(); n != 1 {
			t.Errorf("LLM calls = %d, want 1 (schema failures are not retried)", n)
		}
	})

	t.Run("transport errors are retried", func(t *testing.T) {
		llm := providers.NewMockClient()
		llm.ShouldFail = true
		s := New(Config{LLM: llm, MaxRetries: 2, RetryDelay: time.Millisecond})

		res := s.Recover(context.Background(), Request{ID: "c", Text: text})
		if res.Semantic {
			t.Error("Semantic = true after failures")
		}
		if n := llm.RequestCount(); n != 3 {
			t.Errorf("LLM calls = %d, want 3", n)
		}
	})

	t.Run("SetLLM toggles the pass", func(t *testing.T) {
		s := New(Config{})
		if s.HasLLM() {
			t.Fatal("HasLLM() = true")
		}
		s.SetLLM(providers.NewMockClient(), "")
		if !s.HasLLM() {
			t.Error("HasLLM() = false after SetLLM")
		}
	})
}

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.Canceled, false},
		{&providers.StatusError{StatusCode: 503}, true},
		{&providers.StatusError{StatusCode: 400}, false},
		{&providers.RateLimitError{Message: "slow down"}, true},
		{errors.New("structured output does not match schema"), false},
		{errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		if got := isTransportError(tt.err); got != tt.want {
			t.Errorf("isTransportError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestClipPrompt(t *testing.T) {
	short := "2 cups flour"
	// "é" is two bytes; the pad puts its second byte on the cut point.
	accent := strings.Repeat("a", maxPromptChars-1) + "é" + "tail"
	// "🍞" is four bytes starting one byte before the cut point.
	bread := strings.Repeat("a", maxPromptChars-1) + "🍞"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"under limit", short, short},
		{"exact limit", strings.Repeat("b", maxPromptChars), strings.Repeat("b", maxPromptChars)},
		{"ascii over limit", strings.Repeat("c", maxPromptChars+10), strings.Repeat("c", maxPromptChars)},
		{"two-byte rune at cut", accent, strings.Repeat("a", maxPromptChars-1)},
		{"four-byte rune at cut", bread, strings.Repeat("a", maxPromptChars-1)},
		{"rune ending at cut", strings.Repeat("a", maxPromptChars-2) + "é" + "x", strings.Repeat("a", maxPromptChars-2) + "é"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clipPrompt(tt.in)
			if got != tt.want {
				t.Errorf("clipPrompt() length = %d, want %d", len(got), len(tt.want))
			}
			if !utf8.ValidString(got) {
				t.Error("clipPrompt() split a UTF-8 sequence")
			}
			if len(got) > maxPromptChars {
				t.Errorf("clipPrompt() length %d exceeds %d", len(got), maxPromptChars)
			}
		})
	}
}
