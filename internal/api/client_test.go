package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientPostFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/process" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		json.NewEncoder(w).Encode(map[string]string{
			"filename": hdr.Filename,
			"body":     string(body),
			"units":    r.FormValue("units"),
		})
	}))
	defer srv.Close()

	var got map[string]string
	c := NewClient(srv.URL)
	err := c.PostFile(context.Background(), "/process", "bread.txt", strings.NewReader("500g flour"), map[string]string{"units": "metric"}, &got)
	if err != nil {
		t.Fatalf("PostFile() error = %v", err)
	}
	if got["filename"] != "bread.txt" || got["body"] != "500g flour" || got["units"] != "metric" {
		t.Errorf("server saw %v", got)
	}
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/recipes/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(ErrorResponse{Error: "recipe not found", Kind: "not-found"})
		case "/plain":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx := context.Background()

	err := c.Get(ctx, "/recipes/missing", nil)
	var se *ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound || se.Kind != "not-found" {
		t.Errorf("Get() error = %v", err)
	}

	if err := c.Get(ctx, "/plain", nil); err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Get(/plain) error = %v", err)
	}

	var out map[string]any
	if err := c.Delete(ctx, "/recipes/x"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := c.Post(ctx, "/empty", map[string]string{"a": "b"}, &out); err != nil {
		t.Errorf("Post() with empty body error = %v", err)
	}
}
