package endpoints

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/larder/internal/extract"
)

// maxFieldBytes bounds the non-file form fields.
const maxFieldBytes = 4 << 10

// upload is one parsed request body.
type upload struct {
	Input  extract.RawInput
	Fields map[string]string
}

// readUpload reads a multipart form with a "file" part, or a raw body whose
// kind comes from ?kind= or the Content-Type. At most limit bytes of the file
// are read; a longer file is marked truncated and the orchestrator rejects it.
func readUpload(r *http.Request, limit int64) (*upload, error) {
	up := &upload{Fields: make(map[string]string)}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			up.Fields[k] = v[0]
		}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, truncated, err := readLimited(r.Body, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to read body: %w", err)
		}
		kind := up.Fields["kind"]
		if kind == "" && mediaType != "application/octet-stream" {
			kind = mediaType
		}
		up.Input = extract.RawInput{Data: data, Kind: extract.ParseKind(kind), Filename: up.Fields["filename"], Truncated: truncated}
		if truncated && r.ContentLength > 0 {
			up.Input.DeclaredSize = r.ContentLength
		}
		return up, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	found := false
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse form: %w", err)
		}
		name := part.FormName()
		if name == "file" {
			data, truncated, err := readLimited(part, limit)
			part.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			up.Input.Data = data
			up.Input.Truncated = truncated
			up.Input.Filename = part.FileName()
			if ct := part.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
				up.Input.Kind = extract.ParseKind(ct)
			}
			found = true
			continue
		}
		value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read field %s: %w", name, err)
		}
		up.Fields[name] = strings.TrimSpace(string(value))
	}
	if !found {
		return nil, errors.New(`no file uploaded (expected form field "file")`)
	}
	if k := up.Fields["kind"]; k != "" {
		up.Input.Kind = extract.ParseKind(k)
	}
	return up, nil
}

// readLimited reads at most limit bytes and reports whether r had more.
func readLimited(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil || int64(len(data)) < limit {
		return data, false, err
	}
	var next [1]byte
	n, err := io.ReadFull(r, next[:])
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}
	return data, n > 0, nil
}

// uploadLimit is one byte over the largest extraction limit.
func uploadLimit(cfg extract.Config) int64 {
	limit := cfg.MaxImageBytes
	if cfg.MaxPDFBytes > limit {
		limit = cfg.MaxPDFBytes
	}
	if cfg.MaxTextBytes > limit {
		limit = cfg.MaxTextBytes
	}
	return limit + 1
}

// openArg opens a CLI file argument; "-" reads stdin.
func openArg(arg string) (io.ReadCloser, string, error) {
	if arg == "-" {
		return io.NopCloser(os.Stdin), "stdin", nil
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, "", err
	}
	return f, filepath.Base(arg), nil
}
