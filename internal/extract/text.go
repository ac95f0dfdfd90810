package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jackzampolin/larder/internal/recipe"
)

const (
	sniffWindow    = 1000
	binaryMaxRatio = 0.30
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// TextBackend reads plain text uploads directly.
type TextBackend struct {
	logger *slog.Logger
}

// NewTextBackend creates the text backend.
func NewTextBackend(logger *slog.Logger) *TextBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextBackend{logger: logger}
}

func (b *TextBackend) Kind() Kind { return KindText }

func (b *TextBackend) Ready() error { return nil }

// Extract rejects word-processor documents and disguised binaries, then
// decodes the bytes to UTF-8.
func (b *TextBackend) Extract(ctx context.Context, in RawInput, rep Reporter) (string, error) {
	if IsWordProcessor(in) {
		return "", recipe.Unsupported(recipe.SourceText, "word-processor document",
			"Open the document, copy the recipe text and paste it manually.")
	}

	hasBOM := bytes.HasPrefix(in.Data, bomUTF8) ||
		bytes.HasPrefix(in.Data, bomUTF16LE) ||
		bytes.HasPrefix(in.Data, bomUTF16BE)
	if !hasBOM && IsBinary(in.Data) {
		return "", recipe.Unsupported(recipe.SourceText, "binary data", "")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rep.Progress(0.5)

	text, err := DecodeText(in.Data)
	if err != nil {
		return "", err
	}
	if encoding := detectEncoding(in.Data); encoding != "utf-8" {
		b.logger.Debug("decoded text upload", "encoding", encoding, "bytes", len(in.Data))
	}
	rep.Progress(1)
	return text, nil
}

// IsBinary reports whether more than 30% of the first 1000 bytes are control
// characters (other than tab, newline, carriage return and form feed) or
// bytes that do not form valid UTF-8.
func IsBinary(data []byte) bool {
	window := data
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	if len(window) == 0 {
		return false
	}

	bad := 0
	for i := 0; i < len(window); {
		r, size := utf8.DecodeRune(window[i:])
		switch {
		case r == utf8.RuneError && size <= 1:
			// A rune cut off by the window is not evidence of binary.
			if !utf8.FullRune(window[i:]) && len(window) < len(data) {
				i = len(window)
				continue
			}
			bad++
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r' && r != '\f':
			bad++
		case r == 0x7F:
			bad++
		}
		i += max(size, 1)
	}
	return float64(bad)/float64(len(window)) > binaryMaxRatio
}

// DecodeText converts the upload to UTF-8. A BOM selects UTF-8 or UTF-16;
// without one, valid UTF-8 is kept and anything else is read as
// Windows-1252.
func DecodeText(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8), bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", fmt.Errorf("failed to decode text: %w", err)
		}
		return string(out), nil
	case utf8.Valid(data):
		return string(data), nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return "", fmt.Errorf("failed to decode Windows-1252 text: %w", err)
		}
		return string(out), nil
	}
}

func detectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, bomUTF16LE):
		return "utf-16le"
	case bytes.HasPrefix(data, bomUTF16BE):
		return "utf-16be"
	case bytes.HasPrefix(data, bomUTF8), utf8.Valid(data):
		return "utf-8"
	default:
		return "windows-1252"
	}
}
