// Package extract turns raw uploads (photos, PDFs, text files) into plain
// text. The Orchestrator dispatches each input to one Backend by kind and
// wraps every call in the same contract: size limits up front, a timeout
// race, throttled progress, cooperative cancellation and typed failures.
package extract

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jackzampolin/larder/internal/recipe"
)

// Kind is the media kind of an input.
type Kind string

const (
	KindUnknown Kind = ""
	KindImage   Kind = "image"
	KindPDF     Kind = "pdf"
	KindText    Kind = "text"
)

// Source returns the recipe error source for the kind.
func (k Kind) Source() string {
	switch k {
	case KindImage:
		return recipe.SourceImage
	case KindPDF:
		return recipe.SourcePDF
	default:
		return recipe.SourceText
	}
}

// RawInput is one upload. It is owned by the caller and never persisted.
type RawInput struct {
	Data     []byte
	Kind     Kind   // Declared kind; empty means sniff
	Filename string // Optional, used for extension sniffing

	// Truncated is set when Data stops at a read limit and the upload had
	// more bytes. DeclaredSize is the sender's Content-Length, 0 if unknown.
	Truncated    bool
	DeclaredSize int64
}

// Size returns the payload size in bytes. A truncated input reports its
// declared size when the sender gave one.
func (in RawInput) Size() int64 {
	if in.Truncated && in.DeclaredSize > int64(len(in.Data)) {
		return in.DeclaredSize
	}
	return int64(len(in.Data))
}

// ParseKind maps a declared kind or MIME type to a Kind. Unknown values map
// to KindUnknown so sniffing can continue.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	switch {
	case s == "image" || strings.HasPrefix(s, "image/"):
		return KindImage
	case s == "pdf" || s == "application/pdf":
		return KindPDF
	case s == "text" || strings.HasPrefix(s, "text/"):
		return KindText
	case wordProcessorMIME[s]:
		return KindText
	}
	return KindUnknown
}

var wordProcessorMIME = map[string]bool{
	"application/msword": true,
	"application/rtf":    true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.oasis.opendocument.text":                                 true,
}

var extensionKinds = map[string]Kind{
	".png":   KindImage,
	".jpg":   KindImage,
	".jpeg":  KindImage,
	".gif":   KindImage,
	".webp":  KindImage,
	".tif":   KindImage,
	".tiff":  KindImage,
	".bmp":   KindImage,
	".heic":  KindImage,
	".pdf":   KindPDF,
	".txt":   KindText,
	".text":  KindText,
	".md":    KindText,
	".doc":   KindText,
	".docx":  KindText,
	".rtf":   KindText,
	".odt":   KindText,
	".pages": KindText,
}

var wordProcessorExt = map[string]bool{
	".doc":   true,
	".docx":  true,
	".rtf":   true,
	".odt":   true,
	".pages": true,
}

// KindFromExtension returns the kind implied by a filename extension.
func KindFromExtension(filename string) Kind {
	return extensionKinds[strings.ToLower(filepath.Ext(filename))]
}

var (
	magicPDF  = []byte("%PDF-")
	magicPNG  = []byte("\x89PNG\r\n\x1a\n")
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicGIF  = []byte("GIF8")
	magicTIFF = [][]byte{[]byte("II*\x00"), []byte("MM\x00*")}
	magicBMP  = []byte("BM")
	magicOLE2 = []byte{0xD0, 0xCF, 0x11, 0xE0}
	magicRTF  = []byte(`{\rtf`)
	magicZip  = []byte("PK\x03\x04")
)

// KindFromContent sniffs magic bytes. Anything unrecognized is text; the
// text backend decides whether it really is.
func KindFromContent(data []byte) Kind {
	switch {
	case bytes.HasPrefix(data, magicPDF):
		return KindPDF
	case bytes.HasPrefix(data, magicPNG),
		bytes.HasPrefix(data, magicJPEG),
		bytes.HasPrefix(data, magicGIF),
		bytes.HasPrefix(data, magicTIFF[0]),
		bytes.HasPrefix(data, magicTIFF[1]),
		isWebP(data):
		return KindImage
	case bytes.HasPrefix(data, magicBMP) && len(data) > 14:
		return KindImage
	}
	return KindText
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// ResolveKind picks the kind for an input: declared kind first, then the
// filename extension, then content magic.
func ResolveKind(in RawInput) Kind {
	if k := ParseKind(string(in.Kind)); k != KindUnknown {
		return k
	}
	if k := KindFromExtension(in.Filename); k != KindUnknown {
		return k
	}
	return KindFromContent(in.Data)
}

// IsWordProcessor reports whether the input is a rich document (Word, RTF,
// OpenDocument, Pages) that cannot be read as plain text.
func IsWordProcessor(in RawInput) bool {
	if wordProcessorExt[strings.ToLower(filepath.Ext(in.Filename))] {
		return true
	}
	if wordProcessorMIME[strings.ToLower(strings.TrimSpace(string(in.Kind)))] {
		return true
	}
	data := in.Data
	switch {
	case bytes.HasPrefix(data, magicOLE2), bytes.HasPrefix(data, magicRTF):
		return true
	case bytes.HasPrefix(data, magicZip):
		return bytes.Contains(data, []byte("word/")) ||
			bytes.Contains(data, []byte("application/vnd.oasis.opendocument.text"))
	}
	return false
}
