package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"vitae/internal/services"
)

// DefaultMaxBytes bounds the raw document size accepted by NewPlainText when
// no limit is given.
const DefaultMaxBytes = 2 << 20

// Text is the extracted document.
type Text struct {
	Content   string
	Pages     []string
	PageCount int
	// Truncated is set when pages beyond the ceiling were dropped.
	Truncated bool
}

// Empty reports whether the document carries no text.
func (t Text) Empty() bool {
	return strings.TrimSpace(t.Content) == ""
}

// Extractor converts raw document bytes into text, keeping at most maxPages
// pages when maxPages is positive.
type Extractor interface {
	Extract(ctx context.Context, raw []byte, maxPages int) (Text, error)
}

// PlainText extracts UTF-8 or BOM-marked UTF-16 text. Form feeds separate
// pages.
type PlainText struct {
	maxBytes int
}

// NewPlainText returns a plain-text extractor rejecting documents larger than
// maxBytes. A non-positive maxBytes uses DefaultMaxBytes.
func NewPlainText(maxBytes int) *PlainText {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &PlainText{maxBytes: maxBytes}
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

func (p *PlainText) Extract(ctx context.Context, raw []byte, maxPages int) (Text, error) {
	if err := ctx.Err(); err != nil {
		return Text{}, err
	}
	if len(raw) == 0 {
		return Text{}, services.Wrap(services.ErrValidation, "document", "extract", "document is empty", nil)
	}
	if len(raw) > p.maxBytes {
		return Text{}, services.WithHint(
			services.Wrap(services.ErrValidation, "document", "extract",
				fmt.Sprintf("document is %d bytes, limit is %d", len(raw), p.maxBytes), nil),
			"Raise extraction.max_document_bytes or submit a smaller file",
		)
	}

	decoded, err := decode(raw)
	if err != nil {
		return Text{}, err
	}
	if bytes.IndexByte(decoded, 0) >= 0 {
		return Text{}, services.Wrap(services.ErrValidation, "document", "extract", "document contains binary data", nil)
	}

	normalized := strings.ReplaceAll(string(decoded), "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")

	pages := strings.Split(normalized, "\f")
	for i := range pages {
		pages[i] = strings.TrimSpace(pages[i])
	}
	for len(pages) > 0 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}

	out := Text{PageCount: len(pages)}
	if maxPages > 0 && len(pages) > maxPages {
		pages = pages[:maxPages]
		out.Truncated = true
	}
	out.Pages = pages
	out.Content = strings.Join(pages, "\n\n")
	return out, nil
}

func decode(raw []byte) ([]byte, error) {
	if bytes.HasPrefix(raw, bomUTF16LE) || bytes.HasPrefix(raw, bomUTF16BE) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), raw)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "document", "decode", "invalid UTF-16 text", err)
		}
		return out, nil
	}
	raw = bytes.TrimPrefix(raw, bomUTF8)
	if !utf8.Valid(raw) {
		return nil, services.Wrap(services.ErrValidation, "document", "decode", "document is not valid UTF-8 text", nil)
	}
	return raw, nil
}

// Func adapts a function to the Extractor interface.
type Func func(ctx context.Context, raw []byte, maxPages int) (Text, error)

func (f Func) Extract(ctx context.Context, raw []byte, maxPages int) (Text, error) {
	return f(ctx, raw, maxPages)
}
