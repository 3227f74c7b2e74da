package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"vitae/internal/services"
)

const (
	previewLimit  = 500
	contextRadius = 50
)

var (
	errEmptyResponse = errors.New("empty response")
	errNoStructure   = errors.New("no JSON structure found")
)

// doubleEscapes undoes generators that escape control sequences twice, so a
// string literal carries a backslash-n pair instead of a newline escape.
var doubleEscapes = strings.NewReplacer(`\\n`, `\n`, `\\t`, `\t`, `\\r`, `\r`)

// InvalidResponseError reports generator output that could not be recovered
// into a structured value. It never carries more than a bounded preview of
// the offending text.
type InvalidResponseError struct {
	Preview string
	Cause   error
	// Offset is the byte offset of the failure within the parsed candidate,
	// or -1 when the underlying error does not report one.
	Offset  int
	Context string
}

func (e *InvalidResponseError) Error() string {
	var b strings.Builder
	b.WriteString("invalid response")
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Offset >= 0 && e.Context != "" {
		fmt.Fprintf(&b, " (near offset %d: %q)", e.Offset, e.Context)
	}
	return b.String()
}

func (e *InvalidResponseError) Unwrap() error { return e.Cause }

// Is matches services.ErrInvalidResponse so callers classify without
// depending on this package.
func (e *InvalidResponseError) Is(target error) bool {
	return target == services.ErrInvalidResponse
}

func (e *InvalidResponseError) ErrorKind() string { return services.KindInvalidResponse }

// Parse recovers the first structured JSON value from raw generator output.
// Wrapping code fences, double-escaped control sequences, whole-text quoted
// JSON, and surrounding prose are tolerated; nothing else is repaired.
func Parse(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, newInvalid(raw, errEmptyResponse, "", -1)
	}

	text = stripCodeFence(text)
	unescaped := doubleEscapes.Replace(text)

	value, candidate, err := extract(unescaped)
	if err != nil && unescaped != text {
		// A quoted payload can legitimately carry escaped escapes; retry as-is.
		if v, _, plainErr := extract(text); plainErr == nil {
			return v, nil
		}
	}
	if err != nil {
		return nil, newInvalid(raw, err, candidate, errorOffset(err))
	}
	return value, nil
}

func extract(text string) (any, string, error) {
	text = unwrapQuoted(text)
	candidate, ok := locateCandidate(text)
	if !ok {
		return nil, "", errNoStructure
	}
	value, err := decode(candidate)
	if err != nil {
		return nil, candidate, err
	}
	return value, candidate, nil
}

// Object is Parse restricted to a top-level JSON object.
func Object(raw string) (map[string]any, error) {
	value, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, newInvalid(raw, fmt.Errorf("expected JSON object, got %s", describe(value)), "", -1)
	}
	return obj, nil
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := text[3 : len(text)-3]
	// Drop the info string (e.g. "json") on the opening fence line.
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		info := strings.TrimSpace(body[:nl])
		if !strings.ContainsAny(info, "{[\"") {
			body = body[nl+1:]
		}
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	return strings.TrimSpace(body)
}

func unwrapQuoted(text string) string {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return text
	}
	var inner string
	if err := json.Unmarshal([]byte(text), &inner); err != nil {
		return text
	}
	inner = strings.TrimSpace(stripCodeFence(strings.TrimSpace(inner)))
	if !strings.ContainsAny(inner, "{[") {
		return text
	}
	return inner
}

// locateCandidate returns the first complete object (or array, when the text
// opens with one). Unbalanced text falls back to the greedy span between the
// first opening and last closing brace.
func locateCandidate(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	open, closing := byte('{'), byte('}')
	if text[0] == '[' {
		open, closing = '[', ']'
	}
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}
	if end, ok := matchingClose(text, start); ok {
		return text[start : end+1], true
	}
	end := strings.LastIndexByte(text, closing)
	if end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func matchingClose(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i, true
			}
			if depth < 0 {
				return 0, false
			}
		}
	}
	return 0, false
}

func decode(candidate string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return value, nil
}

func errorOffset(err error) int {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return int(syntaxErr.Offset)
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return int(typeErr.Offset)
	}
	return -1
}

func newInvalid(raw string, cause error, candidate string, offset int) *InvalidResponseError {
	e := &InvalidResponseError{
		Preview: truncateRunes(strings.TrimSpace(raw), previewLimit),
		Cause:   cause,
		Offset:  offset,
	}
	if offset >= 0 && candidate != "" {
		e.Context = window(candidate, offset, contextRadius)
	}
	return e
}

func window(text string, offset, radius int) string {
	if offset > len(text) {
		offset = len(text)
	}
	lo := max(offset-radius, 0)
	hi := min(offset+radius, len(text))
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func truncateRunes(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

func describe(value any) string {
	switch value.(type) {
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}
