package canonical

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// normalizer carries the stateful casers for one canonicalization pass.
// Casers are not safe for concurrent use, so each pass owns its own.
type normalizer struct {
	fold  cases.Caser
	title cases.Caser
}

func newNormalizer() *normalizer {
	return &normalizer{fold: cases.Fold(), title: cases.Title(language.Und)}
}

// keyOf reduces a field name to its comparison form: case-folded with
// separators removed, so "Work Experience", "work_experience" and
// "workExperience" collide.
func (n *normalizer) keyOf(name string) string {
	folded := n.fold.String(name)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// identity builds a dedupe key from display values.
func (n *normalizer) identity(parts ...string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.Join(strings.Fields(n.fold.String(p)), " ")
	}
	return strings.Join(out, "\x1f")
}

// fields is a folded-key view over one raw object.
type fields map[string]any

func (n *normalizer) view(m map[string]any) fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(fields, len(m))
	for _, k := range keys {
		fk := n.keyOf(k)
		if fk == "" {
			continue
		}
		if _, exists := out[fk]; !exists {
			out[fk] = m[k]
		}
	}
	return out
}

// get returns the first present value among aliases, in alias order.
func (f fields) get(aliases ...string) any {
	for _, alias := range aliases {
		if v, ok := f[alias]; ok && v != nil {
			return v
		}
	}
	return nil
}

func (f fields) text(aliases ...string) string {
	return text(f.get(aliases...))
}

// prune recursively turns blank strings into absence: they are removed from
// objects and lists.
func prune(v any) any {
	switch val := v.(type) {
	case string:
		s := clean(val)
		if s == "" {
			return nil
		}
		return s
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if p := prune(item); p != nil {
				out[k] = p
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if p := prune(item); p != nil {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, item)
		}
		return prune(out)
	case []map[string]any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, item)
		}
		return prune(out)
	default:
		return v
	}
}

func clean(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// text coerces a scalar to a trimmed NFC string. Lists of scalars are
// joined; objects carry no scalar meaning and yield "".
func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return clean(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := text(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

var bulletPrefixes = []string{"- ", "* ", "• ", "· ", "– "}

func stripBullet(s string) string {
	for {
		stripped := s
		for _, prefix := range bulletPrefixes {
			if strings.HasPrefix(stripped, prefix) {
				stripped = strings.TrimSpace(stripped[len(prefix):])
				break
			}
		}
		if stripped == s {
			return s
		}
		s = stripped
	}
}

// lines coerces v to a list of strings, splitting a single string on line
// breaks and stripping bullet markers.
func lines(v any) []string {
	return stringList(v, func(s string) []string { return strings.Split(s, "\n") })
}

// terms coerces v to a list of strings, splitting a single string on commas.
func terms(v any) []string {
	return stringList(v, func(s string) []string { return strings.Split(s, ",") })
}

func stringList(v any, split func(string) []string) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return []string{}
	case []any:
		for _, item := range val {
			if m, ok := item.(map[string]any); ok {
				// Objects inside a scalar list contribute their name-like value.
				for _, key := range []string{"name", "title", "value", "text", "url"} {
					if s := text(m[key]); s != "" {
						raw = append(raw, s)
						break
					}
				}
				continue
			}
			raw = append(raw, text(item))
		}
	default:
		s := text(val)
		if s != "" {
			raw = split(s)
		}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = stripBullet(clean(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// uniqueStrings drops case-insensitive duplicates, keeping first occurrences.
func (n *normalizer) uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := n.identity(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// objects returns the object items of a list. Non-list sources yield nil;
// string items are wrapped under stringKey when it is set.
func objects(v any, stringKey string) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		switch val := item.(type) {
		case map[string]any:
			out = append(out, val)
		case string:
			if stringKey != "" {
				out = append(out, map[string]any{stringKey: val})
			}
		}
	}
	return out
}

// expand flattens grouped shapes: an object holding a list under one of
// childKeys becomes one object per child, each inheriting the parent's
// fields it does not set itself.
func (n *normalizer) expand(items []map[string]any, childKeys []string, stringKey string) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		view := n.view(item)
		var children []map[string]any
		var childRaw string
		for _, key := range childKeys {
			if list, ok := view[key].([]any); ok {
				children = objects(list, stringKey)
				childRaw = key
				break
			}
		}
		if childRaw == "" {
			out = append(out, item)
			continue
		}
		for _, child := range children {
			merged := make(map[string]any, len(child)+len(item))
			childView := n.view(child)
			for k, v := range item {
				fk := n.keyOf(k)
				if fk == childRaw {
					continue
				}
				if _, shadowed := childView[fk]; !shadowed {
					merged[k] = v
				}
			}
			for k, v := range child {
				merged[k] = v
			}
			out = append(out, merged)
		}
	}
	return out
}

// splitRange splits a combined period like "2019 - 2021" into start and end.
func splitRange(s string) (string, string) {
	for _, sep := range []string{" - ", " – ", " — ", " to ", "–", "—"} {
		if idx := strings.Index(s, sep); idx > 0 {
			return clean(s[:idx]), clean(s[idx+len(sep):])
		}
	}
	return clean(s), ""
}
