package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// MarshalNoEscape encodes v into JSON without escaping <, >, & into \u003c, etc.
func MarshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalNoEscapeIndent is MarshalNoEscape with indentation.
func MarshalNoEscapeIndent(v any, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnescapeUnicodeString converts JSON unicode escapes like "\u003e" into actual characters.
// Handles double-escaped sequences like "\\u003e" -> "\u003e" -> ">".
func UnescapeUnicodeString(s string) (string, error) {
	if !strings.Contains(s, `\u`) {
		return s, nil
	}
	var firstErr error
	out := unicodeEscape.ReplaceAllStringFunc(s, func(m string) string {
		r, err := strconv.Unquote(`"` + m + `"`)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return m
		}
		return r
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

var unicodeEscape = regexp.MustCompile(`\\u[0-9a-fA-F]{4}`)

var ErrUnparseable = errors.New("jsonutil: cannot parse JSON payload")

// Unwrap returns raw as a JSON document, decoding up to two levels of
// string encoding ("{\"a\":1}" as a JSON string) on the way.
func Unwrap(raw []byte) ([]byte, error) {
	for i := 0; i < 3; i++ {
		if !json.Valid(raw) {
			return nil, ErrUnparseable
		}
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return raw, nil
		}
		raw = []byte(strings.TrimSpace(s))
	}
	return nil, ErrUnparseable
}

// NormalizeJSONUnicode parses JSON bytes and recursively unescapes any remaining
// double-escaped unicode sequences (e.g. "\\u003e") inside string values.
func NormalizeJSONUnicode(raw []byte) ([]byte, error) {
	doc, err := Unwrap(raw)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, err
	}
	return MarshalNoEscape(deepUnescape(v))
}

// UnmarshalFlex tries to unmarshal JSON bytes into v with best effort:
// 1) Direct unmarshal
// 2) Unwrap string-encoded documents and normalize escapes, then unmarshal
func UnmarshalFlex(raw []byte, v any) error {
	err := json.Unmarshal(raw, v)
	if err == nil {
		return nil
	}
	norm, nerr := NormalizeJSONUnicode(raw)
	if nerr != nil {
		return err
	}
	return json.Unmarshal(norm, v)
}

// SyntaxOffset reports the index of the first byte that makes raw
// invalid JSON, len(raw) when raw ends before the value is complete, or
// -1 when raw is valid.
func SyntaxOffset(raw []byte) int64 {
	var v any
	err := json.Unmarshal(raw, &v)
	if err == nil {
		return -1
	}
	var se *json.SyntaxError
	if !errors.As(err, &se) || strings.Contains(se.Error(), "unexpected end") {
		return int64(len(raw))
	}
	// Offset counts the offending byte itself.
	return max(se.Offset-1, 0)
}

// deepUnescape recursively traverses maps and slices,
// unescaping unicode sequences in all string values.
func deepUnescape(v any) any {
	switch x := v.(type) {
	case string:
		if s, err := UnescapeUnicodeString(x); err == nil {
			return s
		}
		return x
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = deepUnescape(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[k] = deepUnescape(vv)
		}
		return out
	default:
		return v
	}
}
