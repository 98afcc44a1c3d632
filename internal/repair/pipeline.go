package repair

import (
	"bytes"
	"encoding/json"
	"fmt"

	"interviewforge/internal/util/jsonutil"
)

// Step is one named repair transform.
type Step struct {
	Name  string
	Apply func(string) string
}

// Steps run in this order; each one works on the output of the last.
var Steps = []Step{
	{Name: "strip-wrappers", Apply: StripWrappers},
	{Name: "remove-trailing-commas", Apply: RemoveTrailingCommas},
	{Name: "collapse-control-chars", Apply: CollapseControlChars},
	{Name: "quote-keys", Apply: QuoteKeys},
}

const StepRecoverTruncated = "recover-truncated"

// Outcome is a successfully parsed reply.
type Outcome struct {
	Data      json.RawMessage
	Steps     []string
	Truncated bool
}

// ChunkParseError means a reply could not be turned into JSON, or the
// JSON did not have the expected shape.
type ChunkParseError struct {
	Raw    string
	Offset int64
	Steps  []string
	Err    error
}

func (e *ChunkParseError) Error() string {
	return fmt.Sprintf("chunk parse error at offset %d: %v", e.Offset, e.Err)
}

func (e *ChunkParseError) Unwrap() error { return e.Err }

// Parse turns raw into a JSON document. It tries a strict parse first,
// then the repair steps one by one, then truncation recovery.
func Parse(raw string) (Outcome, error) {
	if doc, ok := strict(raw); ok {
		return Outcome{Data: doc}, nil
	}
	var (
		text    = raw
		applied []string
	)
	for _, s := range Steps {
		next := s.Apply(text)
		if next == text {
			continue
		}
		text = next
		applied = append(applied, s.Name)
		if doc, ok := strict(text); ok {
			return Outcome{Data: doc, Steps: applied}, nil
		}
	}
	off := jsonutil.SyntaxOffset([]byte(text))
	if rec, ok := RecoverTruncated(text, int(off)); ok {
		if doc, ok := strict(rec); ok {
			return Outcome{Data: doc, Steps: append(applied, StepRecoverTruncated), Truncated: true}, nil
		}
	}
	return Outcome{}, &ChunkParseError{
		Raw:    raw,
		Offset: jsonutil.SyntaxOffset([]byte(raw)),
		Steps:  applied,
		Err:    jsonutil.ErrUnparseable,
	}
}

// Decode parses raw and unmarshals it into v. A document that does not
// fit v is reported as a ChunkParseError as well.
func Decode(raw string, v any) (Outcome, error) {
	out, err := Parse(raw)
	if err != nil {
		return out, err
	}
	if err := jsonutil.UnmarshalFlex(out.Data, v); err != nil {
		return out, &ChunkParseError{Raw: raw, Offset: -1, Steps: out.Steps, Err: err}
	}
	return out, nil
}

// Invalid reports a parsed reply whose content is unusable.
func Invalid(raw string, steps []string, format string, args ...any) error {
	return &ChunkParseError{Raw: raw, Offset: -1, Steps: steps, Err: fmt.Errorf(format, args...)}
}

func strict(s string) (json.RawMessage, bool) {
	doc, err := jsonutil.Unwrap(bytes.TrimSpace([]byte(s)))
	if err != nil {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
