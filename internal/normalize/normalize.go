package normalize

import (
	"fmt"
	"strings"

	xerrors "DealPilot/internal/errors"
)

// MaxFailureText bounds the diagnostic text kept on a ParseFailure.
const MaxFailureText = 200

// ParseFailure records agent output that could not be turned into a record.
// Text is the extracted candidate, not the original raw output.
type ParseFailure struct {
	Text string
}

// Err converts the failure into a PARSE_FAILURE error for callers that need one.
func (f *ParseFailure) Err() error {
	if f == nil {
		return nil
	}
	return xerrors.New(xerrors.CodeParseFailure, "", xerrors.WithMetadata("text", f.Text))
}

// Result holds exactly one of Record or Failure.
type Result struct {
	Record  Record
	Failure *ParseFailure
}

// OK reports whether the output parsed.
func (r Result) OK() bool { return r.Failure == nil }

// Normalize extracts and parses a record from raw agent output. The first
// candidate that parses wins; a failure carries the first candidate.
func Normalize(raw string) Result {
	texts := candidates(raw)
	for _, candidate := range texts {
		if candidate == "" {
			continue
		}
		if rec, err := parseStrict(candidate); err == nil {
			return Result{Record: rec}
		}
		if strings.HasPrefix(candidate, "{") {
			if rec, err := parseRelaxed(candidate); err == nil {
				return Result{Record: rec}
			}
		}
	}
	return failure(texts[0])
}

func failure(text string) Result {
	runes := []rune(text)
	if len(runes) > MaxFailureText {
		text = string(runes[:MaxFailureText])
	}
	return Result{Failure: &ParseFailure{Text: text}}
}

// Record is a parsed agent reply. Missing keys read as absent.
type Record map[string]any

// Value returns the raw value stored under key.
func (r Record) Value(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String renders the value under key, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r.Value(key)
	if !ok {
		return ""
	}
	return stringify(v)
}

// Strings returns the value under key as a list. A scalar becomes a
// single-element list; blanks are dropped.
func (r Record) Strings(key string) []string {
	v, ok := r.Value(key)
	if !ok {
		return nil
	}
	var out []string
	switch typed := v.(type) {
	case []any:
		for _, item := range typed {
			if item == nil {
				continue
			}
			if s := strings.TrimSpace(stringify(item)); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range typed {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := strings.TrimSpace(stringify(typed)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Map returns the nested record stored under key.
func (r Record) Map(key string) Record {
	v, ok := r.Value(key)
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// Status is shorthand for the lower-cased "status" field.
func (r Record) Status() string {
	return strings.ToLower(strings.TrimSpace(r.String("status")))
}

func stringify(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
