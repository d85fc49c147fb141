package coordinator

import (
	"regexp"
	"strings"

	"DealPilot/internal/normalize"
)

// ItemExtractor pulls requested items out of a reply.
type ItemExtractor interface {
	Extract(reply string) []string
}

// ExtractorFunc adapts a function to ItemExtractor.
type ExtractorFunc func(reply string) []string

// Extract implements ItemExtractor.
func (f ExtractorFunc) Extract(reply string) []string { return f(reply) }

// DefaultExtractor reads structured replies ({"items": [...]}, "item",
// "content") and otherwise splits free text on commas, semicolons and
// newlines. Dish names such as "Mac and Cheese" stay whole.
var DefaultExtractor ItemExtractor = ExtractorFunc(func(reply string) []string {
	return extractItems(reply, listSeparators)
})

// ConjunctionExtractor also splits free text on "and", "&" and "+". Use it
// through WithExtractor when guests are known to list items that way.
var ConjunctionExtractor ItemExtractor = ExtractorFunc(func(reply string) []string {
	return extractItems(reply, conjunctionSeparators)
})

var (
	listSeparators        = regexp.MustCompile(`\s*(?:,|;|\n)\s*`)
	conjunctionSeparators = regexp.MustCompile(`(?i)\s*(?:,|;|\n|&|\band\b|\+)\s*`)
)

func extractItems(reply string, sep *regexp.Regexp) []string {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}
	if res := normalize.Normalize(reply); res.OK() {
		for _, key := range []string{"items", "item"} {
			if items := res.Record.Strings(key); len(items) > 0 {
				return dedupe(items)
			}
		}
		for _, key := range []string{"content", "text"} {
			if text := res.Record.String(key); strings.TrimSpace(text) != "" {
				return splitItems(text, sep)
			}
		}
		return nil
	}
	return splitItems(reply, sep)
}

func splitItems(text string, sep *regexp.Regexp) []string {
	parts := sep.Split(text, -1)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), ".!?\"'")
		if part != "" {
			items = append(items, part)
		}
	}
	return dedupe(items)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
