package normalize

import (
	"regexp"
	"strings"
)

var (
	fencePattern = regexp.MustCompile("(?is)```\\s*json\\s*\\n?(.*?)```")

	wrapperPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<request_accomplished\b[^>]*>(.*?)</request_accomplished>`),
		regexp.MustCompile(`(?is)<result\b[^>]*>(.*?)</result>`),
		regexp.MustCompile(`(?is)<answer\b[^>]*>(.*?)</answer>`),
	}
	openWrapper = regexp.MustCompile(`(?is)<request_accomplished\b[^>]*>(.*)$`)
)

// candidates lists the texts worth parsing, best first: objects inside
// json fences, every top-level object in the raw text, wrapper contents,
// then the trimmed raw text.
func candidates(raw string) []string {
	var out []string
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		if obj, _, ok := scanObject(m[1]); ok {
			out = append(out, obj)
		}
	}
	rest := raw
	for {
		obj, end, ok := scanObject(rest)
		if !ok {
			break
		}
		out = append(out, obj)
		rest = rest[end:]
	}
	for _, p := range wrapperPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			out = append(out, strings.TrimSpace(m[1]))
			break
		}
	}
	// Agents sometimes never close the wrapper.
	if m := openWrapper.FindStringSubmatch(raw); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return append(out, strings.TrimSpace(raw))
}

// scanObject returns the first top-level balanced {...} in text and the
// offset just past it. It tracks both quote styles so braces inside string
// literals are ignored.
func scanObject(text string) (string, int, bool) {
	start := -1
	depth := 0
	var quote rune
	escape := false
	for i, r := range text {
		if start == -1 {
			if r == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if quote != 0 {
			switch {
			case escape:
				escape = false
			case r == '\\':
				escape = true
			case r == quote:
				quote = 0
			}
			continue
		}
		switch r {
		case '"', '\'':
			quote = r
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), i + 1, true
			}
		}
	}
	return "", 0, false
}
