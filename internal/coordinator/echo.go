package coordinator

import (
	"strings"
	"unicode/utf8"
)

// DefaultEchoPrefix is how many runes of the invitation identify an echo.
const DefaultEchoPrefix = 15

// isEcho reports whether reply is our own invitation read back from the chat,
// either in full or as a truncated preview.
func isEcho(reply, invitation string, prefix int) bool {
	if prefix <= 0 {
		prefix = DefaultEchoPrefix
	}
	r := canonical(trimEllipsis(reply))
	inv := canonical(invitation)
	if r == "" || inv == "" {
		return false
	}
	head := firstRunes(inv, prefix)
	if strings.HasPrefix(r, head) {
		return true
	}
	// A preview shorter than the prefix only counts when it covers the whole invitation.
	if utf8.RuneCountInString(r) >= min(prefix, utf8.RuneCountInString(inv)) && strings.HasPrefix(inv, r) {
		return true
	}
	return false
}

func canonical(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func trimEllipsis(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "…")
	s = strings.TrimSuffix(s, "...")
	return strings.TrimSpace(s)
}

func firstRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
