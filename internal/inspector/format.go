package inspector

import (
	"strings"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// legacySeparator is the escaped newline left behind when a log collection was
// stringified before being handed to us.
const legacySeparator = `\n`

// Split turns a log blob into ordered lines. Genuine newlines are the separator.
// A blob without genuine newlines that looks stringified (bracketed, or containing a
// literal backslash-n) is split on the literal sequence, and the collection's opening
// and closing artifacts are removed from the first and last segment. Empty lines are
// dropped.
func Split(blob string) []model.LogLine {
	var parts []string
	switch {
	case strings.Contains(blob, "\n"):
		parts = strings.Split(strings.ReplaceAll(blob, "\r\n", "\n"), "\n")
	case strings.Contains(blob, legacySeparator) || strings.HasPrefix(blob, "["):
		parts = strings.Split(blob, legacySeparator)
		parts[0] = trimOpening(parts[0])
		parts[len(parts)-1] = trimClosing(parts[len(parts)-1])
	default:
		parts = []string{blob}
	}

	lines := make([]model.LogLine, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimRight(p, "\r")
		if strings.TrimSpace(p) == "" {
			continue
		}
		lines = append(lines, model.LogLine(p))
	}
	return lines
}

// trimOpening removes a leading "[" and the quote that opens the first element.
func trimOpening(s string) string {
	s, ok := strings.CutPrefix(s, "[")
	if ok && s != "" && isQuote(s[0]) {
		s = s[1:]
	}
	return s
}

// trimClosing removes a trailing "]" and the quote that closes the last element.
func trimClosing(s string) string {
	s, ok := strings.CutSuffix(s, "]")
	if ok && s != "" && isQuote(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"'
}
