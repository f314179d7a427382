// Package llmparse extracts a JSON object from an LLM's free-text response.
//
// Models wrap JSON in markdown fences, prepend commentary, or emit raw
// control characters inside string literals that encoding/json rejects.
// ExtractJSON tries progressively looser strategies and sanitizes control
// characters before decoding, so callers get a best-effort object instead of
// a parse error on every minor formatting quirk.
package llmparse

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)```")

// ExtractJSON tries, in order: a fenced ```json``` block, the first balanced
// {...} substring, then the entire response. Each candidate is sanitized and
// unmarshaled into out; the first candidate that decodes successfully wins.
// Returns false if none decode, in which case out is left untouched and the
// caller should fall back to a safe default.
func ExtractJSON(response string, out any) bool {
	for _, candidate := range candidates(response) {
		sanitized := sanitizeControlChars(candidate)
		if err := json.Unmarshal([]byte(sanitized), out); err == nil {
			return true
		}
	}
	slog.Warn("llmparse: no candidate decoded", "response", truncate(response, 500))
	return false
}

func candidates(response string) []string {
	var out []string
	if m := fencedBlock.FindStringSubmatch(response); m != nil {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if b := firstBalancedBraces(response); b != "" {
		out = append(out, b)
	}
	out = append(out, strings.TrimSpace(response))
	return out
}

// firstBalancedBraces returns the first top-level {...} substring, respecting
// nested braces and braces that appear inside string literals.
func firstBalancedBraces(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeControlChars escapes raw newlines, carriage returns, and tabs that
// appear inside JSON string literals, which encoding/json otherwise rejects
// as invalid control characters. Tracks in_string state, toggled on
// unescaped double quotes.
func sanitizeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				b.WriteByte(c)
				escaped = false
				continue
			case c == '\\':
				b.WriteByte(c)
				escaped = true
				continue
			case c == '"':
				inString = false
				b.WriteByte(c)
				continue
			case c == '\n':
				b.WriteString(`\n`)
				continue
			case c == '\r':
				b.WriteString(`\r`)
				continue
			case c == '\t':
				b.WriteString(`\t`)
				continue
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		}
		b.WriteByte(c)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
