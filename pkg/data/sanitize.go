package data

import (
	"errors"
	"regexp"
	"strings"
)

var (
	fencedJSONRe = regexp.MustCompile("(?is)```json\\s*(\\{.+?\\})\\s*```")
	fencedRe     = regexp.MustCompile("(?s)```\\s*(\\{.+?\\})\\s*```")
)

var ErrNoJSON = errors.New("no json object in answer")

// ExtractJSONObject pulls the first JSON object out of free-form model text.
// Fenced blocks win over naked objects so commentary around the block is
// ignored.
func ExtractJSONObject(ans string) (string, error) {
	if m := fencedJSONRe.FindStringSubmatch(ans); m != nil {
		return m[1], nil
	}
	if m := fencedRe.FindStringSubmatch(ans); m != nil {
		return m[1], nil
	}
	if obj := firstBalancedObject(ans); obj != "" {
		return obj, nil
	}
	return "", ErrNoJSON
}

// firstBalancedObject scans for the first brace-balanced {...} span. Braces
// inside string literals are ignored.
func firstBalancedObject(s string) string {
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
