package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	jsonFenceRe    = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	genericFenceRe = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// ExtractJSON pulls a JSON document out of model output. Responses are often
// wrapped in prose or markdown fences, so several strategies are tried in
// order: the raw text, a ```json fence, a generic fence, then the largest
// balanced object or array substring.
func ExtractJSON(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", fmt.Errorf("extract json: empty response")
	}

	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	for _, re := range []*regexp.Regexp{jsonFenceRe, genericFenceRe} {
		for _, m := range re.FindAllStringSubmatch(trimmed, -1) {
			candidate := strings.TrimSpace(m[1])
			if candidate != "" && json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		if candidate := largestBalanced(trimmed, pair[0], pair[1]); candidate != "" {
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}
	}

	return "", fmt.Errorf("extract json: no valid JSON found in response")
}

// largestBalanced returns the longest substring starting at an opening byte
// and ending at its matching closing byte, tracking string literals and
// escapes so braces inside JSON strings do not confuse the depth count.
func largestBalanced(s string, opening, closing byte) string {
	var best string
	for start := 0; start < len(s); start++ {
		if s[start] != opening {
			continue
		}
		if end := matchBalanced(s, start, opening, closing); end > start {
			if end+1-start > len(best) {
				best = s[start : end+1]
			}
			start = end
		}
	}
	return best
}

// matchBalanced returns the index of the byte closing the group opened at
// start, or -1 if the group never closes.
func matchBalanced(s string, start int, opening, closing byte) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == opening:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
