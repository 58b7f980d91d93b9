// Package jsonx extracts structured JSON from raw LLM output, which
// routinely arrives wrapped in markdown fences, preamble prose, or
// pseudo-JSON comments.
package jsonx

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	codeBlockRe    = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Unmarshal parses the first JSON object found in raw into v.
// It tries, in order: the whole trimmed text, the contents of a
// markdown code block, and the span from the first '{' to the last '}'.
// Line and block comments are stripped before the final attempt.
func Unmarshal(raw string, v any) error {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	if matches := codeBlockRe.FindStringSubmatch(raw); len(matches) > 1 {
		if err := json.Unmarshal([]byte(strings.TrimSpace(matches[1])), v); err == nil {
			return nil
		}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		candidate := raw[start : end+1]
		candidate = lineCommentRe.ReplaceAllString(candidate, "")
		candidate = blockCommentRe.ReplaceAllString(candidate, "")
		if err := json.Unmarshal([]byte(candidate), v); err == nil {
			return nil
		}
	}

	return fmt.Errorf("jsonx: no valid JSON object in response")
}
