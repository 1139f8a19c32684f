// Package services provides business logic services for the IELTS preparation backend.
package services

import (
	"strings"

	contextutils "ieltsprep/internal/utils"
)

// ExtractJSON pulls the first plausible JSON object or array out of raw model
// text. Models routinely wrap valid JSON in explanatory prose or markdown
// fences, and prose before a fence may itself contain braces, so the fence
// check runs before any brace scan.
//
// Priority order:
//  1. first fenced code block whose content starts with '{' or '['
//  2. first balanced top-level {...} span
//  3. first balanced top-level [...] span
//  4. the trimmed whole string, if it itself starts with '{' or '['
func ExtractJSON(text string) (result0 string, err error) {
	if fenced, ok := extractFencedBlock(text); ok {
		return fenced, nil
	}

	// A span opening earlier is the top-level one: an object nested inside
	// an array that started first must not be mistaken for the payload.
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	if objStart >= 0 && (arrStart < 0 || objStart < arrStart) {
		if span, ok := balancedSpan(text, '{', '}'); ok {
			return span, nil
		}
		if span, ok := balancedSpan(text, '[', ']'); ok {
			return span, nil
		}
	} else {
		if span, ok := balancedSpan(text, '[', ']'); ok {
			return span, nil
		}
		if span, ok := balancedSpan(text, '{', '}'); ok {
			return span, nil
		}
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return trimmed, nil
	}

	return "", contextutils.WrapErrorf(contextutils.ErrModelParse, "no JSON object or array found in model output (%d bytes)", len(text))
}

// extractFencedBlock returns the content of the first markdown code fence
// whose body starts with a JSON opener.
func extractFencedBlock(text string) (string, bool) {
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return "", false
		}
		rest = rest[start+3:]

		// Skip an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine == "" || isFenceTag(firstLine) {
				rest = rest[nl+1:]
			}
		}

		end := strings.Index(rest, "```")
		if end < 0 {
			return "", false
		}

		body := strings.TrimSpace(rest[:end])
		if strings.HasPrefix(body, "{") || strings.HasPrefix(body, "[") {
			return body, true
		}
		rest = rest[end+3:]
	}
}

func isFenceTag(line string) bool {
	for _, r := range line {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// balancedSpan finds the first balanced open..close span, tracking string
// literals and escapes so braces inside JSON strings don't end the scan.
func balancedSpan(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
