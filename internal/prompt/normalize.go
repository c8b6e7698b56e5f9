package prompt

import (
	"errors"
	"strings"
)

// DefaultHeading is prepended to plans that do not start with a heading.
const DefaultHeading = "# Implementation Plan"

// ErrEmptyPlan is returned when a backend reply holds no plan text.
var ErrEmptyPlan = errors.New("plan is empty")

// Normalize cleans up a generated plan: unifies line endings, strips a
// wrapping code fence and makes sure the plan opens with a heading.
func Normalize(content string) (string, error) {
	text := strings.ReplaceAll(content, "\r\n", "\n")
	text = strings.TrimSpace(text)
	text = stripFence(text)
	if text == "" {
		return "", ErrEmptyPlan
	}

	if !strings.HasPrefix(text, "#") {
		text = DefaultHeading + "\n\n" + text
	}
	return text + "\n", nil
}

// stripFence removes a ``` or ```markdown fence enclosing the whole text.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	firstNL := strings.IndexByte(text, '\n')
	if firstNL < 0 {
		return text
	}
	lang := strings.TrimSpace(text[3:firstNL])
	if lang != "" && lang != "markdown" && lang != "md" {
		return text
	}
	inner := text[firstNL+1 : len(text)-3]
	return strings.TrimSpace(inner)
}

// Title returns the text of the plan's first heading.
func Title(plan string) string {
	for _, line := range strings.Split(plan, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "#"))
		}
	}
	return ""
}
