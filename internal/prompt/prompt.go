// Package prompt builds generation prompts for implementation plans and
// normalizes the Markdown that comes back.
package prompt

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// MaxTaskLength bounds the task description accepted by Build.
const MaxTaskLength = 8000

const maxListed = 25

var (
	// ErrEmptyTask is returned when the task description is blank.
	ErrEmptyTask = errors.New("task description is required")
	// ErrTaskTooLong is returned when the task exceeds MaxTaskLength.
	ErrTaskTooLong = errors.New("task description is too long")
)

// SystemPrompt frames every plan request.
const SystemPrompt = `You are a senior software engineer writing implementation plans.
Given a task and a summary of the codebase, produce a Markdown plan with these sections:
# Implementation Plan
## Overview
## Steps (numbered, each naming the files to touch)
## Risks
## Testing
Be concrete and reference real files from the summary when possible. Do not wrap the plan in code fences.`

// Analysis summarizes a codebase. Every field is optional.
type Analysis struct {
	ProjectName  string         `json:"project_name,omitempty"`
	Summary      string         `json:"summary,omitempty"`
	TotalFiles   int            `json:"total_files,omitempty"`
	Extensions   map[string]int `json:"extensions,omitempty"`
	Frameworks   []string       `json:"frameworks,omitempty"`
	Dependencies []string       `json:"dependencies,omitempty"`
	KeyFiles     []string       `json:"key_files,omitempty"`
}

func (a *Analysis) empty() bool {
	return a == nil || (a.ProjectName == "" && a.Summary == "" && a.TotalFiles == 0 &&
		len(a.Extensions) == 0 && len(a.Frameworks) == 0 && len(a.Dependencies) == 0 && len(a.KeyFiles) == 0)
}

// Build returns the system and user prompts for task. analysis may be nil.
func Build(task string, analysis *Analysis) (system, user string, err error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", "", ErrEmptyTask
	}
	if len(task) > MaxTaskLength {
		return "", "", fmt.Errorf("%w: limit is %d characters", ErrTaskTooLong, MaxTaskLength)
	}

	var b strings.Builder
	b.WriteString("## Task\n")
	b.WriteString(task)
	b.WriteString("\n")

	if !analysis.empty() {
		b.WriteString("\n## Codebase\n")
		writeAnalysis(&b, analysis)
	}

	b.WriteString("\nWrite the implementation plan now.")
	return SystemPrompt, b.String(), nil
}

func writeAnalysis(b *strings.Builder, a *Analysis) {
	if a.ProjectName != "" {
		fmt.Fprintf(b, "- Project: %s\n", a.ProjectName)
	}
	if a.Summary != "" {
		fmt.Fprintf(b, "- Summary: %s\n", strings.TrimSpace(a.Summary))
	}
	if a.TotalFiles > 0 {
		fmt.Fprintf(b, "- Files: %d\n", a.TotalFiles)
	}
	if len(a.Extensions) > 0 {
		fmt.Fprintf(b, "- File types: %s\n", formatExtensions(a.Extensions))
	}
	writeList(b, "Frameworks", a.Frameworks)
	writeList(b, "Dependencies", a.Dependencies)
	writeList(b, "Key files", a.KeyFiles)
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	shown := items
	if len(shown) > maxListed {
		shown = shown[:maxListed]
	}
	fmt.Fprintf(b, "- %s: %s", label, strings.Join(shown, ", "))
	if extra := len(items) - len(shown); extra > 0 {
		fmt.Fprintf(b, " (+%d more)", extra)
	}
	b.WriteString("\n")
}

// formatExtensions lists extensions by descending file count, then name.
func formatExtensions(exts map[string]int) string {
	type ext struct {
		name  string
		count int
	}
	list := make([]ext, 0, len(exts))
	for name, count := range exts {
		list = append(list, ext{name, count})
	}
	slices.SortFunc(list, func(a, b ext) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	if len(list) > maxListed {
		list = list[:maxListed]
	}

	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = fmt.Sprintf("%s (%d)", e.name, e.count)
	}
	return strings.Join(parts, ", ")
}
