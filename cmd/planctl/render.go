package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"planforge/internal/planner"
)

const wrapWidth = 100

// renderPlan prints the plan through glamour, or as-is when raw is set or
// the output is not a terminal.
func renderPlan(w io.Writer, plan *planner.Plan, raw bool) error {
	if raw || color.NoColor {
		_, err := io.WriteString(w, plan.Content)
		return err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(plan.Content)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func printPlanFooter(w io.Writer, plan *planner.Plan) {
	parts := []string{
		fmt.Sprintf("%s/%s", plan.Provider, plan.Model),
		fmt.Sprintf("%d attempt(s)", plan.Attempts),
		plan.Duration.Round(10 * time.Millisecond).String(),
	}
	if plan.Usage != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", plan.Usage.TotalTokens))
	}
	if plan.FallbackUsed {
		parts = append(parts, color.YellowString("fallback from %s", plan.FallbackFrom))
	}
	if plan.Redactions > 0 {
		parts = append(parts, fmt.Sprintf("%d value(s) redacted", plan.Redactions))
	}
	fmt.Fprintln(w, color.HiBlackString("plan %s:", plan.ID), strings.Join(parts, ", "))
}

func printStatus(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.YellowString("» "+format, args...))
}
