package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"planforge/internal/llm"
	"planforge/internal/security"
)

const checkTimeout = 30 * time.Second

type providerRow struct {
	ID         llm.ProviderID
	Configured bool
	Default    bool
	Model      string
	KeyHint    string
	// Check is empty unless -check was given.
	Check string
	OK    bool
}

func runProviders(ctx context.Context, opts globalOptions, args []string) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(opts.stderr)
	check := fs.Bool("check", false, "send a short request to every configured provider")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(opts, true)
	if err != nil {
		return err
	}
	registry, err := llm.NewRegistryFromConfig(e.cfg, e.logger)
	if err != nil {
		return err
	}

	defaultID, _ := registry.Default()
	var rows []providerRow
	for _, id := range registry.Registered() {
		p, _ := registry.Get(id)
		row := providerRow{
			ID:         id,
			Configured: p.IsConfigured(),
			Default:    id == defaultID,
			Model:      registry.Model(id).Model,
		}
		if key := e.cfg.Provider(string(id)).APIKey; key != "" {
			row.KeyHint = security.MaskKey(key)
		}
		if *check && row.Configured {
			row.Check, row.OK = checkProvider(ctx, p, registry.Model(id))
		}
		rows = append(rows, row)
	}

	return printProviders(opts.stdout, rows)
}

// checkProvider sends one tiny request without retries.
func checkProvider(ctx context.Context, p llm.Provider, model llm.ModelConfig) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	model.MaxTokens = 16
	start := time.Now()
	_, err := p.Generate(ctx, &llm.Request{
		ID:     "planctl-check",
		Prompt: "Reply with the single word OK.",
		Model:  model,
	})
	if err != nil {
		return err.Error(), false
	}
	return "ok in " + time.Since(start).Round(time.Millisecond).String(), true
}

func printProviders(w io.Writer, rows []providerRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tSTATUS\tMODEL\tKEY\tCHECK")
	for _, r := range rows {
		name := string(r.ID)
		if r.Default {
			name += " *"
		}
		status := color.RedString("not configured")
		if r.Configured {
			status = color.GreenString("configured")
		}
		checkText := r.Check
		if checkText != "" {
			if r.OK {
				checkText = color.GreenString(checkText)
			} else {
				checkText = color.RedString(checkText)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, status, orDash(r.Model), orDash(r.KeyHint), checkText)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
