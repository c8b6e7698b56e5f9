package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"planforge/internal/eventbus"
	"planforge/internal/journal"
	"planforge/internal/llm"
	"planforge/internal/logging"
	"planforge/internal/planner"
	"planforge/internal/prompt"
	"planforge/internal/security"
)

func runPlan(ctx context.Context, opts globalOptions, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(opts.stderr)
	provider := fs.String("provider", "", "preferred provider (openai, anthropic, gemini, openrouter)")
	model := fs.String("model", "", "model id for the preferred provider")
	maxTokens := fs.Int("max-tokens", 0, "completion token limit")
	temperature := fs.Float64("temperature", 0, "sampling temperature (default: configured value)")
	analysisPath := fs.String("analysis", "", "JSON file with a codebase analysis")
	raw := fs.Bool("raw", false, "print Markdown without rendering")
	outPath := fs.String("o", "", "also write the plan to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var temp *float64
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "temperature" {
			temp = temperature
		}
	})

	task, err := readTask(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	providerID, err := llm.ParseProviderID(*provider)
	if err != nil {
		return err
	}
	analysis, err := readAnalysis(*analysisPath)
	if err != nil {
		return err
	}

	e, err := loadEnv(opts, true)
	if err != nil {
		return err
	}

	bus := eventbus.NewWithLogger(e.logger)
	j, err := e.openJournal()
	if err != nil {
		e.logger.Warn("attempt journal disabled", logging.Err(err))
	} else if j != nil {
		defer j.Close()
		journal.Subscribe(bus, j, e.logger)
	}
	bus.Subscribe(eventbus.TopicLLMRetry, func(ev eventbus.Event) {
		if r, ok := ev.Payload.(llm.RetryEvent); ok {
			printStatus(opts.stderr, "retrying %s in %s (%s)", r.Provider, r.Delay, r.Err.Type)
		}
	})
	bus.Subscribe(eventbus.TopicLLMFallback, func(ev eventbus.Event) {
		if f, ok := ev.Payload.(llm.FallbackEvent); ok {
			printStatus(opts.stderr, "%s failed, falling back to %s", f.From, f.To)
		}
	})

	orch, err := llm.NewOrchestratorFromConfig(e.cfg, bus, e.logger)
	if err != nil {
		return err
	}
	svc := planner.NewService(orch, planner.Config{
		Sanitizer: security.NewSanitizer(e.cfg.Security.PIIFiltering),
		Bus:       bus,
		Logger:    e.logger,
	})

	plan, err := svc.Generate(ctx, planner.PlanRequest{
		Task:        task,
		Analysis:    analysis,
		Provider:    providerID,
		Model:       *model,
		MaxTokens:   *maxTokens,
		Temperature: temp,
	})
	if err != nil {
		return err
	}

	if *outPath != "" {
		if err := os.WriteFile(*outPath, []byte(plan.Content), 0o644); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
	}
	if err := renderPlan(opts.stdout, plan, *raw); err != nil {
		return err
	}
	printPlanFooter(opts.stderr, plan)
	return nil
}

// readTask joins args into the task; a single "-" reads it from stdin.
func readTask(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read task: %w", err)
		}
		args = []string{string(b)}
	}
	task := strings.TrimSpace(strings.Join(args, " "))
	if task == "" {
		return "", fmt.Errorf("%w: plan needs a task description", errUsage)
	}
	return task, nil
}

func readAnalysis(path string) (*prompt.Analysis, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read analysis: %w", err)
	}
	var a prompt.Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse analysis %s: %w", path, err)
	}
	return &a, nil
}
