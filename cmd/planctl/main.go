// Command planctl generates implementation plans from the terminal and
// inspects the planforge provider setup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
)

const usage = `usage: planctl [-config path] <command> [flags]

commands:
  plan <task>         generate an implementation plan (default command)
  providers           list providers and whether they are configured
  attempts            show recent provider attempts from the journal
  secrets import      move API keys from the config file into the keyring
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("planctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", "", "path to planforge.yaml")
	verbose := global.Bool("v", false, "verbose logging")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errUsage
	}

	opts := globalOptions{configPath: *configPath, verbose: *verbose, stdout: stdout, stderr: stderr}
	switch rest[0] {
	case "plan":
		return runPlan(ctx, opts, rest[1:])
	case "providers":
		return runProviders(ctx, opts, rest[1:])
	case "attempts":
		return runAttempts(ctx, opts, rest[1:])
	case "secrets":
		return runSecrets(opts, rest[1:])
	case "help":
		global.Usage()
		return nil
	default:
		return runPlan(ctx, opts, rest)
	}
}

type globalOptions struct {
	configPath string
	verbose    bool
	stdout     io.Writer
	stderr     io.Writer
}
