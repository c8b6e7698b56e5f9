// Command planforge serves implementation plans generated by whichever LLM
// provider is configured and reachable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownGrace = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "path to planforge.yaml")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := NewApp(*configPath)
	err := app.startup(ctx)
	if err == nil {
		err = app.run(ctx)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	app.shutdown(shutdownCtx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "planforge:", err)
		os.Exit(1)
	}
}
