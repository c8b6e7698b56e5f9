package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"planforge/internal/journal"
)

func runAttempts(ctx context.Context, opts globalOptions, args []string) error {
	fs := flag.NewFlagSet("attempts", flag.ContinueOnError)
	fs.SetOutput(opts.stderr)
	limit := fs.Int("n", 20, "number of attempts to show")
	provider := fs.String("provider", "", "only show this provider")
	requestID := fs.String("request", "", "only show attempts of this request id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := loadEnv(opts, true)
	if err != nil {
		return err
	}
	j, err := e.openJournal()
	if err != nil {
		return err
	}
	if j == nil {
		return errors.New("the attempt journal is disabled in the config")
	}
	defer j.Close()

	attempts, err := j.Recent(ctx, journal.Query{RequestID: *requestID, Provider: *provider, Limit: *limit})
	if err != nil {
		return err
	}
	return printAttempts(opts.stdout, attempts)
}

func printAttempts(w io.Writer, attempts []journal.Attempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "no attempts recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tREQUEST\tPROVIDER\tATTEMPT\tOUTCOME\tLATENCY")
	for _, a := range attempts {
		outcome := color.GreenString(a.Outcome)
		if a.Outcome != journal.OutcomeSuccess {
			outcome = color.RedString("%s (%s)", a.Outcome, a.ErrorType)
		}
		attempt := fmt.Sprint(a.Attempt)
		if a.Fallback {
			attempt += " fb"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format(time.DateTime),
			shortID(a.RequestID),
			a.Provider,
			attempt,
			outcome,
			time.Duration(a.LatencyMS)*time.Millisecond,
		)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 13 {
		return id[:13]
	}
	return id
}
