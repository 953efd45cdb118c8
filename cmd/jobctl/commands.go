package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/internal/appspec"
	"github.com/kiranshivaraju/jobtrack/internal/binding"
	"github.com/kiranshivaraju/jobtrack/internal/events"
	"github.com/kiranshivaraju/jobtrack/internal/job"
	"github.com/kiranshivaraju/jobtrack/pkg/backoff"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// placeholderApp stands in for the app id when a command does not need it.
const placeholderApp = "unknown"

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status JOB_ID...",
		Short: "Print the current state of one or more jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, id := range args {
				f, err := c.facade(id, nil)
				if err != nil {
					return err
				}
				state, err := f.Status(cmd.Context())
				if err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\terror: %v\n", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, state)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d status checks failed", failed, len(args))
			}
			return nil
		},
	}
}

func (c *cli) logsCmd() *cobra.Command {
	var first, num int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs JOB_ID",
		Short: "Print a job's log lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if follow && num != job.ToEnd {
				return errors.New("--follow cannot be combined with --num")
			}
			f, err := c.facade(args[0], nil)
			if err != nil {
				return err
			}
			return c.printLogs(cmd.Context(), cmd.OutOrStdout(), f, first, num, follow)
		},
	}

	cmd.Flags().IntVar(&first, "first", 0, "first line to print (0-based)")
	cmd.Flags().IntVar(&num, "num", job.ToEnd, "number of lines to print (default all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new lines until the job finishes")
	return cmd
}

// printLogs prints lines from first on. With follow it polls at the configured
// interval until the job finishes, backing off while the service is unavailable.
func (c *cli) printLogs(ctx context.Context, w io.Writer, f *job.Facade, first, num int, follow bool) error {
	next := first
	attempt := 0
	for {
		page, err := f.Log(ctx, next, num)
		if err != nil {
			if !follow || !errors.Is(err, apperrors.ErrRemoteService) {
				return err
			}
			attempt++
			slog.WarnContext(ctx, "log poll failed, retrying", "job_id", f.JobID(), "attempt", attempt, "error", err)
			if err := backoff.Wait(ctx, attempt, nil); err != nil {
				return err
			}
			continue
		}
		attempt = 0

		for _, line := range page.Lines {
			fmt.Fprintln(w, line)
		}
		next += len(page.Lines)

		if !follow || page.Finished {
			if follow {
				slog.InfoContext(ctx, "job finished", "job_id", f.JobID(), "state", page.State)
			}
			return nil
		}
		if err := backoff.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (c *cli) outputCmd() *cobra.Command {
	var specsDir string

	cmd := &cobra.Command{
		Use:   "output JOB_ID",
		Short: "Print a job's rendered output parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app == "" {
				return errors.New("--app is required")
			}
			specs, err := loadSpecs(specsDir)
			if err != nil {
				return err
			}
			f, err := c.adopt(cmd.Context(), args[0], specs)
			if err != nil {
				return err
			}
			out, err := f.RenderedOutput(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().StringVar(&specsDir, "specs", "", "directory of app spec files (default: no bindings, default widget)")
	return cmd
}

func (c *cli) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Ask the execution service to cancel a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.facade(args[0], nil)
			if err != nil {
				return err
			}
			res := f.Cancel(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tcancel %s\n", args[0], res)
			return nil
		},
	}
}

func (c *cli) paramsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "params JOB_ID",
		Short: "Print the launch parameters stored for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := c.facade(args[0], nil)
			if err != nil {
				return err
			}
			params, err := f.Parameters(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), params)
		},
	}
}

func (c *cli) infoCmd() *cobra.Command {
	var specsDir string

	cmd := &cobra.Command{
		Use:   "info JOB_ID",
		Short: "Print a job's app, inputs and state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			specs, err := loadSpecs(specsDir)
			if err != nil {
				return err
			}
			f, err := c.adopt(cmd.Context(), args[0], specs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), f.Info(cmd.Context()))
		},
	}

	cmd.Flags().StringVar(&specsDir, "specs", "", "directory of app spec files used for the app name")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var natsURL string

	cmd := &cobra.Command{
		Use:   "watch [JOB_ID]",
		Short: "Stream job state changes published by the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if natsURL == "" {
				natsURL = os.Getenv("NATS_URL")
			}
			if natsURL == "" {
				return errors.New("--nats or NATS_URL is required")
			}

			nc, err := events.Connect(natsURL)
			if err != nil {
				return err
			}
			defer nc.Close()

			subject := events.StateSubjectPattern
			if len(args) == 1 {
				subject = events.StateSubject(args[0])
			}
			return watch(cmd.Context(), cmd.OutOrStdout(), nc, subject, len(args) == 1)
		},
	}

	cmd.Flags().StringVar(&natsURL, "nats", "", "NATS server URL (default $NATS_URL)")
	return cmd
}

// watch prints state changes on subject until ctx ends. With untilTerminal it
// also returns after the first terminal state.
func watch(ctx context.Context, w io.Writer, nc *events.Client, subject string, untilTerminal bool) error {
	done := make(chan struct{})
	evs := make(chan models.JobStateChanged, 64)

	sub, err := nc.SubscribeStateChanges(subject, func(ev models.JobStateChanged) {
		select {
		case evs <- ev:
		case <-done:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	defer func() {
		_ = sub.Unsubscribe()
		close(done)
	}()
	slog.DebugContext(ctx, "watching", "subject", subject)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-evs:
			from := ev.From
			if from == "" {
				from = "-"
			}
			fmt.Fprintf(w, "%s\t%s -> %s\n", ev.JobID, from, ev.To)
			if untilTerminal && ev.Terminal {
				return nil
			}
		}
	}
}

// facade builds a facade for jobID without contacting the service.
func (c *cli) facade(jobID string, specs job.SpecSource) (*job.Facade, error) {
	app := c.app
	if app == "" {
		app = placeholderApp
	}
	rec, err := job.NewRecord(jobID, app, nil, job.WithTag(c.tag))
	if err != nil {
		return nil, err
	}
	return job.NewFacade(rec, c.deps(specs)), nil
}

// adopt builds a facade whose inputs are read from the service once.
func (c *cli) adopt(ctx context.Context, jobID string, specs job.SpecSource) (*job.Facade, error) {
	params, err := c.client.GetParams(ctx, jobID)
	if err != nil {
		return nil, err
	}
	app := c.app
	if app == "" {
		app = placeholderApp
	}
	rec, err := job.FromState(jobID, *params, app, c.tag, "")
	if err != nil {
		return nil, err
	}
	return job.NewFacade(rec, c.deps(specs)), nil
}

func (c *cli) deps(specs job.SpecSource) job.Deps {
	vars := make(binding.Vars, len(c.vars))
	for k, v := range c.vars {
		vars[k] = v
	}
	return job.Deps{
		Client: c.client,
		Specs:  specs,
		Vars:   vars.Lookup,
	}
}

// loadSpecs returns nil when dir is empty so the facade falls back to defaults.
func loadSpecs(dir string) (job.SpecSource, error) {
	if dir == "" {
		return nil, nil
	}
	reg, err := appspec.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
