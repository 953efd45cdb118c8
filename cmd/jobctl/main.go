// Package main is jobctl, a command line client that follows jobs directly on the
// execution service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/jobtrack/internal/config"
	"github.com/kiranshivaraju/jobtrack/internal/execsvc"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("jobctl failed", "err", err)
		os.Exit(1)
	}
}

// cli holds the flags and connections shared by every subcommand.
type cli struct {
	verbose bool
	app     string
	tag     string
	vars    map[string]string

	cfg    *config.ExecServiceConfig
	client execsvc.Client
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:          "jobctl",
		Short:        "Inspect and follow jobs on the execution service",
		SilenceUsage: true,
		// errors are logged by main
		SilenceErrors:     true,
		PersistentPreRunE: c.init,
	}

	root.PersistentFlags().BoolVar(&c.verbose, "verbose", false, "verbose logging")
	root.PersistentFlags().StringVar(&c.app, "app", "", "app id the job was launched from (needed by output and info)")
	root.PersistentFlags().StringVar(&c.tag, "tag", "", "release tag of the app (default release)")
	root.PersistentFlags().StringToStringVar(&c.vars, "var", nil, "system variable visible to output bindings, name=value")

	root.AddCommand(
		c.statusCmd(),
		c.logsCmd(),
		c.outputCmd(),
		c.paramsCmd(),
		c.cancelCmd(),
		c.infoCmd(),
		c.watchCmd(),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	// watch only talks to NATS
	if cmd.Name() == "watch" {
		return nil
	}

	cfg, err := config.LoadExecService()
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.client = execsvc.NewHTTPClient(cfg.BaseURL, cfg.Token, cfg.Timeout, nil)
	slog.Debug("execution service configured", "url", cfg.BaseURL, "poll_interval", cfg.PollInterval)
	return nil
}
