package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/config"
	"github.com/ryosukesatoh/court-digest/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// globalOptions holds the flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "court-digest",
		Short: "Summarize new Federal Circuit opinions and email a daily digest",
		Long: `court-digest reads opinion notification emails from Gmail, downloads
each opinion PDF, summarizes it with a language model, and emails one digest
of the day's summaries.

Running "check" again for the same day only processes opinions that have
not been summarized yet, so it is safe to run from cron several times a day.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml",
		"Path to the YAML config file (optional unless set explicitly)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")

	cmd.AddCommand(
		newCheckCmd(opts),
		newSummarizeCmd(opts),
		newListCmd(opts),
		newAuthCmd(opts),
	)
	return cmd
}

// load reads .env and the config file and builds the logger. A config file
// named with --config must exist; the default path may be absent, in which
// case built-in defaults apply.
func (o *globalOptions) load(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (o *globalOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if cmd.Flags().Changed("config") {
		return config.Load(o.configPath)
	}
	_, err := os.Stat(o.configPath)
	switch {
	case err == nil:
		return config.Load(o.configPath)
	case errors.Is(err, fs.ErrNotExist):
		return config.Default(), nil
	default:
		return nil, fmt.Errorf("stat %s: %w", o.configPath, err)
	}
}

// parseDate parses a YYYY-MM-DD flag value in local time. Empty means zero,
// which commands treat as today.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}
