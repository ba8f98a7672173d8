package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/spf13/cobra"
)

type listOptions struct {
	date       string
	summaryDir string
}

func newListCmd(g *globalOptions) *cobra.Command {
	o := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the summaries stored for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, g)
		},
	}

	cmd.Flags().StringVar(&o.date, "date", "", "Day to list, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&o.summaryDir, "summary-dir", "", "Directory for stored summaries")

	return cmd
}

func (o *listOptions) run(cmd *cobra.Command, g *globalOptions) error {
	date, err := parseDate(o.date)
	if err != nil {
		return err
	}
	if date.IsZero() {
		date = time.Now()
	}

	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	dir := cfg.Store.SummaryDir
	if o.summaryDir != "" {
		dir = o.summaryDir
	}

	summaries, err := store.NewFSStore(dir, store.WithLogger(logger)).List(date)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintf(out, "no summaries for %s\n", date.Format(dateLayout))
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tOPINION\tFILE")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", store.Category(s.Precedential), digest.Heading(s), store.RelPath(s))
	}
	return tw.Flush()
}
