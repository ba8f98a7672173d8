package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/config"
	"github.com/ryosukesatoh/court-digest/internal/mailbox"
	"github.com/ryosukesatoh/court-digest/internal/opinion"
	"github.com/ryosukesatoh/court-digest/internal/pdftext"
	"github.com/ryosukesatoh/court-digest/internal/publisher"
	"github.com/ryosukesatoh/court-digest/internal/retry"
	"github.com/ryosukesatoh/court-digest/internal/runner"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/ryosukesatoh/court-digest/internal/summarizer"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type checkOptions struct {
	date        string
	senders     []string
	emailTo     []string
	emailBcc    []string
	pdfDir      string
	summaryDir  string
	promptFile  string
	credentials string
	token       string
	force       bool
	alwaysSend  bool
	noEmail     bool
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	o := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Summarize the day's new opinions and send the digest",
		Long: `check searches the mailbox for the day's opinion notifications, summarizes
every opinion that is not stored yet, and sends one digest when at least one
new summary was written. Exits non-zero only when the mailbox cannot be read,
the configuration is invalid, or the digest could not be delivered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, g)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.date, "date", "", "Day to check, YYYY-MM-DD (default today)")
	f.StringArrayVar(&o.senders, "sender", nil, "Notification sender address (repeatable)")
	f.StringArrayVar(&o.emailTo, "email-to", nil, "Digest recipient (repeatable)")
	f.StringArrayVar(&o.emailBcc, "email-bcc", nil, "Blind-copied digest recipient (repeatable)")
	f.StringVar(&o.pdfDir, "pdf-dir", "", "Directory for downloaded PDFs")
	f.StringVar(&o.summaryDir, "summary-dir", "", "Directory for stored summaries")
	f.StringVar(&o.promptFile, "prompt-file", "", "File holding the summarization prompt")
	f.StringVar(&o.credentials, "credentials", "", "OAuth client credentials JSON")
	f.StringVar(&o.token, "token", "", "OAuth token file")
	f.BoolVar(&o.force, "force", false, "Regenerate existing summaries and always send the digest")
	f.BoolVar(&o.alwaysSend, "always-send", false, "Send the digest even when nothing new was stored")
	f.BoolVar(&o.noEmail, "no-email", false, "Never send the digest")

	return cmd
}

// apply overrides config values with the flags that were set.
func (o *checkOptions) apply(cfg *config.Config) {
	if len(o.senders) > 0 {
		cfg.Mailbox.Senders = o.senders
	}
	if len(o.emailTo) > 0 {
		cfg.Publisher.Email.To = o.emailTo
	}
	if len(o.emailBcc) > 0 {
		cfg.Publisher.Email.Bcc = o.emailBcc
	}
	if o.pdfDir != "" {
		cfg.Fetcher.PDFDir = o.pdfDir
	}
	if o.summaryDir != "" {
		cfg.Store.SummaryDir = o.summaryDir
	}
	if o.promptFile != "" {
		cfg.Summarizer.PromptFile = o.promptFile
		cfg.Summarizer.Prompt = ""
	}
	if o.credentials != "" {
		cfg.Mailbox.CredentialsFile = o.credentials
	}
	if o.token != "" {
		cfg.Mailbox.TokenFile = o.token
	}
}

func (o *checkOptions) run(cmd *cobra.Command, g *globalOptions) error {
	date, err := parseDate(o.date)
	if err != nil {
		return err
	}

	cfg, logger, err := g.load(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Summarizer.Validate(); err != nil {
		return err
	}

	prompt, err := summarizer.LoadPrompt(cfg.Summarizer.Prompt, cfg.Summarizer.PromptFile)
	if err != nil {
		return err
	}
	sum, err := summarizer.New(cfg.Summarizer, prompt, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := mailbox.LoadSession(cfg.Mailbox.CredentialsFile, cfg.Mailbox.TokenFile, logger)
	if err != nil {
		return err
	}
	if err := session.Refresh(ctx); err != nil {
		if errors.Is(err, mailbox.ErrNoToken) {
			return fmt.Errorf("%w: run \"court-digest auth\" first", err)
		}
		return err
	}
	defer func() {
		if err := session.Persist(); err != nil {
			logger.Warn("failed to persist OAuth token", zap.Error(err))
		}
	}()

	mail, err := newMailClient(ctx, cfg, session, logger)
	if err != nil {
		return err
	}

	fetcher := opinion.NewHTTPFetcher(
		opinion.WithPDFDir(cfg.Fetcher.PDFDir),
		opinion.WithRequestInterval(time.Duration(cfg.Fetcher.RequestIntervalMS)*time.Millisecond),
		opinion.WithRetry(retry.Config{MaxRetries: cfg.Fetcher.MaxRetries, BaseDelay: time.Second}),
		opinion.WithLogger(logger),
	)

	var pubs []publisher.Publisher
	if !o.noEmail {
		pubs = buildPublishers(cfg, mail, cmd.OutOrStdout(), logger)
	}

	r := runner.New(mail, fetcher, pdftext.New(), sum, store.NewFSStore(cfg.Store.SummaryDir, store.WithLogger(logger)), pubs, logger)
	res, err := r.DailyCheck(ctx, runner.Options{
		Date:       date,
		Senders:    cfg.Mailbox.Senders,
		Force:      o.force,
		AlwaysSend: o.alwaysSend,
		NoDigest:   o.noEmail,
	})
	if res != nil {
		printResult(cmd.ErrOrStderr(), res)
	}
	return err
}

func newMailClient(ctx context.Context, cfg *config.Config, session *mailbox.Session, logger *zap.Logger) (*mailbox.Client, error) {
	httpClient, err := session.HTTPClient(ctx)
	if err != nil {
		return nil, err
	}
	return mailbox.NewClient(ctx, mailbox.ClientConfig{
		MaxResults:   cfg.Mailbox.MaxResults,
		FooterMarker: cfg.Mailbox.FooterMarker,
		Logger:       logger,
	}, option.WithHTTPClient(httpClient))
}

// buildPublishers returns the configured digest channel. Email channels with
// no recipients are left out with a warning rather than failing the run.
func buildPublishers(cfg *config.Config, sender publisher.Sender, stdout io.Writer, logger *zap.Logger) []publisher.Publisher {
	pc := cfg.Publisher
	rcpt := publisher.Recipients{To: pc.Email.To, Bcc: pc.Email.Bcc}

	switch pc.Type {
	case "gmail", "email":
		if rcpt.Empty() {
			logger.Warn("no digest recipients configured, digest will not be emailed",
				zap.String("publisher", pc.Type))
			return nil
		}
		if pc.Type == "email" {
			return []publisher.Publisher{publisher.NewEmailPublisher(
				pc.Email.SMTPHost, pc.Email.SMTPPort, pc.Email.Username, pc.Email.Password,
				pc.Email.From, rcpt, logger,
			)}
		}
		return []publisher.Publisher{publisher.NewGmailPublisher(sender, pc.Email.From, rcpt, logger)}
	case "stdout":
		return []publisher.Publisher{publisher.NewStdoutPublisher(stdout)}
	case "discord":
		return []publisher.Publisher{publisher.NewDiscordPublisher(pc.Discord.WebhookURL, logger)}
	}
	return nil
}

func printResult(w io.Writer, res *runner.Result) {
	fmt.Fprintf(w, "%s: ", res.Date.Format(dateLayout))
	if res.NothingToDo {
		fmt.Fprintln(w, "no notification emails")
		return
	}
	fmt.Fprintf(w, "%d emails, %d opinions: %d new, %d replaced, %d skipped, %d failed",
		res.EmailsScanned, res.LinksFound, res.Created, res.Replaced, res.Skipped, res.Failed)
	if res.DigestSent {
		fmt.Fprint(w, "; digest sent")
	}
	fmt.Fprintln(w)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  failed %s (%s): %v\n", e.URL, e.Stage, e.Err)
	}
}
