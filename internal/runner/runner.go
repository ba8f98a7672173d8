// Package runner runs the daily opinion check: mailbox to links to opinions
// to summaries to digest.
package runner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"github.com/ryosukesatoh/court-digest/internal/links"
	"github.com/ryosukesatoh/court-digest/internal/mailbox"
	"github.com/ryosukesatoh/court-digest/internal/opinion"
	"github.com/ryosukesatoh/court-digest/internal/publisher"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/ryosukesatoh/court-digest/internal/summarizer"
	"go.uber.org/zap"
)

// ErrMailbox wraps mailbox access failures. They abort the run before any
// digest is sent.
var ErrMailbox = errors.New("runner: mailbox unavailable")

// MailFetcher finds notification emails. mailbox.Client implements it.
type MailFetcher interface {
	Search(ctx context.Context, sender string, day time.Time) ([]mailbox.Message, error)
}

// TextExtractor renders PDF bytes to text. pdftext.Extractor implements it.
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// Stage names the step at which an opinion failed.
type Stage string

const (
	StageProbe      Stage = "probe"
	StageCaseNumber Stage = "case-number"
	StageLookup     Stage = "lookup"
	StageDownload   Stage = "download"
	StageExtract    Stage = "extract"
	StageSummarize  Stage = "summarize"
	StageStore      Stage = "store"
)

// ItemError is a failure confined to one landing URL.
type ItemError struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Options control one daily check.
type Options struct {
	// Date is the calendar day to check; zero means today.
	Date    time.Time
	Senders []string
	// Force regenerates summaries that already exist and sends the digest.
	Force bool
	// AlwaysSend sends the digest even when nothing new was stored.
	AlwaysSend bool
	// NoDigest never sends the digest.
	NoDigest bool
}

// Result reports what a daily check did.
type Result struct {
	Date          time.Time
	EmailsScanned int
	LinksFound    int
	Created       int
	Replaced      int
	Skipped       int
	Failed        int
	Errors        []ItemError
	DigestSent    bool
	// NothingToDo is set when no notification email arrived for the date.
	NothingToDo bool
}

// Runner orchestrates the daily check.
type Runner struct {
	mail       MailFetcher
	fetcher    opinion.Fetcher
	extractor  TextExtractor
	summarizer summarizer.Summarizer
	store      store.Store
	publishers []publisher.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

func New(
	mail MailFetcher,
	f opinion.Fetcher,
	x TextExtractor,
	s summarizer.Summarizer,
	st store.Store,
	pubs []publisher.Publisher,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		mail:       mail,
		fetcher:    f,
		extractor:  x,
		summarizer: s,
		store:      st,
		publishers: pubs,
		logger:     logger,
		now:        time.Now,
	}
}

// Day truncates t to local midnight.
func Day(t time.Time) time.Time {
	t = t.Local()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// DailyCheck processes every opinion announced on the date and sends one
// digest when something new was stored. Calling it again for the same date
// only processes opinions that are not stored yet.
func (r *Runner) DailyCheck(ctx context.Context, opts Options) (*Result, error) {
	date := opts.Date
	if date.IsZero() {
		date = r.now()
	}
	date = Day(date)
	res := &Result{Date: date}

	if len(opts.Senders) == 0 {
		return res, errors.New("runner: no senders configured")
	}

	log := r.logger.With(zap.String("date", date.Format("2006-01-02")))
	log.Info("starting daily check", zap.Strings("senders", opts.Senders), zap.Bool("force", opts.Force))

	var found [][]string
	for _, sender := range opts.Senders {
		msgs, err := r.mail.Search(ctx, sender, date)
		if err != nil {
			return res, fmt.Errorf("%w: %w", ErrMailbox, err)
		}
		res.EmailsScanned += len(msgs)
		for _, m := range msgs {
			urls := links.Extract(m.Body)
			log.Debug("scanned message", zap.String("id", m.ID), zap.String("subject", m.Subject), zap.Int("links", len(urls)))
			found = append(found, urls)
		}
	}
	if res.EmailsScanned == 0 {
		res.NothingToDo = true
		log.Info("no notification emails for date")
		return res, nil
	}

	urls := links.Set(found...)
	res.LinksFound = len(urls)
	log.Info("found opinion links", zap.Int("emails", res.EmailsScanned), zap.Int("links", len(urls)))

	for _, u := range urls {
		out, err := r.process(ctx, date, u, opts.Force)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			var ie *ItemError
			if !errors.As(err, &ie) {
				ie = &ItemError{URL: u, Stage: StageStore, Err: err}
			}
			res.Failed++
			res.Errors = append(res.Errors, *ie)
			log.Warn("opinion failed", zap.String("url", u), zap.String("stage", string(ie.Stage)), zap.Error(ie.Err))
			continue
		}
		switch out {
		case outcomeCreated:
			res.Created++
		case outcomeReplaced:
			res.Replaced++
		case outcomeSkipped:
			res.Skipped++
		}
	}

	summaries, err := r.store.List(date)
	if err != nil {
		return res, fmt.Errorf("runner: list summaries: %w", err)
	}

	log.Info("processing finished",
		zap.Int("created", res.Created),
		zap.Int("replaced", res.Replaced),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("stored", len(summaries)),
	)

	switch {
	case opts.NoDigest:
		log.Info("digest disabled")
		return res, nil
	case len(r.publishers) == 0:
		log.Info("no publishers configured, digest not sent")
		return res, nil
	case len(summaries) == 0:
		log.Info("no summaries stored for date, digest not sent")
		return res, nil
	case res.Created == 0 && !opts.Force && !opts.AlwaysSend:
		log.Info("nothing new, digest not sent")
		return res, nil
	}

	if err := r.publish(ctx, digest.New(date, summaries, res.Failed)); err != nil {
		return res, err
	}
	res.DigestSent = true
	return res, nil
}

// publish hands the digest to every publisher, continuing past failures.
func (r *Runner) publish(ctx context.Context, d *digest.Digest) error {
	var errs []error
	for _, pub := range r.publishers {
		if err := pub.Publish(ctx, d); err != nil {
			r.logger.Error("publish failed", zap.String("publisher", fmt.Sprintf("%T", pub)), zap.Error(err))
			errs = append(errs, fmt.Errorf("publish via %T: %w", pub, err))
			continue
		}
		r.logger.Info("digest published",
			zap.String("publisher", fmt.Sprintf("%T", pub)),
			zap.Int("opinions", len(d.Summaries)),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("runner: digest not delivered: %w", errors.Join(errs...))
	}
	return nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
	outcomeReplaced
)

// item carries one opinion through the pipeline. pdf and text are filled
// lazily so skipped opinions cost a single landing-page request.
type item struct {
	url  string
	meta *opinion.Metadata
	pdf  []byte
	text string
}

func (r *Runner) process(ctx context.Context, date time.Time, landingURL string, force bool) (outcome, error) {
	meta, err := r.fetcher.Probe(ctx, landingURL)
	if err != nil {
		return 0, &ItemError{URL: landingURL, Stage: StageProbe, Err: err}
	}
	it := &item{url: landingURL, meta: meta}

	if meta.CaseNumber == "" {
		if err := r.caseFromText(ctx, it); err != nil {
			return 0, err
		}
	}

	existing, err := r.store.Lookup(date, meta.CaseNumber)
	if err != nil {
		return 0, &ItemError{URL: landingURL, Stage: StageLookup, Err: err}
	}

	log := r.logger.With(zap.String("case", meta.CaseNumber), zap.String("url", landingURL))

	version, replace := 1, false
	switch {
	case len(existing) == 0:
	case force:
		replace = true
		if v := versionForURL(existing, landingURL); v > 0 {
			version = v
		}
	case knownURL(existing, landingURL):
		log.Debug("already summarized")
		return outcomeSkipped, nil
	default:
		// Same case under a new landing URL: an amended opinion only if the
		// PDF differs from every stored version.
		if err := r.download(ctx, it); err != nil {
			return 0, err
		}
		sum := checksum(it.pdf)
		for _, s := range existing {
			if s.PDFSHA256 == sum {
				log.Debug("same PDF already summarized", zap.Int("version", s.Version))
				return outcomeSkipped, nil
			}
		}
		version = existing[len(existing)-1].Version + 1
		log.Info("amended opinion", zap.Int("version", version))
	}

	if err := r.download(ctx, it); err != nil {
		return 0, err
	}
	if err := r.extract(it); err != nil {
		return 0, err
	}

	result, err := r.summarizer.Summarize(ctx, it.text)
	if err != nil {
		return 0, &ItemError{URL: landingURL, Stage: StageSummarize, Err: err}
	}

	s := store.Summary{
		Key:          store.Key{Date: date, CaseNumber: meta.CaseNumber},
		Version:      version,
		CaseName:     meta.CaseName,
		Precedential: meta.Precedential,
		LandingURL:   landingURL,
		PDFURL:       meta.PDFURL,
		PDFSHA256:    checksum(it.pdf),
		IssuedOn:     meta.Issued,
		Details:      storeDetails(result.Details),
		Text:         result.Text,
	}

	if replace {
		path, err := r.store.Replace(s)
		if err != nil {
			return 0, &ItemError{URL: landingURL, Stage: StageStore, Err: err}
		}
		log.Info("summary regenerated", zap.String("path", path))
		return outcomeReplaced, nil
	}

	path, err := r.store.Write(s)
	if errors.Is(err, store.ErrExists) {
		log.Debug("summary written concurrently", zap.String("path", path))
		return outcomeSkipped, nil
	}
	if err != nil {
		return 0, &ItemError{URL: landingURL, Stage: StageStore, Err: err}
	}
	log.Info("summary stored",
		zap.String("path", path),
		zap.Bool("precedential", meta.Precedential),
	)
	return outcomeCreated, nil
}

// caseFromText reads the docket number from the opinion itself when neither
// the landing page nor the PDF name carries one.
func (r *Runner) caseFromText(ctx context.Context, it *item) error {
	if err := r.download(ctx, it); err != nil {
		return err
	}
	if err := r.extract(it); err != nil {
		return err
	}
	cn, err := opinion.CaseNumberFromText(it.text)
	if err != nil {
		return &ItemError{URL: it.url, Stage: StageCaseNumber, Err: err}
	}
	it.meta.CaseNumber = cn
	return nil
}

func (r *Runner) download(ctx context.Context, it *item) error {
	if it.pdf != nil {
		return nil
	}
	data, err := r.fetcher.Download(ctx, it.meta)
	if err != nil {
		return &ItemError{URL: it.url, Stage: StageDownload, Err: err}
	}
	it.pdf = data
	return nil
}

func (r *Runner) extract(it *item) error {
	if it.text != "" {
		return nil
	}
	text, err := r.extractor.Extract(it.pdf)
	if err != nil {
		return &ItemError{URL: it.url, Stage: StageExtract, Err: err}
	}
	it.text = text
	return nil
}

// knownURL reports whether a stored version came from landingURL, or
// whether some version predates URL tracking and may have.
func knownURL(existing []store.Summary, landingURL string) bool {
	for _, s := range existing {
		if s.LandingURL == "" || s.LandingURL == landingURL {
			return true
		}
	}
	return false
}

func versionForURL(existing []store.Summary, landingURL string) int {
	for _, s := range existing {
		if s.LandingURL == landingURL {
			return s.Version
		}
	}
	return 0
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func storeDetails(d summarizer.Details) store.Details {
	return store.Details{
		PatentCase:    d.PatentCase,
		PanelJudges:   d.PanelJudges,
		AuthorJudge:   d.AuthorJudge,
		CaseSummary:   d.CaseSummary,
		MajorHoldings: d.MajorHoldings,
	}
}
