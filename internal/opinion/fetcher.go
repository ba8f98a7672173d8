package opinion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ryosukesatoh/court-digest/internal/retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// maxPDFSize bounds a single opinion download.
	maxPDFSize  = 50 << 20
	maxPageSize = 5 << 20
)

// ErrTooLarge is returned when a response exceeds the download limit.
var ErrTooLarge = errors.New("opinion: response too large")

// HTTPFetcher fetches opinions from the court website.
type HTTPFetcher struct {
	pageClient  *http.Client
	pdfClient   *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	pdfDir      string
	maxPDFBytes int64
	userAgent   string
	logger      *zap.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithPDFDir archives every downloaded PDF under dir.
func WithPDFDir(dir string) Option {
	return func(f *HTTPFetcher) { f.pdfDir = dir }
}

// WithRequestInterval spaces out requests to the court server.
func WithRequestInterval(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d <= 0 {
			f.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		f.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry overrides the retry policy for page and PDF requests.
func WithRetry(cfg retry.Config) Option {
	return func(f *HTTPFetcher) { f.retryConfig = cfg }
}

// WithHTTPClient uses client for both landing pages and PDFs.
func WithHTTPClient(client *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.pageClient = client
		f.pdfClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *HTTPFetcher) { f.logger = logger }
}

func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		pageClient:  &http.Client{Timeout: 30 * time.Second},
		pdfClient:   &http.Client{Timeout: 60 * time.Second},
		limiter:     rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		retryConfig: retry.DefaultConfig(),
		maxPDFBytes: maxPDFSize,
		userAgent:   "court-digest/1.0",
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Probe fetches the landing page and parses its metadata. It does not
// download the PDF.
func (f *HTTPFetcher) Probe(ctx context.Context, landingURL string) (*Metadata, error) {
	body, err := f.get(ctx, f.pageClient, landingURL, maxPageSize)
	if err != nil {
		return nil, fmt.Errorf("opinion: fetch landing page: %w", err)
	}

	m, err := ParseLandingPage(landingURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	f.logger.Debug("parsed landing page",
		zap.String("url", landingURL),
		zap.String("case", m.CaseNumber),
		zap.String("name", m.CaseName),
		zap.Bool("precedential", m.Precedential),
		zap.String("pdf", m.PDFURL),
	)
	return m, nil
}

// Download fetches the opinion PDF and archives it when a PDF directory is
// configured.
func (f *HTTPFetcher) Download(ctx context.Context, m *Metadata) ([]byte, error) {
	if m.PDFURL == "" {
		return nil, ErrNoPDF
	}

	data, err := f.get(ctx, f.pdfClient, m.PDFURL, f.maxPDFBytes)
	if err != nil {
		return nil, fmt.Errorf("opinion: download PDF: %w", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, fmt.Errorf("opinion: %s is not a PDF", m.PDFURL)
	}

	if f.pdfDir != "" {
		if err := f.archive(m.PDFURL, data); err != nil {
			f.logger.Warn("failed to archive PDF", zap.String("url", m.PDFURL), zap.Error(err))
		}
	}
	return data, nil
}

func (f *HTTPFetcher) archive(pdfURL string, data []byte) error {
	u, err := url.Parse(pdfURL)
	if err != nil {
		return err
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return fmt.Errorf("no file name in %s", pdfURL)
	}
	if err := os.MkdirAll(f.pdfDir, 0o755); err != nil {
		return err
	}
	dst := filepath.Join(f.pdfDir, name)
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	f.logger.Debug("archived PDF", zap.String("path", dst))
	return nil
}

// get reads at most limit bytes and fails with ErrTooLarge beyond that
// rather than returning a truncated body.
func (f *HTTPFetcher) get(ctx context.Context, client *http.Client, target string, limit int64) ([]byte, error) {
	var (
		body     []byte
		tooLarge bool
	)
	err := retry.WithBackoff(ctx, f.retryConfig, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &retry.StatusError{URL: target, StatusCode: resp.StatusCode}
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, limit+1))
		if err != nil {
			return err
		}
		tooLarge = int64(len(body)) > limit
		return nil
	})
	if err != nil {
		return nil, err
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, target, limit)
	}
	return body, nil
}

var (
	suffixRegex = regexp.MustCompile(`(?i),?\s*(Precedential|Non-Precedential|Nonprecedential)\s*$`)
	tagRegex    = regexp.MustCompile(`(?i)\s*\[(OPINION|ORDER)\]\s*`)
	prefixRegex = regexp.MustCompile(`^\s*\d{2,4}-\d{3,5}\s*:\s*`)
	spaceRegex  = regexp.MustCompile(`\s+`)
)

// ParseLandingPage extracts opinion metadata from a landing page. A page
// heading usually reads
//
//	23-1446: FOCUS PRODUCTS GROUP v. KARTRI SALES CO. [OPINION], Precedential
func ParseLandingPage(landingURL string, r io.Reader) (*Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("opinion: parse landing page: %w", err)
	}

	base, err := url.Parse(landingURL)
	if err != nil {
		return nil, fmt.Errorf("opinion: bad landing URL %q: %w", landingURL, err)
	}

	m := &Metadata{LandingURL: landingURL}
	m.PDFURL = findPDFLink(doc, base)
	if m.PDFURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPDF, landingURL)
	}

	heading := spaceRegex.ReplaceAllString(strings.TrimSpace(doc.Find("h1").First().Text()), " ")
	if match := caseNumberRegex.FindStringSubmatch(heading); match != nil {
		m.CaseNumber = normalizeCase(match[1], match[2])
	}
	if m.CaseNumber == "" {
		m.CaseNumber = CaseNumberFromFileName(m.PDFURL)
	}

	name := suffixRegex.ReplaceAllString(heading, "")
	name = tagRegex.ReplaceAllString(name, " ")
	name = prefixRegex.ReplaceAllString(name, "")
	m.CaseName = strings.TrimSpace(name)

	if s := suffixRegex.FindStringSubmatch(heading); s != nil {
		m.Precedential = strings.EqualFold(s[1], "Precedential")
	} else {
		m.Precedential = isPrecedentialText(doc.Text())
	}

	m.Issued = IssuedFromFileName(m.PDFURL)
	return m, nil
}

func isPrecedentialText(text string) bool {
	if !strings.Contains(text, "Precedential") {
		return false
	}
	return !strings.Contains(text, "Non-Precedential") && !strings.Contains(text, "Nonprecedential")
}

// findPDFLink prefers links into /opinions-orders/ and falls back to any PDF.
func findPDFLink(doc *goquery.Document, base *url.URL) string {
	var preferred, fallback string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			return true
		}
		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref).String()
		if strings.Contains(href, "/opinions-orders/") {
			preferred = abs
			return false
		}
		if fallback == "" {
			fallback = abs
		}
		return true
	})
	if preferred != "" {
		return preferred
	}
	return fallback
}
