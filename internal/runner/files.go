package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/opinion"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/ryosukesatoh/court-digest/internal/summarizer"
	"go.uber.org/zap"
)

// FileSummarizer summarizes opinion PDFs from disk without the mailbox or
// the store.
type FileSummarizer struct {
	extractor  TextExtractor
	summarizer summarizer.Summarizer
	logger     *zap.Logger
	now        func() time.Time
}

func NewFileSummarizer(x TextExtractor, s summarizer.Summarizer, logger *zap.Logger) *FileSummarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSummarizer{extractor: x, summarizer: s, logger: logger, now: time.Now}
}

// SummarizeFiles writes one summary per PDF into outDir and returns the
// written paths. A failing file does not stop the others.
func (f *FileSummarizer) SummarizeFiles(ctx context.Context, paths []string, outDir string) ([]string, error) {
	var (
		written []string
		errs    []error
	)
	for _, p := range paths {
		out, err := f.SummarizeFile(ctx, p, outDir)
		if err != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			f.logger.Warn("summarize failed", zap.String("pdf", p), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
			continue
		}
		written = append(written, out)
	}
	return written, errors.Join(errs...)
}

// SummarizeFile summarizes one PDF and writes the summary text into outDir.
func (f *FileSummarizer) SummarizeFile(ctx context.Context, pdfPath, outDir string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", fmt.Errorf("runner: read %s: %w", pdfPath, err)
	}
	text, err := f.extractor.Extract(data)
	if err != nil {
		return "", err
	}
	res, err := f.summarizer.Summarize(ctx, text)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("runner: create %s: %w", outDir, err)
	}
	out := filepath.Join(outDir, f.OutputName(pdfPath, text))
	if err := os.WriteFile(out, []byte(strings.TrimSpace(res.Text)+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("runner: write %s: %w", out, err)
	}
	f.logger.Info("summary written", zap.String("pdf", pdfPath), zap.String("path", out))
	return out, nil
}

// OutputName names the summary for a PDF: <YYYY.MM.DD>_<case>.txt when a
// case number is known, <stem>-summary.txt otherwise. The date comes from
// the file name, falling back to today.
func (f *FileSummarizer) OutputName(pdfPath, text string) string {
	base := filepath.Base(pdfPath)

	cn := opinion.CaseNumberFromFileName(base)
	if cn == "" {
		cn, _ = opinion.CaseNumberFromText(text)
	}
	if cn == "" {
		return strings.TrimSuffix(base, filepath.Ext(base)) + "-summary.txt"
	}

	date := opinion.IssuedFromFileName(base)
	if date.IsZero() {
		date = f.now()
	}
	return store.FileName(store.Key{Date: date, CaseNumber: cn}, 1)
}
