// Package opinion fetches court opinion landing pages and their PDFs.
package opinion

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
)

// Metadata describes one opinion as advertised by its landing page.
type Metadata struct {
	LandingURL   string
	PDFURL       string
	CaseNumber   string
	CaseName     string
	Precedential bool
	// Issued is the filing date from the PDF file name; zero when unknown.
	Issued time.Time
}

// Fetcher probes landing pages and downloads opinion PDFs.
type Fetcher interface {
	Probe(ctx context.Context, landingURL string) (*Metadata, error)
	Download(ctx context.Context, m *Metadata) ([]byte, error)
}

var (
	// ErrNoPDF is returned when a landing page has no PDF link.
	ErrNoPDF = errors.New("opinion: no PDF link on landing page")

	// ErrNoCaseNumber is returned when no case number can be derived.
	ErrNoCaseNumber = errors.New("opinion: no case number found")
)

var (
	caseNumberRegex = regexp.MustCompile(`\b(\d{2}|\d{4})-(\d{3,5})\b`)

	// Opinions head their first page with e.g. "No. 2023-1446" or
	// "Nos. 2023-1446, 2023-1447".
	textCaseRegex = regexp.MustCompile(`(?i)\bNos?\.\s*(\d{2}|\d{4})-(\d{3,5})\b`)

	// PDF names look like 23-1446.OPINION.10-2-2025_2583727.pdf.
	fileDateRegex = regexp.MustCompile(`\.(\d{1,2})-(\d{1,2})-(\d{4})(?:_|\.|$)`)
)

// normalizeCase shortens a four-digit year prefix: "2023-1446" -> "23-1446".
func normalizeCase(year, serial string) string {
	if len(year) == 4 {
		year = year[2:]
	}
	return year + "-" + serial
}

// CaseNumberFromText finds the docket number on an opinion's first pages.
func CaseNumberFromText(text string) (string, error) {
	head := text
	if len(head) > 5000 {
		head = head[:5000]
	}
	if m := textCaseRegex.FindStringSubmatch(head); m != nil {
		return normalizeCase(m[1], m[2]), nil
	}
	return "", ErrNoCaseNumber
}

// CaseNumberFromFileName reads the case number from a PDF file name or URL.
func CaseNumberFromFileName(pdfURL string) string {
	base := pdfURL[strings.LastIndex(pdfURL, "/")+1:]
	if m := caseNumberRegex.FindStringSubmatchIndex(base); m != nil && m[0] == 0 {
		return normalizeCase(base[m[2]:m[3]], base[m[4]:m[5]])
	}
	return ""
}

// IssuedFromFileName reads the filing date from a PDF file name or URL.
func IssuedFromFileName(pdfURL string) time.Time {
	base := pdfURL[strings.LastIndex(pdfURL, "/")+1:]
	m := fileDateRegex.FindStringSubmatch(base)
	if m == nil {
		return time.Time{}
	}
	t, err := time.ParseInLocation("1-2-2006", m[1]+"-"+m[2]+"-"+m[3], time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
