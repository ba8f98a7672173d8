// Package store persists opinion summaries under a date/category layout.
//
// The summary file at its canonical path is the idempotency marker for a
// (date, case number) key: its presence means the opinion was processed.
//
//	summaries/<YYYY-MM-DD>/<precedential|non-precedential>/<YYYY.MM.DD>_<case>.txt
//
// Amended opinions that share a key with an existing summary but carry a
// different PDF are stored as numbered versions (<YYYY.MM.DD>_<case>_v2.txt).
package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	CategoryPrecedential    = "precedential"
	CategoryNonPrecedential = "non-precedential"

	dirDateLayout  = "2006-01-02"
	fileDateLayout = "2006.01.02"
	metaDir        = ".meta"
)

// ErrExists is returned by Write when a summary is already stored for the
// key and version.
var ErrExists = errors.New("store: summary already exists")

// Key identifies an opinion within a digest date.
type Key struct {
	Date       time.Time `json:"date"`
	CaseNumber string    `json:"case_number"`
}

func (k Key) String() string {
	return k.Date.Format(dirDateLayout) + "/" + k.CaseNumber
}

// Details holds structured facts extracted alongside the summary text.
type Details struct {
	PatentCase    bool     `json:"patent_case"`
	PanelJudges   []string `json:"panel_judges,omitempty"`
	AuthorJudge   string   `json:"author_judge,omitempty"`
	CaseSummary   string   `json:"case_summary,omitempty"`
	MajorHoldings string   `json:"major_holdings,omitempty"`
}

// Summary is one stored opinion summary.
type Summary struct {
	Key
	// Version is 1 for the original opinion and 2.. for amendments.
	Version      int       `json:"version"`
	CaseName     string    `json:"case_name,omitempty"`
	Precedential bool      `json:"precedential"`
	LandingURL   string    `json:"landing_url,omitempty"`
	PDFURL       string    `json:"pdf_url,omitempty"`
	PDFSHA256    string    `json:"pdf_sha256,omitempty"`
	IssuedOn     time.Time `json:"issued_on,omitempty"`
	Details      Details   `json:"details"`
	CreatedAt    time.Time `json:"created_at"`

	Text string `json:"-"`
	Path string `json:"-"`
}

// Store is the idempotency boundary of the daily check.
type Store interface {
	// Exists reports whether any version is stored for the key.
	Exists(date time.Time, caseNumber string) (bool, error)
	// Lookup returns every stored version for the key, oldest first.
	Lookup(date time.Time, caseNumber string) ([]Summary, error)
	// Write stores s only if nothing is stored at its canonical path and
	// returns ErrExists otherwise.
	Write(s Summary) (string, error)
	// Replace stores s, overwriting any existing file for its key and version.
	Replace(s Summary) (string, error)
	// List returns every summary for the date in digest order.
	List(date time.Time) ([]Summary, error)
}

// Category returns the directory name for the precedential flag.
func Category(precedential bool) string {
	if precedential {
		return CategoryPrecedential
	}
	return CategoryNonPrecedential
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// sanitizeCase makes a case number safe to use in a file name.
func sanitizeCase(caseNumber string) string {
	return unsafeChars.ReplaceAllString(strings.TrimSpace(caseNumber), "_")
}

// FileName returns the summary file name for a key and version.
func FileName(k Key, version int) string {
	name := k.Date.Format(fileDateLayout) + "_" + sanitizeCase(k.CaseNumber)
	if version > 1 {
		name += "_v" + strconv.Itoa(version)
	}
	return name + ".txt"
}

// RelPath returns the canonical path of s relative to the store root.
func RelPath(s Summary) string {
	return filepath.Join(
		s.Date.Format(dirDateLayout),
		Category(s.Precedential),
		FileName(s.Key, s.Version),
	)
}

var fileNameRegex = regexp.MustCompile(`^(\d{4}\.\d{2}\.\d{2})_(.+?)(?:_v(\d+))?\.txt$`)

// parseFileName recovers the key and version from a summary file name.
func parseFileName(name string) (Key, int, error) {
	m := fileNameRegex.FindStringSubmatch(name)
	if m == nil {
		return Key{}, 0, fmt.Errorf("store: unrecognized summary file name %q", name)
	}
	date, err := time.ParseInLocation(fileDateLayout, m[1], time.Local)
	if err != nil {
		return Key{}, 0, fmt.Errorf("store: bad date in %q: %w", name, err)
	}
	version := 1
	if m[3] != "" {
		version, _ = strconv.Atoi(m[3])
	}
	return Key{Date: date, CaseNumber: m[2]}, version, nil
}

// SameDay reports whether two times fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Format(dirDateLayout) == b.Format(dirDateLayout)
}

func normalize(s Summary) Summary {
	if s.Version < 1 {
		s.Version = 1
	}
	s.CaseNumber = strings.TrimSpace(s.CaseNumber)
	return s
}

func validate(s Summary) error {
	if s.Date.IsZero() {
		return errors.New("store: summary has no date")
	}
	if s.CaseNumber == "" {
		return errors.New("store: summary has no case number")
	}
	return nil
}

// Sort orders summaries precedential first, then by case number, then by
// version.
func Sort(summaries []Summary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.Precedential != b.Precedential {
			return a.Precedential
		}
		if a.CaseNumber != b.CaseNumber {
			return a.CaseNumber < b.CaseNumber
		}
		return a.Version < b.Version
	})
}
