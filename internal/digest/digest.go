// Package digest renders the daily opinion digest.
package digest

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Digest is the set of opinions to report for one date. It is rendered and
// sent, never persisted.
type Digest struct {
	Date      time.Time
	Summaries []store.Summary
	// Failed counts opinions that could not be processed this run.
	Failed int
}

// New returns a digest with summaries in digest order.
func New(date time.Time, summaries []store.Summary, failed int) *Digest {
	sorted := make([]store.Summary, len(summaries))
	copy(sorted, summaries)
	store.Sort(sorted)
	return &Digest{Date: date, Summaries: sorted, Failed: failed}
}

// Subject is the email subject line.
func (d *Digest) Subject() string {
	return "Federal Circuit Opinions - " + d.Date.Format("January 2, 2006")
}

// Precedential returns the precedential opinions.
func (d *Digest) Precedential() []store.Summary {
	return d.filter(true)
}

// NonPrecedential returns the non-precedential opinions.
func (d *Digest) NonPrecedential() []store.Summary {
	return d.filter(false)
}

func (d *Digest) filter(precedential bool) []store.Summary {
	var out []store.Summary
	for _, s := range d.Summaries {
		if s.Precedential == precedential {
			out = append(out, s)
		}
	}
	return out
}

type section struct {
	title     string
	summaries []store.Summary
}

func (d *Digest) sections() []section {
	var out []section
	if p := d.Precedential(); len(p) > 0 {
		out = append(out, section{"Precedential Opinions", p})
	}
	if np := d.NonPrecedential(); len(np) > 0 {
		out = append(out, section{"Non-Precedential Opinions", np})
	}
	return out
}

// Heading is the display title of one opinion.
func Heading(s store.Summary) string {
	h := s.CaseNumber
	if s.CaseName != "" {
		h += ": " + s.CaseName
	}
	if s.Version > 1 {
		h += fmt.Sprintf(" (amended, version %d)", s.Version)
	}
	return h
}

// Byline lists the panel and authoring judge when known.
func Byline(s store.Summary) string {
	var parts []string
	if len(s.Details.PanelJudges) > 0 {
		parts = append(parts, "Panel: "+strings.Join(s.Details.PanelJudges, ", "))
	}
	if s.Details.AuthorJudge != "" {
		parts = append(parts, "Author: "+s.Details.AuthorJudge)
	}
	return strings.Join(parts, "; ")
}

func (d *Digest) failedNote() string {
	switch d.Failed {
	case 0:
		return ""
	case 1:
		return "1 opinion could not be processed this run and is not included."
	default:
		return fmt.Sprintf("%d opinions could not be processed this run and are not included.", d.Failed)
	}
}

// Text renders the plain-text body.
func (d *Digest) Text() string {
	var sb strings.Builder

	subject := d.Subject()
	sb.WriteString(subject + "\n")
	sb.WriteString(strings.Repeat("=", len(subject)) + "\n\n")

	for _, sec := range d.sections() {
		fmt.Fprintf(&sb, "%s (%d)\n", strings.ToUpper(sec.title), len(sec.summaries))
		sb.WriteString(strings.Repeat("-", 72) + "\n\n")
		for _, s := range sec.summaries {
			sb.WriteString(Heading(s) + "\n")
			if s.PDFURL != "" {
				sb.WriteString("PDF: " + s.PDFURL + "\n")
			}
			if b := Byline(s); b != "" {
				sb.WriteString(b + "\n")
			}
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(s.Text))
			sb.WriteString("\n\n")
		}
	}

	if note := d.failedNote(); note != "" {
		sb.WriteString("Note: " + note + "\n")
	}
	return sb.String()
}

var mdEscaper = strings.NewReplacer(`\`, `\\`, `[`, `\[`, `]`, `\]`, `*`, `\*`, `_`, `\_`, "`", "\\`")

// Markdown renders the digest as a markdown document.
func (d *Digest) Markdown() string {
	var sb strings.Builder

	sb.WriteString("# " + d.Subject() + "\n\n")
	for _, sec := range d.sections() {
		fmt.Fprintf(&sb, "## %s (%d)\n\n", sec.title, len(sec.summaries))
		for _, s := range sec.summaries {
			title := mdEscaper.Replace(Heading(s))
			if s.PDFURL != "" {
				fmt.Fprintf(&sb, "### [%s](<%s>)\n\n", title, s.PDFURL)
			} else {
				fmt.Fprintf(&sb, "### %s\n\n", title)
			}
			if b := Byline(s); b != "" {
				sb.WriteString("*" + mdEscaper.Replace(b) + "*\n\n")
			}
			sb.WriteString(strings.TrimSpace(s.Text))
			sb.WriteString("\n\n---\n\n")
		}
	}
	if note := d.failedNote(); note != "" {
		sb.WriteString("> " + note + "\n")
	}
	return sb.String()
}

var (
	markdownEngine = goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
		),
	)

	policy = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.RequireNoFollowOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

const htmlHead = `<!DOCTYPE html><html><head><meta charset="UTF-8"><style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 760px; margin: 0 auto; padding: 20px; color: #333; }
h1 { color: #1a1a2e; border-bottom: 2px solid #0f3460; padding-bottom: 10px; }
h2 { color: #16213e; margin-top: 32px; }
h3 { margin-bottom: 4px; }
h3 a { color: #0f3460; }
blockquote { background: #fff4e5; border-left: 4px solid #e9a23b; margin: 20px 0; padding: 10px 15px; }
hr { border: none; border-top: 1px solid #ddd; }
</style>`

// HTML renders the HTML body. Summary markdown goes through goldmark and the
// result is sanitized, since summary text comes from a language model.
func (d *Digest) HTML() (string, error) {
	var buf bytes.Buffer
	if err := markdownEngine.Convert([]byte(d.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("digest: render markdown: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(htmlHead)
	sb.WriteString("<title>" + html.EscapeString(d.Subject()) + "</title></head><body>\n")
	sb.WriteString(policy.Sanitize(buf.String()))
	sb.WriteString("</body></html>\n")
	return sb.String(), nil
}
