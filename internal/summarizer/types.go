package summarizer

import (
	"context"
)

// Details holds the structured answers about an opinion.
type Details struct {
	PatentCase    bool
	PanelJudges   []string
	AuthorJudge   string
	CaseSummary   string
	MajorHoldings string
}

// Result is the output of summarizing one opinion.
type Result struct {
	Text    string
	Details Details
}

// Summarizer turns opinion text into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (*Result, error)
}

// Completer sends one system + user prompt pair to a language model and
// returns the text of its reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
