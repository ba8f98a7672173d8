package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ryosukesatoh/court-digest/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrUnsupportedSummarizerType is returned when an unsupported summarizer type is specified
	ErrUnsupportedSummarizerType = errors.New("unsupported summarizer type")

	// ErrEmptyText is returned when there is nothing to summarize.
	ErrEmptyText = errors.New("summarizer: empty input text")
)

const (
	// The opinion header and first pages are enough for the structured answers.
	detailsInputChars = 15000
	defaultInputChars = 200000
)

// New creates a summarizer backed by the language model named in the configuration.
func New(cfg config.SummarizerConfig, prompt string, logger *zap.Logger) (*LLMSummarizer, error) {
	var c Completer
	switch cfg.Type {
	case "anthropic":
		c = NewAnthropicCompleter(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "openai":
		c = NewOpenAICompleter(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSummarizerType, cfg.Type)
	}
	return NewLLMSummarizer(c, prompt, cfg.MaxInputChars, logger), nil
}

// LLMSummarizer asks a language model for structured details and a prose
// summary of each opinion.
type LLMSummarizer struct {
	completer  Completer
	prompt     string
	inputChars int
	logger     *zap.Logger
}

var _ Summarizer = (*LLMSummarizer)(nil)

func NewLLMSummarizer(c Completer, prompt string, inputChars int, logger *zap.Logger) *LLMSummarizer {
	if prompt == "" {
		prompt = defaultPrompt
	}
	if inputChars <= 0 {
		inputChars = defaultInputChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMSummarizer{completer: c, prompt: prompt, inputChars: inputChars, logger: logger}
}

// Summarize produces the summary text for an opinion. A failure to obtain the
// structured details is logged and leaves Details empty; a failure of the
// summary call is an error.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	details, err := s.details(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("structured details unavailable", zap.Error(err))
	}

	summary, err := s.completer.Complete(ctx, s.prompt, clip(text, s.inputChars))
	if err != nil {
		return nil, fmt.Errorf("summarizer: summary call: %w", err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, errors.New("summarizer: model returned an empty summary")
	}

	return &Result{Text: summary, Details: details}, nil
}

func (s *LLMSummarizer) details(ctx context.Context, text string) (Details, error) {
	reply, err := s.completer.Complete(ctx, detailsPrompt, clip(text, detailsInputChars))
	if err != nil {
		return Details{}, fmt.Errorf("summarizer: details call: %w", err)
	}
	return parseDetails(reply)
}

type detailsJSON struct {
	IsPatentCase  bool     `json:"is_patent_case"`
	PanelJudges   []string `json:"panel_judges"`
	AuthorJudge   *string  `json:"author_judge"`
	CaseSummary   string   `json:"case_summary"`
	MajorHoldings string   `json:"major_holdings"`
}

// parseDetails reads the JSON object out of a model reply, tolerating
// markdown fences and surrounding prose.
func parseDetails(reply string) (Details, error) {
	body := strings.TrimSpace(reply)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return Details{}, fmt.Errorf("summarizer: no JSON object in reply: %.200s", body)
	}

	var dj detailsJSON
	if err := json.Unmarshal([]byte(body[start:end+1]), &dj); err != nil {
		return Details{}, fmt.Errorf("summarizer: failed to parse details JSON: %w", err)
	}

	d := Details{
		PatentCase:    dj.IsPatentCase,
		PanelJudges:   dj.PanelJudges,
		CaseSummary:   strings.TrimSpace(dj.CaseSummary),
		MajorHoldings: strings.TrimSpace(dj.MajorHoldings),
	}
	if dj.AuthorJudge != nil {
		d.AuthorJudge = strings.TrimSpace(*dj.AuthorJudge)
	}
	return d, nil
}

// clip cuts s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
