package summarizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ryosukesatoh/court-digest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeCompleter answers the details prompt and the summary prompt separately.
type fakeCompleter struct {
	details    string
	detailsErr error
	summary    string
	summaryErr error

	calls []string
	users []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.calls = append(f.calls, system)
	f.users = append(f.users, user)
	if system == detailsPrompt {
		return f.details, f.detailsErr
	}
	return f.summary, f.summaryErr
}

const detailsReply = "```json\n" + `{
  "is_patent_case": true,
  "panel_judges": ["Moore", "Lourie", "Stark"],
  "author_judge": "Stark",
  "case_summary": "Focus sued Kartri for infringement.",
  "major_holdings": "1. Claim construction affirmed."
}` + "\n```"

func TestSummarize(t *testing.T) {
	fc := &fakeCompleter{details: detailsReply, summary: "  **Holding:** Affirmed.  "}
	s := NewLLMSummarizer(fc, "custom prompt", 0, nil)

	res, err := s.Summarize(context.Background(), "OPINION TEXT")
	require.NoError(t, err)

	assert.Equal(t, "**Holding:** Affirmed.", res.Text)
	assert.True(t, res.Details.PatentCase)
	assert.Equal(t, []string{"Moore", "Lourie", "Stark"}, res.Details.PanelJudges)
	assert.Equal(t, "Stark", res.Details.AuthorJudge)
	assert.Equal(t, "1. Claim construction affirmed.", res.Details.MajorHoldings)
	assert.Equal(t, []string{detailsPrompt, "custom prompt"}, fc.calls)
}

func TestSummarizeDetailsFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	fc := &fakeCompleter{details: "I cannot answer that.", summary: "Summary."}
	s := NewLLMSummarizer(fc, "", 0, zap.New(core))

	res, err := s.Summarize(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "Summary.", res.Text)
	assert.Equal(t, Details{}, res.Details)
	assert.Equal(t, 1, logs.FilterMessage("structured details unavailable").Len())
}

func TestSummarizeSummaryFailure(t *testing.T) {
	fc := &fakeCompleter{details: detailsReply, summaryErr: errors.New("rate limited")}
	_, err := NewLLMSummarizer(fc, "", 0, nil).Summarize(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSummarizeEmptySummary(t *testing.T) {
	fc := &fakeCompleter{details: detailsReply, summary: "   "}
	_, err := NewLLMSummarizer(fc, "", 0, nil).Summarize(context.Background(), "text")
	require.Error(t, err)
}

func TestSummarizeEmptyText(t *testing.T) {
	fc := &fakeCompleter{}
	_, err := NewLLMSummarizer(fc, "", 0, nil).Summarize(context.Background(), " \n ")
	require.ErrorIs(t, err, ErrEmptyText)
	assert.Empty(t, fc.calls)
}

func TestSummarizeClipsInput(t *testing.T) {
	fc := &fakeCompleter{details: detailsReply, summary: "ok"}
	long := strings.Repeat("a", 20000)
	_, err := NewLLMSummarizer(fc, "", 100, nil).Summarize(context.Background(), long)
	require.NoError(t, err)
	assert.Len(t, fc.users[0], detailsInputChars)
	assert.Len(t, fc.users[1], 100)
}

func TestParseDetailsNullAuthor(t *testing.T) {
	d, err := parseDetails(`{"is_patent_case": false, "panel_judges": ["Per Curiam"], "author_judge": null}`)
	require.NoError(t, err)
	assert.False(t, d.PatentCase)
	assert.Equal(t, []string{"Per Curiam"}, d.PanelJudges)
	assert.Empty(t, d.AuthorJudge)
}

func TestParseDetailsInvalid(t *testing.T) {
	_, err := parseDetails(`{"is_patent_case": maybe}`)
	assert.Error(t, err)
	_, err = parseDetails("no json")
	assert.Error(t, err)
}

func TestClipKeepsRunesWhole(t *testing.T) {
	s := "abécd" // é is two bytes at offsets 2-3
	assert.Equal(t, "ab", clip(s, 3))
	assert.Equal(t, "abé", clip(s, 4))
	assert.Equal(t, s, clip(s, 100))
}

func TestLoadPrompt(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(file, []byte("from file"), 0o644))

	p, err := LoadPrompt("inline", file)
	require.NoError(t, err)
	assert.Equal(t, "inline", p)

	p, err = LoadPrompt("", file)
	require.NoError(t, err)
	assert.Equal(t, "from file", p)

	p, err = LoadPrompt("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPrompt(), p)
	assert.Contains(t, p, "Federal Circuit")

	_, err = LoadPrompt("", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	s, err := New(config.SummarizerConfig{Type: "anthropic", APIKey: "k", Model: "claude-sonnet-4-20250514", MaxTokens: 1024}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicCompleter{}, s.completer)

	s, err = New(config.SummarizerConfig{Type: "openai", APIKey: "k", Model: "gpt-4o"}, "", nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, s.completer)

	_, err = New(config.SummarizerConfig{Type: "llama"}, "", nil)
	assert.ErrorIs(t, err, ErrUnsupportedSummarizerType)
}
