package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"github.com/ryosukesatoh/court-digest/internal/retry"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"go.uber.org/zap"
)

const (
	colorPrecedential    = 0x0F3460
	colorNonPrecedential = 0x8E9AAF
	colorOverview        = 0x5865F2
)

type discordEmbedFooter struct {
	Text string `json:"text"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	URL         string              `json:"url,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
	Footer      *discordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// DiscordPublisher posts digests to a Discord channel via webhook.
type DiscordPublisher struct {
	webhookURL  string
	client      *http.Client
	retryConfig retry.Config
	logger      *zap.Logger
}

// NewDiscordPublisher creates a new DiscordPublisher.
func NewDiscordPublisher(webhookURL string, logger *zap.Logger) *DiscordPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
		retryConfig: retry.Config{
			MaxRetries: 3,
			BaseDelay:  1 * time.Second,
		},
		logger: logger,
	}
}

// Publish sends the digest as an overview embed followed by one embed per
// opinion.
func (d *DiscordPublisher) Publish(ctx context.Context, dg *digest.Digest) error {
	embeds := buildEmbeds(dg)
	batches := batchEmbeds(embeds)

	for i, batch := range batches {
		err := retry.WithBackoff(ctx, d.retryConfig, func(ctx context.Context) error {
			return d.sendWebhook(ctx, batch)
		})
		if err != nil {
			return fmt.Errorf("discord: failed to send batch %d: %w", i+1, err)
		}

		// Delay between batches to avoid rate limits.
		if i < len(batches)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
		}
	}

	d.logger.Info("digest posted to discord",
		zap.Int("embeds", len(embeds)),
		zap.Int("batches", len(batches)),
	)
	return nil
}

func buildEmbeds(dg *digest.Digest) []discordEmbed {
	embeds := make([]discordEmbed, 0, len(dg.Summaries)+1)

	overview := fmt.Sprintf("%d precedential, %d non-precedential",
		len(dg.Precedential()), len(dg.NonPrecedential()))
	if dg.Failed > 0 {
		overview += fmt.Sprintf("\n%d could not be processed", dg.Failed)
	}
	embeds = append(embeds, discordEmbed{
		Title:       truncate(dg.Subject(), 256),
		Description: overview,
		Color:       colorOverview,
		Footer:      &discordEmbedFooter{Text: dg.Date.Format("2006-01-02")},
		Timestamp:   dg.Date.Format(time.RFC3339),
	})

	for _, s := range dg.Summaries {
		embeds = append(embeds, opinionEmbed(s))
	}
	return embeds
}

func opinionEmbed(s store.Summary) discordEmbed {
	e := discordEmbed{
		Title:       truncate(digest.Heading(s), 256),
		URL:         s.PDFURL,
		Description: truncate(strings.TrimSpace(s.Text), 4096),
		Color:       colorNonPrecedential,
		Fields: []discordEmbedField{
			{Name: "Status", Value: "Non-precedential", Inline: true},
		},
	}
	if s.Precedential {
		e.Color = colorPrecedential
		e.Fields[0].Value = "Precedential"
	}
	if s.Details.AuthorJudge != "" {
		e.Fields = append(e.Fields, discordEmbedField{Name: "Author", Value: truncate(s.Details.AuthorJudge, 1024), Inline: true})
	}
	if len(s.Details.PanelJudges) > 0 {
		e.Footer = &discordEmbedFooter{Text: truncate("Panel: "+strings.Join(s.Details.PanelJudges, ", "), 2048)}
	}
	return e
}

// batchEmbeds splits embeds into batches respecting Discord limits:
// max 10 embeds per message, max 6000 total characters per message.
func batchEmbeds(embeds []discordEmbed) [][]discordEmbed {
	var batches [][]discordEmbed
	var current []discordEmbed
	currentChars := 0

	for _, e := range embeds {
		ec := embedCharCount(e)

		if len(current) > 0 && (len(current) >= 10 || currentChars+ec > 6000) {
			batches = append(batches, current)
			current = nil
			currentChars = 0
		}

		current = append(current, e)
		currentChars += ec
	}

	if len(current) > 0 {
		batches = append(batches, current)
	}

	return batches
}

// sendWebhook posts a batch of embeds to the Discord webhook.
func (d *DiscordPublisher) sendWebhook(ctx context.Context, embeds []discordEmbed) error {
	body, err := json.Marshal(discordWebhookPayload{Embeds: embeds})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// truncate shortens s to max bytes, preferring a sentence boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := strings.ToValidUTF8(s[:max-3], "")
	if idx := strings.LastIndexAny(cut, ".!?"); idx > max/2 {
		return cut[:idx+1]
	}
	return cut + "…"
}

// embedCharCount returns the total character count of an embed for batching purposes.
func embedCharCount(e discordEmbed) int {
	n := len(e.Title) + len(e.Description)
	for _, f := range e.Fields {
		n += len(f.Name) + len(f.Value)
	}
	if e.Footer != nil {
		n += len(e.Footer.Text)
	}
	return n
}
