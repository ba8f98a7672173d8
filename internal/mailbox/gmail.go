// Package mailbox reads court notification emails from Gmail and sends
// digests through the same account.
package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const me = "me"

// Message is one notification email with its decoded body.
type Message struct {
	ID       string
	From     string
	Subject  string
	Received time.Time
	Body     string
}

// Client searches and sends mail through the Gmail API.
type Client struct {
	svc          *gmail.Service
	maxResults   int
	footerMarker string
	logger       *zap.Logger
}

// ClientConfig tunes searches.
type ClientConfig struct {
	// MaxResults caps the messages returned per search; 0 means no cap.
	MaxResults int
	// FooterMarker cuts message bodies at the first occurrence.
	FooterMarker string
	Logger       *zap.Logger
}

// NewClient creates a Gmail client. Pass option.WithHTTPClient with a
// Session's HTTP client in production.
func NewClient(ctx context.Context, cfg ClientConfig, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("mailbox: create gmail service: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		svc:          svc,
		maxResults:   cfg.MaxResults,
		footerMarker: cfg.FooterMarker,
		logger:       logger,
	}, nil
}

var errEnoughMessages = errors.New("enough messages")

// Query builds the Gmail search for messages from sender received on day's
// local calendar date. Epoch bounds avoid Gmail's account-timezone date math.
func Query(sender string, day time.Time) string {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	return fmt.Sprintf("from:%s after:%d before:%d", sender, start.Unix(), end.Unix())
}

// Search returns messages from sender received on day, oldest first.
func (c *Client) Search(ctx context.Context, sender string, day time.Time) ([]Message, error) {
	q := Query(sender, day)
	c.logger.Debug("searching mailbox", zap.String("query", q))

	var ids []string
	call := c.svc.Users.Messages.List(me).Q(q)
	if c.maxResults > 0 && c.maxResults < 500 {
		call = call.MaxResults(int64(c.maxResults))
	}
	err := call.Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
			if c.maxResults > 0 && len(ids) >= c.maxResults {
				return errEnoughMessages
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errEnoughMessages) {
		return nil, fmt.Errorf("mailbox: search %q: %w", q, err)
	}

	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		full, err := c.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("mailbox: get message %s: %w", id, err)
		}
		msgs = append(msgs, c.toMessage(full))
	}

	// Gmail lists newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	c.logger.Info("mailbox search finished",
		zap.String("sender", sender),
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("messages", len(msgs)),
	)
	return msgs, nil
}

func (c *Client) toMessage(m *gmail.Message) Message {
	msg := Message{ID: m.Id}
	if m.InternalDate > 0 {
		msg.Received = time.UnixMilli(m.InternalDate)
	}
	if m.Payload != nil {
		for _, h := range m.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "from":
				msg.From = h.Value
			case "subject":
				msg.Subject = h.Value
			}
		}
	}
	msg.Body = TruncateFooter(Body(m.Payload), c.footerMarker)
	return msg
}

// Send delivers an RFC 5322 message through the account.
func (c *Client) Send(ctx context.Context, raw []byte) error {
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := c.svc.Users.Messages.Send(me, msg).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mailbox: send message: %w", err)
	}
	c.logger.Debug("message sent", zap.String("id", sent.Id))
	return nil
}
