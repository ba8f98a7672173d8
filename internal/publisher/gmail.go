package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"go.uber.org/zap"
)

// Sender sends a raw RFC 5322 message. mailbox.Client implements it.
type Sender interface {
	Send(ctx context.Context, raw []byte) error
}

// GmailPublisher sends the digest through the Gmail API as the mailbox account.
type GmailPublisher struct {
	sender     Sender
	from       string
	recipients Recipients
	logger     *zap.Logger
	now        func() time.Time
}

func NewGmailPublisher(sender Sender, from string, recipients Recipients, logger *zap.Logger) *GmailPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GmailPublisher{
		sender:     sender,
		from:       from,
		recipients: recipients,
		logger:     logger,
		now:        time.Now,
	}
}

func (p *GmailPublisher) Publish(ctx context.Context, d *digest.Digest) error {
	raw, err := Compose(Envelope{
		From:       p.from,
		Recipients: p.recipients,
		BccHeader:  true,
		Date:       p.now(),
	}, d)
	if err != nil {
		return err
	}
	if err := p.sender.Send(ctx, raw); err != nil {
		return fmt.Errorf("gmail: failed to send: %w", err)
	}
	p.logger.Info("digest sent via gmail",
		zap.String("subject", d.Subject()),
		zap.Int("to", len(p.recipients.To)),
		zap.Int("bcc", len(p.recipients.Bcc)),
	)
	return nil
}
