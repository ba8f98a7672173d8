package publisher

import (
	"context"
	"fmt"
	"net/mail"
	"net/smtp"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"go.uber.org/zap"
)

// EmailPublisher sends the digest via SMTP.
type EmailPublisher struct {
	host       string
	port       int
	username   string
	password   string
	from       string
	recipients Recipients
	logger     *zap.Logger

	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailPublisher(host string, port int, username, password, from string, recipients Recipients, logger *zap.Logger) *EmailPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailPublisher{
		host:       host,
		port:       port,
		username:   username,
		password:   password,
		from:       from,
		recipients: recipients,
		logger:     logger,
		sendMail:   smtp.SendMail,
	}
}

func (p *EmailPublisher) Publish(_ context.Context, d *digest.Digest) error {
	msg, err := Compose(Envelope{
		From:       p.from,
		Recipients: p.recipients,
		Date:       time.Now(),
	}, d)
	if err != nil {
		return err
	}
	rcpt, err := envelopeAddresses(p.recipients)
	if err != nil {
		return err
	}
	from, err := mail.ParseAddress(p.from)
	if err != nil {
		return fmt.Errorf("email: bad from address %q: %w", p.from, err)
	}

	addr := fmt.Sprintf("%s:%d", p.host, p.port)
	var auth smtp.Auth
	if p.username != "" {
		auth = smtp.PlainAuth("", p.username, p.password, p.host)
	}

	if err := p.sendMail(addr, auth, from.Address, rcpt, msg); err != nil {
		return fmt.Errorf("email: failed to send: %w", err)
	}

	p.logger.Info("digest sent via smtp",
		zap.String("server", addr),
		zap.String("subject", d.Subject()),
		zap.Int("recipients", len(rcpt)),
	)
	return nil
}
