// Package publisher delivers the daily digest.
package publisher

import (
	"context"
	"errors"

	"github.com/ryosukesatoh/court-digest/internal/digest"
)

// ErrNoRecipients is returned by email publishers with nobody to send to.
var ErrNoRecipients = errors.New("publisher: no recipients")

// Publisher publishes a digest to some output destination.
type Publisher interface {
	Publish(ctx context.Context, d *digest.Digest) error
}

// Recipients are the digest addressees. Every recipient gets the same
// message; Bcc addresses are hidden from the others.
type Recipients struct {
	To  []string
	Bcc []string
}

// Empty reports whether there is nobody to send to.
func (r Recipients) Empty() bool {
	return len(r.To) == 0 && len(r.Bcc) == 0
}

// All returns the envelope recipients.
func (r Recipients) All() []string {
	all := make([]string, 0, len(r.To)+len(r.Bcc))
	all = append(all, r.To...)
	return append(all, r.Bcc...)
}
