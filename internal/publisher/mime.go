package publisher

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
)

// Envelope addresses one digest message.
type Envelope struct {
	// From may be empty when the sending service fills it in.
	From       string
	Recipients Recipients
	// BccHeader keeps a Bcc header in the message for services that strip
	// it before delivery. SMTP messages must leave it out.
	BccHeader bool
	Date      time.Time
}

// Compose renders d as a multipart/alternative RFC 5322 message with a
// plain-text and an HTML part.
func Compose(env Envelope, d *digest.Digest) ([]byte, error) {
	if env.Recipients.Empty() {
		return nil, ErrNoRecipients
	}
	to, err := parseList(env.Recipients.To)
	if err != nil {
		return nil, err
	}
	bcc, err := parseList(env.Recipients.Bcc)
	if err != nil {
		return nil, err
	}
	htmlBody, err := d.HTML()
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := writePart(mw, "text/plain; charset=UTF-8", d.Text()); err != nil {
		return nil, err
	}
	if err := writePart(mw, "text/html; charset=UTF-8", htmlBody); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("publisher: close multipart: %w", err)
	}

	date := env.Date
	if date.IsZero() {
		date = time.Now()
	}

	var msg bytes.Buffer
	if env.From != "" {
		from, err := mail.ParseAddress(env.From)
		if err != nil {
			return nil, fmt.Errorf("publisher: bad from address %q: %w", env.From, err)
		}
		writeHeader(&msg, "From", from.String())
	}
	if len(to) > 0 {
		writeHeader(&msg, "To", joinAddresses(to))
	} else {
		writeHeader(&msg, "To", "undisclosed-recipients:;")
	}
	if env.BccHeader && len(bcc) > 0 {
		writeHeader(&msg, "Bcc", joinAddresses(bcc))
	}
	writeHeader(&msg, "Subject", mime.QEncoding.Encode("utf-8", d.Subject()))
	writeHeader(&msg, "Date", date.Format(time.RFC1123Z))
	writeHeader(&msg, "MIME-Version", "1.0")
	writeHeader(&msg, "Content-Type", mime.FormatMediaType("multipart/alternative", map[string]string{"boundary": mw.Boundary()}))
	msg.WriteString("\r\n")
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key + ": " + value + "\r\n")
}

func writePart(mw *multipart.Writer, contentType, content string) error {
	h := textproto.MIMEHeader{}
	h.Set("Content-Type", contentType)
	h.Set("Content-Transfer-Encoding", "quoted-printable")
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("publisher: create part: %w", err)
	}
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(content)); err != nil {
		return fmt.Errorf("publisher: write part: %w", err)
	}
	return qp.Close()
}

func parseList(addrs []string) ([]*mail.Address, error) {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("publisher: bad address %q: %w", a, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func joinAddresses(addrs []*mail.Address) string {
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return strings.Join(s, ", ")
}

// envelopeAddresses returns the bare addresses of every recipient.
func envelopeAddresses(r Recipients) ([]string, error) {
	parsed, err := parseList(r.All())
	if err != nil {
		return nil, err
	}
	out := make([]string, len(parsed))
	for i, a := range parsed {
		out[i] = a.Address
	}
	return out, nil
}
