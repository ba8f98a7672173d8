package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/ryosukesatoh/court-digest/internal/digest"
	"github.com/ryosukesatoh/court-digest/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDigest() *digest.Digest {
	day := time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)
	return digest.New(day, []store.Summary{
		{
			Key:          store.Key{Date: day, CaseNumber: "23-1446"},
			Version:      1,
			CaseName:     "FOCUS PRODUCTS GROUP v. KARTRI SALES",
			Precedential: true,
			PDFURL:       "https://www.cafc.uscourts.gov/opinions-orders/23-1446.OPINION.10-2-2025_2583727.pdf",
			Details:      store.Details{PanelJudges: []string{"Moore", "Hughes", "Stark"}, AuthorJudge: "Hughes"},
			Text:         "The court affirmed the judgment of non-infringement.",
		},
		{
			Key:      store.Key{Date: day, CaseNumber: "24-1000"},
			Version:  1,
			CaseName: "Smith v. DVA",
			PDFURL:   "https://www.cafc.uscourts.gov/opinions-orders/24-1000.ORDER.10-2-2025_1.pdf",
			Text:     "Dismissed for lack of jurisdiction.",
		},
	}, 1)
}

type parsedMessage struct {
	header mail.Header
	parts  map[string]string
}

func parseMessage(t *testing.T, raw []byte) parsedMessage {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/alternative", mediaType)

	out := parsedMessage{header: msg.Header, parts: map[string]string{}}
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		// multipart.Reader decodes quoted-printable transparently.
		body, err := io.ReadAll(p)
		require.NoError(t, err)
		ct, _, _ := mime.ParseMediaType(p.Header.Get("Content-Type"))
		out.parts[ct] = string(body)
	}
	return out
}

func TestCompose(t *testing.T) {
	raw, err := Compose(Envelope{
		From:       "Court Digest <digest@example.com>",
		Recipients: Recipients{To: []string{"a@example.com", "b@example.com"}, Bcc: []string{"hidden@example.com"}},
		Date:       time.Date(2025, 10, 2, 18, 0, 0, 0, time.UTC),
	}, sampleDigest())
	require.NoError(t, err)

	msg := parseMessage(t, raw)

	subject, err := new(mime.WordDecoder).DecodeHeader(msg.header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Federal Circuit Opinions - October 2, 2025", subject)
	assert.Equal(t, `"Court Digest" <digest@example.com>`, msg.header.Get("From"))
	assert.Equal(t, "<a@example.com>, <b@example.com>", msg.header.Get("To"))
	assert.Empty(t, msg.header.Get("Bcc"), "bcc must not leak into SMTP headers")

	require.Contains(t, msg.parts, "text/plain")
	require.Contains(t, msg.parts, "text/html")
	assert.Contains(t, msg.parts["text/plain"], "23-1446: FOCUS PRODUCTS GROUP v. KARTRI SALES")
	assert.Contains(t, msg.parts["text/plain"], "1 opinion could not be processed")
	assert.Contains(t, msg.parts["text/html"], `href="https://www.cafc.uscourts.gov/opinions-orders/23-1446.OPINION.10-2-2025_2583727.pdf"`)
}

func TestComposeBccHeader(t *testing.T) {
	raw, err := Compose(Envelope{
		Recipients: Recipients{Bcc: []string{"hidden@example.com"}},
		BccHeader:  true,
	}, sampleDigest())
	require.NoError(t, err)

	msg := parseMessage(t, raw)
	assert.Equal(t, "<hidden@example.com>", msg.header.Get("Bcc"))
	assert.Equal(t, "undisclosed-recipients:;", msg.header.Get("To"))
	assert.Empty(t, msg.header.Get("From"))
}

func TestComposeErrors(t *testing.T) {
	_, err := Compose(Envelope{}, sampleDigest())
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = Compose(Envelope{Recipients: Recipients{To: []string{"not an address"}}}, sampleDigest())
	assert.ErrorContains(t, err, "bad address")
}

func TestRecipients(t *testing.T) {
	r := Recipients{To: []string{"a@x"}, Bcc: []string{"b@x"}}
	assert.False(t, r.Empty())
	assert.Equal(t, []string{"a@x", "b@x"}, r.All())
	assert.True(t, Recipients{}.Empty())
}

type fakeSender struct {
	raw [][]byte
	err error
}

func (f *fakeSender) Send(_ context.Context, raw []byte) error {
	f.raw = append(f.raw, raw)
	return f.err
}

func TestGmailPublish(t *testing.T) {
	sender := &fakeSender{}
	pub := NewGmailPublisher(sender, "", Recipients{To: []string{"team@example.com"}, Bcc: []string{"audit@example.com"}}, nil)

	require.NoError(t, pub.Publish(context.Background(), sampleDigest()))
	require.Len(t, sender.raw, 1, "one message for all recipients")

	msg := parseMessage(t, sender.raw[0])
	assert.Equal(t, "<audit@example.com>", msg.header.Get("Bcc"))
}

func TestGmailPublishError(t *testing.T) {
	sender := &fakeSender{err: errors.New("quota exceeded")}
	pub := NewGmailPublisher(sender, "", Recipients{To: []string{"team@example.com"}}, nil)

	err := pub.Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestEmailPublish(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  []byte
		calls   int
	)
	pub := NewEmailPublisher("smtp.example.com", 587, "user", "pass", "Digest <digest@example.com>",
		Recipients{To: []string{"a@example.com"}, Bcc: []string{"b@example.com"}}, nil)
	pub.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, pub.Publish(context.Background(), sampleDigest()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "digest@example.com", gotFrom)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, gotTo)
	assert.NotContains(t, string(gotMsg), "b@example.com")
}

func TestEmailPublishFailure(t *testing.T) {
	pub := NewEmailPublisher("smtp.example.com", 25, "", "", "digest@example.com",
		Recipients{To: []string{"a@example.com"}}, nil)
	pub.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}

	err := pub.Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email: failed to send")
}

func TestStdoutPublish(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewStdoutPublisher(&buf).Publish(context.Background(), sampleDigest()))

	output := buf.String()
	for _, want := range []string{
		"Federal Circuit Opinions - October 2, 2025",
		"PRECEDENTIAL OPINIONS (1)",
		"Panel: Moore, Hughes, Stark; Author: Hughes",
		"Dismissed for lack of jurisdiction.",
	} {
		assert.Contains(t, output, want)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hello", truncate("hello", 5))

	long := truncate("This is a very long string that should be truncated.", 20)
	assert.Less(t, len(long), 52)
	assert.True(t, strings.HasSuffix(long, "…"))

	assert.Equal(t, "A long enough first sentence.",
		truncate("A long enough first sentence. The rest is extra padding text here.", 40))
}

func TestEmbedCharCount(t *testing.T) {
	e := discordEmbed{
		Title:       "Title",       // 5
		Description: "Description", // 11
		Fields: []discordEmbedField{
			{Name: "Field", Value: "Value"}, // 5 + 5 = 10
		},
		Footer: &discordEmbedFooter{Text: "Footer"}, // 6
	}
	assert.Equal(t, 5+11+5+5+6, embedCharCount(e))
	assert.Equal(t, 9, embedCharCount(discordEmbed{Title: "Title", Description: "Desc"}))
}

func TestBatchEmbeds(t *testing.T) {
	five := make([]discordEmbed, 5)
	batches := batchEmbeds(five)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 5)

	twelve := make([]discordEmbed, 12)
	batches = batchEmbeds(twelve)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 10)
	assert.Len(t, batches[1], 2)

	// 3 x 2000 chars fill the 6000 char budget.
	big := make([]discordEmbed, 4)
	for i := range big {
		big[i] = discordEmbed{Description: strings.Repeat("x", 2000)}
	}
	batches = batchEmbeds(big)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 1)
}

func TestBuildEmbeds(t *testing.T) {
	embeds := buildEmbeds(sampleDigest())
	require.Len(t, embeds, 3)

	assert.Equal(t, "Federal Circuit Opinions - October 2, 2025", embeds[0].Title)
	assert.Contains(t, embeds[0].Description, "1 precedential, 1 non-precedential")
	assert.Contains(t, embeds[0].Description, "1 could not be processed")

	assert.Equal(t, "23-1446: FOCUS PRODUCTS GROUP v. KARTRI SALES", embeds[1].Title)
	assert.Equal(t, "Precedential", embeds[1].Fields[0].Value)
	assert.Equal(t, "Hughes", embeds[1].Fields[1].Value)
	require.NotNil(t, embeds[1].Footer)
	assert.Equal(t, "Non-precedential", embeds[2].Fields[0].Value)
	assert.Nil(t, embeds[2].Footer)
}

func TestDiscordPublishWithMockWebhook(t *testing.T) {
	var received []discordWebhookPayload

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload discordWebhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received = append(received, payload)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	pub := NewDiscordPublisher(ts.URL, nil)
	pub.client = ts.Client()

	require.NoError(t, pub.Publish(context.Background(), sampleDigest()))
	require.Len(t, received, 1)
	assert.Len(t, received[0].Embeds, 3)
}

func TestDiscordPublishWebhookError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	pub := NewDiscordPublisher(ts.URL, nil)
	pub.client = ts.Client()

	err := pub.Publish(context.Background(), sampleDigest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}
