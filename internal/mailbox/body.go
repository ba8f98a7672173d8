package mailbox

import (
	"encoding/base64"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/gmail/v1"
)

// Body returns the readable text of a message: the first text/plain part,
// or the text and link targets of the first text/html part.
func Body(p *gmail.MessagePart) string {
	if plain, ok := findPart(p, "text/plain"); ok {
		return plain
	}
	if html, ok := findPart(p, "text/html"); ok {
		return htmlText(html)
	}
	return ""
}

func findPart(p *gmail.MessagePart, mimeType string) (string, bool) {
	if p == nil {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(p.MimeType), mimeType) && p.Body != nil && p.Body.Data != "" {
		data, err := decodeData(p.Body.Data)
		if err == nil {
			return string(data), true
		}
	}
	for _, child := range p.Parts {
		if s, ok := findPart(child, mimeType); ok {
			return s, true
		}
	}
	return "", false
}

// decodeData accepts base64url with or without padding.
func decodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// htmlText flattens an HTML body. Each link target is written next to its
// anchor text, since notification links live in href attributes.
func htmlText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href = strings.TrimSpace(href); href != "" {
			s.SetText(s.Text() + " " + href + " ")
		}
	})
	return strings.TrimSpace(doc.Text())
}

// TruncateFooter cuts body at the first occurrence of marker.
func TruncateFooter(body, marker string) string {
	if marker == "" {
		return body
	}
	if i := strings.Index(body, marker); i >= 0 {
		return strings.TrimRight(body[:i], " \t\r\n")
	}
	return body
}
