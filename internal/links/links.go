// Package links finds opinion landing-page URLs in notification emails.
package links

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// GovDelivery wraps every link as
	// https://links-1.govdelivery.com/CL0/https:%2F%2Fwww.cafc.uscourts.gov%2F.../1/...
	govDeliveryRegex = regexp.MustCompile(`(?i)https?://links[^\s]*?\.govdelivery\.com/CL0/(https?[^\s<>"')/]*)`)

	directRegex = regexp.MustCompile(`(?i)https?://(?:www\.)?[a-z0-9]+\.uscourts\.gov/[^\s<>"')]*`)
)

// Extract returns the unique court landing-page URLs found in text, in the
// order they first appear. Direct PDF links are dropped.
func Extract(text string) []string {
	var found []string

	for _, m := range govDeliveryRegex.FindAllStringSubmatch(text, -1) {
		decoded, err := url.PathUnescape(m[1])
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(decoded), "uscourts.gov") {
			found = append(found, decoded)
		}
	}
	found = append(found, directRegex.FindAllString(text, -1)...)

	return filter(found)
}

// Set collapses URLs from several messages into one ordered, de-duplicated list.
func Set(groups ...[]string) []string {
	var all []string
	for _, g := range groups {
		all = append(all, g...)
	}
	return filter(all)
}

func filter(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimRight(strings.TrimSpace(u), ".,;")
		if u == "" || strings.HasSuffix(strings.ToLower(u), ".pdf") {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
