package model

import (
	"regexp"
	"strings"
)

// Listing is the read-only slice of a directory listing the outreach flow
// needs: enough to build its canonical public URL.
type Listing struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
	City string `json:"city,omitempty"`
	// URL, when set, overrides URL construction entirely. The flat-file
	// tracker stores full listing URLs instead of slugs.
	URL string `json:"url,omitempty"`
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)

// Slugify lowercases a value, turns spaces into hyphens and drops anything
// that is not URL-slug safe.
func Slugify(s string) string {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
	return nonSlugChars.ReplaceAllString(s, "")
}

// ListingURL builds the canonical public URL for a listing: the profile
// page when a slug exists, otherwise the city landing page, otherwise
// empty.
func ListingURL(baseURL string, l *Listing) string {
	if l == nil {
		return ""
	}
	if l.URL != "" {
		return l.URL
	}
	base := strings.TrimRight(baseURL, "/")
	if l.Slug != "" {
		return base + "/profiles/" + l.Slug
	}
	if l.City != "" {
		return base + "/location/" + Slugify(l.City)
	}
	return ""
}
