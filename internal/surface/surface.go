// Package surface extracts the contact surface of a fetched HTML document:
// exposed mailto addresses, confirmable message forms, and links that look
// like contact pages.
package surface

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// maxContactPages bounds the sub-page crawl. Deliberate precision/recall
// tradeoff, not a performance knob.
const maxContactPages = 5

// Parse builds a goquery document from raw HTML.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "surface: parse html")
	}
	return doc, nil
}

// Mailtos returns the email addresses found in mailto: links, in document
// order of first occurrence, de-duplicated case-insensitively. The original
// casing of the first occurrence is preserved.
func Mailtos(doc *goquery.Document) []string {
	var out []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if !strings.HasPrefix(strings.ToLower(href), "mailto:") {
			return
		}
		addr := href[len("mailto:"):]
		if i := strings.Index(addr, "?"); i >= 0 {
			addr = addr[:i]
		}
		addr = strings.TrimSpace(addr)
		if addr == "" || !strings.Contains(addr, "@") {
			return
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	})

	return out
}

// HasConfirmableForm reports whether the document contains at least one form
// judged automatable: no CAPTCHA marker anywhere in its markup, and a
// fillable input or textarea whose descriptive text looks like a message
// field.
func HasConfirmableForm(doc *goquery.Document) bool {
	found := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		markup, err := goquery.OuterHtml(form)
		if err != nil || ContainsCaptcha(markup) {
			return true
		}
		if PickField(form, MessageFieldPatterns, true) != nil {
			found = true
			return false
		}
		return true
	})
	return found
}

// PickField returns the first fillable field in form whose combined
// name/id/placeholder/aria-label text contains one of patterns, or nil.
// Textareas are only considered when includeTextarea is set.
func PickField(form *goquery.Selection, patterns []string, includeTextarea bool) *goquery.Selection {
	selector := "input"
	if includeTextarea {
		selector = "input, textarea"
	}

	var picked *goquery.Selection
	form.Find(selector).EachWithBreak(func(_ int, field *goquery.Selection) bool {
		typ := strings.ToLower(field.AttrOr("type", "text"))
		if _, skip := skippedInputTypes[typ]; skip && goquery.NodeName(field) == "input" {
			return true
		}
		if matchesAny(FieldHaystack(field), patterns) {
			picked = field
			return false
		}
		return true
	})
	return picked
}

// FieldHaystack joins the descriptive attributes of a form field into one
// lower-cased string for pattern matching.
func FieldHaystack(field *goquery.Selection) string {
	parts := []string{
		field.AttrOr("name", ""),
		field.AttrOr("id", ""),
		field.AttrOr("placeholder", ""),
		field.AttrOr("aria-label", ""),
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// ContactPages collects same-page anchors whose resolved path+query contains
// a contact keyword. mailto:/tel:/javascript: targets and non-http(s)
// schemes are excluded; results are de-duplicated by fragment-stripped URL,
// capped at maxContactPages, in document order.
func ContactPages(baseURL string, doc *goquery.Document) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if href == "" ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") ||
			strings.HasPrefix(lower, "javascript:") {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}
		full := base.ResolveReference(ref)
		if full.Scheme != "http" && full.Scheme != "https" {
			return true
		}

		label := strings.ToLower(full.Path)
		if full.RawQuery != "" {
			label += "?" + strings.ToLower(full.RawQuery)
		}
		if !matchesAny(label, contactPathKeywords) {
			return true
		}

		full.Fragment = ""
		norm := full.String()
		if _, dup := seen[norm]; dup {
			return true
		}
		seen[norm] = struct{}{}
		out = append(out, norm)

		return len(out) < maxContactPages
	})

	return out
}
