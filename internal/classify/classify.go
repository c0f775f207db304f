// Package classify decides which channel, if any, can reach a provider:
// an exposed email, a confirmable contact form, a DM-only platform profile,
// or nothing.
package classify

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/surface"
)

// PageFetcher fetches one page. Satisfied by *fetcher.Fetcher.
type PageFetcher interface {
	Get(ctx context.Context, url string) (*fetcher.Page, error)
}

// Decision is the single outcome of classifying one contact's website.
type Decision struct {
	Method      model.ContactMethod
	Reason      model.Reason
	Evidence    string
	DeliveryURL string
	// Email is the first mailto address discovered, when Method is email.
	Email string
}

// Classifier resolves a website into a Decision. A fresh fetcher is created
// per classification so no cookies or session state carry across contacts.
type Classifier struct {
	newFetcher func() PageFetcher
}

// New creates a Classifier. newFetcher is invoked at most once per
// classification, and not at all for platform-hosted profiles.
func New(newFetcher func() PageFetcher) *Classifier {
	return &Classifier{newFetcher: newFetcher}
}

// NormalizeWebsite trims a raw website value and prefixes https:// when no
// scheme is present. Empty input stays empty.
func NormalizeWebsite(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return raw
}

// Classify runs the channel decision for one website. It never returns an
// error: every failure mode collapses into a none/no_contact_method
// decision with diagnostic evidence.
//
// Precedence is fixed: platform domains short-circuit without any fetch, an
// exposed email outranks a form, and the home page outranks discovered
// contact pages.
func (c *Classifier) Classify(ctx context.Context, website string) Decision {
	website = NormalizeWebsite(website)
	if website == "" {
		return none("missing_website", "")
	}

	u, err := url.Parse(website)
	if err != nil || u.Host == "" {
		return none("invalid_url", "")
	}

	host := strings.ToLower(u.Host)
	if surface.IsPlatformHost(host) {
		return Decision{
			Method:      model.MethodDM,
			Reason:      model.ReasonPlatformOnly,
			Evidence:    "platform_domain:" + host,
			DeliveryURL: website,
		}
	}

	f := c.newFetcher()

	home, err := f.Get(ctx, website)
	if err != nil {
		return none("site_unreachable", website)
	}
	if home.StatusCode >= 500 {
		return none(fmt.Sprintf("http_%d", home.StatusCode), home.FinalURL)
	}

	doc, err := surface.Parse(home.Body)
	if err != nil {
		return none("form_or_email_not_found", home.FinalURL)
	}

	if d, ok := decideFromPage(doc, home.FinalURL); ok {
		return d
	}

	for _, page := range surface.ContactPages(home.FinalURL, doc) {
		resp, err := f.Get(ctx, page)
		if err != nil || resp.StatusCode >= 400 {
			continue
		}
		sub, err := surface.Parse(resp.Body)
		if err != nil {
			continue
		}
		if d, ok := decideFromPage(sub, resp.FinalURL); ok {
			return d
		}
	}

	return none("form_or_email_not_found", home.FinalURL)
}

// decideFromPage applies the email-over-form precedence to one page.
func decideFromPage(doc *goquery.Document, pageURL string) (Decision, bool) {
	if mails := surface.Mailtos(doc); len(mails) > 0 {
		return Decision{
			Method:      model.MethodEmail,
			Reason:      model.ReasonEmailExposed,
			Evidence:    "mailto_found",
			DeliveryURL: "mailto:" + mails[0],
			Email:       mails[0],
		}, true
	}
	if surface.HasConfirmableForm(doc) {
		return Decision{
			Method:      model.MethodContactForm,
			Reason:      model.ReasonConfirmableForm,
			Evidence:    "form_message_field_no_captcha",
			DeliveryURL: pageURL,
		}, true
	}
	return Decision{}, false
}

func none(evidence, deliveryURL string) Decision {
	return Decision{
		Method:      model.MethodNone,
		Reason:      model.ReasonNoContactMethod,
		Evidence:    evidence,
		DeliveryURL: deliveryURL,
	}
}
