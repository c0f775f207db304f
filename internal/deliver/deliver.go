// Package deliver performs the first-contact attempt for a classified
// contact: it sends the templated email or fills and submits the discovered
// contact form.
package deliver

import (
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/providory/outreach/internal/classify"
	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/mail"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/surface"
)

// FormFetcher is the slice of the page fetcher the executor needs.
// Satisfied by *fetcher.Fetcher.
type FormFetcher interface {
	Get(ctx context.Context, url string) (*fetcher.Page, error)
	SubmitForm(ctx context.Context, method, action string, values url.Values) (*fetcher.Page, error)
}

// Identity is the sender identity stamped into messages and form fields.
type Identity struct {
	SenderName string
	ReplyTo    string
	Directory  string
}

// Result is the outcome of one delivery attempt.
type Result struct {
	Status      model.Status
	Evidence    string
	DeliveryURL string
}

// Executor carries out delivery over a classified channel. DM and none
// channels never reach it; they terminate at classification.
type Executor struct {
	sender     mail.Sender
	newFetcher func() FormFetcher
	id         Identity
}

// New creates an Executor. newFetcher is invoked once per form delivery so
// each attempt gets its own scoped HTTP session.
func New(sender mail.Sender, newFetcher func() FormFetcher, id Identity) *Executor {
	return &Executor{sender: sender, newFetcher: newFetcher, id: id}
}

// Deliver performs the first-contact attempt for contact through its
// classified channel. It never returns an error: every failure mode is a
// typed Result routed to the store.
func (e *Executor) Deliver(ctx context.Context, contact model.Contact, listingURL string) Result {
	switch contact.Method {
	case model.MethodEmail:
		return e.deliverEmail(ctx, contact, listingURL)
	case model.MethodContactForm:
		return e.deliverForm(ctx, contact, listingURL)
	default:
		// Guarded by the eligibility query; kept as a typed dead end.
		return Result{Status: model.StatusNeedsManual, Evidence: "channel_not_deliverable"}
	}
}

func (e *Executor) deliverEmail(ctx context.Context, contact model.Contact, listingURL string) Result {
	addr := contact.KnownEmail
	if addr == "" {
		// Legacy rows classified before known_email existed: re-probe the
		// home page for the address classification would have stored.
		addr = e.reprobeMailto(ctx, contact.WebsiteURL)
	}
	if addr == "" {
		return Result{Status: model.StatusNeedsManual, Evidence: "email_address_missing"}
	}

	msg := mail.Message{
		To:      addr,
		Subject: InitialSubject(e.id.Directory),
		Body: InitialBody(TemplateData{
			ListingURL: listingURL,
			SenderName: e.id.SenderName,
			ReplyTo:    e.id.ReplyTo,
			Directory:  e.id.Directory,
		}),
	}

	deliveryURL := "mailto:" + addr
	if err := e.sender.Send(ctx, msg); err != nil {
		// Never silently dropped: surfaced for human follow-up.
		return Result{Status: model.StatusNeedsManual, Evidence: "smtp_send_failed", DeliveryURL: deliveryURL}
	}
	return Result{Status: model.StatusDeliveredEmail, Evidence: "smtp_sent", DeliveryURL: deliveryURL}
}

// deliverForm re-fetches the pages found during classification, home page
// first, each visited at most once, and submits the first form that
// resolves the contact.
func (e *Executor) deliverForm(ctx context.Context, contact model.Contact, listingURL string) Result {
	website := classify.NormalizeWebsite(contact.WebsiteURL)
	f := e.newFetcher()

	home, err := f.Get(ctx, website)
	if err != nil {
		return Result{Status: model.StatusSiteDown, Evidence: "site_unreachable", DeliveryURL: website}
	}
	if home.StatusCode >= 500 {
		return Result{
			Status:      model.StatusSiteDown,
			Evidence:    fmt.Sprintf("http_%d", home.StatusCode),
			DeliveryURL: home.FinalURL,
		}
	}

	homeDoc, err := surface.Parse(home.Body)
	if err != nil {
		return Result{Status: model.StatusNoContactMethod, Evidence: "form_or_email_not_found", DeliveryURL: home.FinalURL}
	}

	body := InitialBody(TemplateData{
		ListingURL: listingURL,
		SenderName: e.id.SenderName,
		ReplyTo:    e.id.ReplyTo,
		Directory:  e.id.Directory,
	})

	pages := append([]string{home.FinalURL}, surface.ContactPages(home.FinalURL, homeDoc)...)
	visited := make(map[string]struct{})

	// A transport failure mid-submit is kept as a fallback outcome; a later
	// form may still resolve the contact cleanly.
	var fallback *Result

	for _, pageURL := range pages {
		if _, dup := visited[pageURL]; dup {
			continue
		}
		visited[pageURL] = struct{}{}

		var doc = homeDoc
		finalURL := home.FinalURL
		if pageURL != home.FinalURL {
			resp, err := f.Get(ctx, pageURL)
			if err != nil || resp.StatusCode >= 400 {
				continue
			}
			doc, err = surface.Parse(resp.Body)
			if err != nil {
				continue
			}
			finalURL = resp.FinalURL
		}

		var resolved *Result
		doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
			r := e.submitForm(ctx, f, finalURL, form, body)
			if r.Status == model.StatusDeliveredForm || r.Status == model.StatusNeedsManual {
				resolved = &r
				return false
			}
			fallback = &r
			return true
		})
		if resolved != nil {
			return *resolved
		}
	}

	if fallback != nil {
		return *fallback
	}
	return Result{Status: model.StatusNoContactMethod, Evidence: "form_or_email_not_found", DeliveryURL: home.FinalURL}
}

// reprobeMailto fetches the home page and returns its first mailto address,
// if any.
func (e *Executor) reprobeMailto(ctx context.Context, website string) string {
	website = classify.NormalizeWebsite(website)
	if website == "" {
		return ""
	}
	f := e.newFetcher()
	page, err := f.Get(ctx, website)
	if err != nil || page.StatusCode >= 500 {
		return ""
	}
	doc, err := surface.Parse(page.Body)
	if err != nil {
		return ""
	}
	if mails := surface.Mailtos(doc); len(mails) > 0 {
		return mails[0]
	}
	return ""
}
