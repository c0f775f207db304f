package classify

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/model"
)

// stubFetcher serves canned pages keyed by URL and counts every request.
type stubFetcher struct {
	pages    map[string]*fetcher.Page
	fetches  int
	failWith error
}

func (s *stubFetcher) Get(_ context.Context, url string) (*fetcher.Page, error) {
	s.fetches++
	if s.failWith != nil {
		return nil, s.failWith
	}
	page, ok := s.pages[url]
	if !ok {
		return &fetcher.Page{StatusCode: 404, FinalURL: url}, nil
	}
	return page, nil
}

func newClassifier(s *stubFetcher) *Classifier {
	return New(func() PageFetcher { return s })
}

func page(url string, status int, body string) *fetcher.Page {
	return &fetcher.Page{StatusCode: status, FinalURL: url, Body: []byte(body)}
}

func TestNormalizeWebsite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  ", ""},
		{"example.com", "https://example.com"},
		{"http://example.com", "http://example.com"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeWebsite(tt.in), "input %q", tt.in)
	}
}

func TestClassifyMissingWebsite(t *testing.T) {
	s := &stubFetcher{}
	d := newClassifier(s).Classify(context.Background(), "   ")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, model.ReasonNoContactMethod, d.Reason)
	assert.Equal(t, "missing_website", d.Evidence)
	assert.Zero(t, s.fetches)
}

func TestClassifyInvalidURL(t *testing.T) {
	s := &stubFetcher{}
	d := newClassifier(s).Classify(context.Background(), "https://")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, "invalid_url", d.Evidence)
	assert.Zero(t, s.fetches)
}

func TestClassifyPlatformDomainNoFetch(t *testing.T) {
	s := &stubFetcher{}
	cl := newClassifier(s)

	tests := []struct {
		website string
		host    string
	}{
		{"https://onlyfans.com/someone", "onlyfans.com"},
		{"linktr.ee/someone", "linktr.ee"},
		{"t.me/someone", "t.me"},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			d := cl.Classify(context.Background(), tt.website)
			assert.Equal(t, model.MethodDM, d.Method)
			assert.Equal(t, model.ReasonPlatformOnly, d.Reason)
			assert.Equal(t, "platform_domain:"+tt.host, d.Evidence)
		})
	}
	assert.Zero(t, s.fetches, "platform domains must never be fetched")
}

func TestClassifySiteUnreachable(t *testing.T) {
	s := &stubFetcher{failWith: eris.New("dial tcp: no route")}
	d := newClassifier(s).Classify(context.Background(), "https://dead.example.com")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, "site_unreachable", d.Evidence)
	assert.Equal(t, "https://dead.example.com", d.DeliveryURL)
}

func TestClassifyServerError(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 503, "maintenance"),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, "http_503", d.Evidence)
}

func TestClassifyMailtoOnHome(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<a href="mailto:Booking@Example.com">email me</a>
			 <form><textarea name="message"></textarea></form>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "example.com")

	// Email outranks the form on the same page.
	assert.Equal(t, model.MethodEmail, d.Method)
	assert.Equal(t, model.ReasonEmailExposed, d.Reason)
	assert.Equal(t, "mailto_found", d.Evidence)
	assert.Equal(t, "Booking@Example.com", d.Email)
	assert.Equal(t, "mailto:Booking@Example.com", d.DeliveryURL)
	assert.Equal(t, 1, s.fetches)
}

func TestClassifyFormOnHome(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<form action="/send"><textarea name="message"></textarea></form>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	assert.Equal(t, model.MethodContactForm, d.Method)
	assert.Equal(t, model.ReasonConfirmableForm, d.Reason)
	assert.Equal(t, "form_message_field_no_captcha", d.Evidence)
	assert.Equal(t, "https://example.com", d.DeliveryURL)
}

func TestClassifyFormOnContactPage(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<a href="/broken">x</a><a href="/contact">Contact</a>`),
		"https://example.com/contact": page("https://example.com/contact", 200,
			`<form><input type="text" name="inquiry"></form>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	require.Equal(t, model.MethodContactForm, d.Method)
	assert.Equal(t, "https://example.com/contact", d.DeliveryURL)
	assert.Equal(t, 2, s.fetches)
}

func TestClassifyBrokenSubpageSkipped(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<a href="/contact">Contact</a><a href="/booking">Book</a>`),
		"https://example.com/contact": page("https://example.com/contact", 404, "gone"),
		"https://example.com/booking": page("https://example.com/booking", 200,
			`<a href="mailto:hi@example.com">hi</a>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	assert.Equal(t, model.MethodEmail, d.Method)
	assert.Equal(t, "hi@example.com", d.Email)
}

func TestClassifyNothingFound(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<p>Call for availability.</p><a href="/gallery">Gallery</a>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, "form_or_email_not_found", d.Evidence)
	assert.Equal(t, "https://example.com", d.DeliveryURL)
}

func TestClassifyCaptchaFormIsNotConfirmable(t *testing.T) {
	s := &stubFetcher{pages: map[string]*fetcher.Page{
		"https://example.com": page("https://example.com", 200,
			`<form><div class="g-recaptcha"></div><textarea name="message"></textarea></form>`),
	}}
	d := newClassifier(s).Classify(context.Background(), "https://example.com")

	assert.Equal(t, model.MethodNone, d.Method)
	assert.Equal(t, "form_or_email_not_found", d.Evidence)
}
