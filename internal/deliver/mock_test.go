package deliver

import (
	"context"
	"net/url"

	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/mail"
)

// fakeSender records outbound messages and can be told to fail.
type fakeSender struct {
	sent    []mail.Message
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

// submission is one captured SubmitForm call.
type submission struct {
	method string
	action string
	values url.Values
}

// fakeFormFetcher serves canned pages and records form submissions.
type fakeFormFetcher struct {
	pages      map[string]*fetcher.Page
	getErr     error
	submits    []submission
	submitResp *fetcher.Page
	submitErr  error
}

func (f *fakeFormFetcher) Get(_ context.Context, u string) (*fetcher.Page, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	page, ok := f.pages[u]
	if !ok {
		return &fetcher.Page{StatusCode: 404, FinalURL: u}, nil
	}
	return page, nil
}

func (f *fakeFormFetcher) SubmitForm(_ context.Context, method, action string, values url.Values) (*fetcher.Page, error) {
	f.submits = append(f.submits, submission{method: method, action: action, values: values})
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.submitResp != nil {
		return f.submitResp, nil
	}
	return &fetcher.Page{StatusCode: 200, FinalURL: action, Body: []byte("ok")}, nil
}
