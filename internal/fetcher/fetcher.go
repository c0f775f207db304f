// Package fetcher issues bounded, header-spoofed page fetches against
// third-party provider sites. One Fetcher is created per contact and
// discarded afterward, so cookies and session state never leak between
// unrelated sites.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// maxBodyBytes caps how much of a response we read. Provider sites are
// small; anything past this is not a contact page worth parsing.
const maxBodyBytes = 2 * 1024 * 1024

// browserHeaders is the fixed header set sent with every request. Several
// provider sites serve an empty shell to anything that does not look like a
// browser.
var browserHeaders = map[string]string{
	"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
}

// Page is the outcome of a fetch that reached the remote server. The status
// code is reported as-is; judging 5xx responses is the caller's concern.
type Page struct {
	StatusCode int
	FinalURL   string
	Body       []byte
}

// Fetcher wraps an http.Client with a per-contact cookie jar and fixed
// timeout. Redirects are followed; FinalURL reflects where we landed.
type Fetcher struct {
	client *http.Client
}

// New creates a Fetcher with the given timeout. Each classification or
// delivery attempt gets its own Fetcher.
func New(timeout time.Duration) *Fetcher {
	jar, _ := cookiejar.New(nil)
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Get fetches a URL. Unreachable hosts, TLS errors and DNS failures all
// surface as a plain error; no fetch ever panics or distinguishes transport
// failure modes beyond "unreachable".
func (f *Fetcher) Get(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create request")
	}
	return f.do(req)
}

// SubmitForm submits form values to action using the given method. GET
// encodes the values into the query string; anything else posts a
// urlencoded body.
func (f *Fetcher) SubmitForm(ctx context.Context, method, action string, values url.Values) (*Page, error) {
	var req *http.Request
	var err error

	if strings.EqualFold(method, http.MethodGet) {
		u, perr := url.Parse(action)
		if perr != nil {
			return nil, eris.Wrap(perr, "fetcher: parse form action")
		}
		q := u.Query()
		for k, vs := range values {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create submit request")
	}
	return f.do(req)
}

func (f *Fetcher) do(req *http.Request) (*Page, error) {
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: read body")
	}

	return &Page{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		Body:       body,
	}, nil
}
