package deliver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/surface"
)

// submitForm fills and submits one discovered form and interprets the
// response.
func (e *Executor) submitForm(ctx context.Context, f FormFetcher, pageURL string, form *goquery.Selection, body string) Result {
	markup, err := goquery.OuterHtml(form)
	if err == nil && surface.ContainsCaptcha(markup) {
		// Automated CAPTCHA submission is refused outright: a bypassed
		// CAPTCHA would be a false delivered signal.
		return Result{Status: model.StatusNeedsManual, Evidence: "captcha_present", DeliveryURL: pageURL}
	}

	method := strings.ToLower(form.AttrOr("method", "post"))
	action := form.AttrOr("action", "")
	actionURL := resolveAction(pageURL, action)

	messageField := surface.PickField(form, surface.MessageFieldPatterns, true)
	if messageField == nil || messageField.AttrOr("name", "") == "" {
		return Result{Status: model.StatusNeedsManual, Evidence: "form_no_message_field", DeliveryURL: pageURL}
	}

	values := collectDefaults(form)
	values.Set(messageField.AttrOr("name", ""), body)

	// Name/email/subject are filled opportunistically when present.
	if field := surface.PickField(form, surface.NameFieldPatterns, false); field != nil {
		if n := field.AttrOr("name", ""); n != "" {
			values.Set(n, e.id.SenderName)
		}
	}
	if field := surface.PickField(form, surface.EmailFieldPatterns, false); field != nil {
		if n := field.AttrOr("name", ""); n != "" {
			values.Set(n, e.id.ReplyTo)
		}
	}
	if field := surface.PickField(form, surface.SubjectFieldPatterns, false); field != nil {
		if n := field.AttrOr("name", ""); n != "" {
			values.Set(n, InitialSubject(e.id.Directory))
		}
	}

	resp, err := f.SubmitForm(ctx, method, actionURL, values)
	if err != nil {
		return Result{Status: model.StatusSiteDown, Evidence: "form_submit_request_failed", DeliveryURL: actionURL}
	}

	if surface.HasSuccessHint(string(resp.Body)) {
		return Result{Status: model.StatusDeliveredForm, Evidence: "success_hint", DeliveryURL: resp.FinalURL}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Result{
			Status:      model.StatusNeedsManual,
			Evidence:    fmt.Sprintf("http_%d_no_success_hint", resp.StatusCode),
			DeliveryURL: resp.FinalURL,
		}
	}
	return Result{
		Status:      model.StatusNeedsManual,
		Evidence:    fmt.Sprintf("http_%d", resp.StatusCode),
		DeliveryURL: resp.FinalURL,
	}
}

// collectDefaults echoes back every named field with its existing default
// value, so hidden tokens and pre-selected options survive submission.
func collectDefaults(form *goquery.Selection) url.Values {
	values := url.Values{}

	form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			values.Set(name, field.Text())
		case "select":
			if opt := field.Find("option[selected]").First(); opt.Length() > 0 {
				values.Set(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			} else {
				values.Set(name, "")
			}
		default:
			typ := strings.ToLower(field.AttrOr("type", "text"))
			switch typ {
			case "submit", "button", "file":
				// never echoed
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); checked {
					values.Set(name, field.AttrOr("value", "on"))
				}
			default:
				values.Set(name, field.AttrOr("value", ""))
			}
		}
	})

	return values
}

// resolveAction resolves a form action against the page it was found on. An
// empty or unparseable action submits back to the page itself.
func resolveAction(pageURL, action string) string {
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return pageURL
	}
	ref, err := url.Parse(action)
	if err != nil {
		return pageURL
	}
	return base.ResolveReference(ref).String()
}
