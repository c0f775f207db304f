package deliver

import (
	"strings"
	"text/template"
)

// TemplateData feeds the initial outreach body.
type TemplateData struct {
	ListingURL string
	SenderName string
	ReplyTo    string
	Directory  string
}

var initialTmpl = template.Must(template.New("initial").Parse(`Hi,

We built a local directory for clients looking for exactly what you offer, and we created a profile for you based on your public presence.

It's live here:
{{.ListingURL}}

You can claim it for free and update your photos, rates, availability, and contact links — takes a few minutes. Providers who claim this week also get 7 days of free featured placement at the top of your city page.

If you'd rather we take it down, just reply and we'll remove it same day.

— {{.SenderName}}
{{.Directory}}
{{.ReplyTo}}
`))

// InitialBody renders the first-contact message.
func InitialBody(data TemplateData) string {
	var b strings.Builder
	// The template only references fields that exist; Execute cannot fail.
	_ = initialTmpl.Execute(&b, data)
	return b.String()
}

// InitialSubject is the subject line for the first-contact message.
func InitialSubject(directory string) string {
	return "Your listing on " + directory + " — quick note"
}
