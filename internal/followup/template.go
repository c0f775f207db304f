package followup

import (
	"fmt"
	"strings"
	"text/template"
)

// templateData feeds the follow-up bodies.
type templateData struct {
	ListingURL string
	ViewPhrase string
	SenderName string
	ReplyTo    string
	Directory  string
}

var day4Tmpl = template.Must(template.New("day4").Parse(`Hi,

{{.ViewPhrase}}

Your profile is at:
{{.ListingURL}}

Providers who claim their listing see who's clicking through and can update their rates, photos, and contact info. Takes a few minutes.

Claim it this week and you'll also get 7 days of free featured placement at the top of your city page — no card required.

— {{.SenderName}}
{{.Directory}}
{{.ReplyTo}}
`))

var day10Tmpl = template.Must(template.New("day10").Parse(`Hi,

Quick heads up — your free featured placement offer expires Friday.

Your listing is still live at:
{{.ListingURL}}

If you claim it before the end of the week you'll get 7 days at the top of the city page automatically. After that the offer expires.

Reply if you have questions or want it removed.

— {{.SenderName}}
{{.Directory}}
{{.ReplyTo}}
`))

// day4Body renders the view-count conversion email. The phrasing branches
// on whether the listing saw any traffic.
func day4Body(data templateData, viewCount int) string {
	if viewCount > 0 {
		data.ViewPhrase = fmt.Sprintf("Your listing was viewed %d times this week.", viewCount)
	} else {
		data.ViewPhrase = "Your listing is live and being indexed by search engines."
	}
	var b strings.Builder
	_ = day4Tmpl.Execute(&b, data)
	return b.String()
}

// day4Subject branches the same way as the body.
func day4Subject(viewCount int, directory string) string {
	if viewCount > 0 {
		return fmt.Sprintf("Your listing got %d views this week", viewCount)
	}
	return "Update on your " + directory + " listing"
}

func day10Body(data templateData) string {
	var b strings.Builder
	_ = day10Tmpl.Execute(&b, data)
	return b.String()
}

const day10Subject = "Your featured placement offer expires Friday"
