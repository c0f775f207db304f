package model

import "time"

// Channel is the wire channel an attempt was made over.
type Channel string

const (
	ChannelEmail       Channel = "email"
	ChannelContactForm Channel = "contact_form"
	ChannelDM          Channel = "dm"
)

// AttemptStatus records whether a single outbound action went out.
type AttemptStatus string

const (
	AttemptSent   AttemptStatus = "sent"
	AttemptFailed AttemptStatus = "failed"
)

// Template versions, one per outbound message in the sequence.
const (
	TemplateInitial       = "v1_initial"
	TemplateFollowUpDay4  = "v2_followup_day4"
	TemplateFollowUpDay10 = "v3_followup_day10"
)

// Attempt is one immutable log entry for a single delivery action. Attempts
// are append-only: the audit trail for a contact is the ordered sequence of
// its attempts.
type Attempt struct {
	ID              string        `json:"id"`
	ContactID       string        `json:"contact_id"`
	ListingID       string        `json:"listing_id,omitempty"`
	Channel         Channel       `json:"channel"`
	DeliveryURL     string        `json:"delivery_url,omitempty"`
	Evidence        string        `json:"delivery_evidence,omitempty"`
	Status          AttemptStatus `json:"status"`
	TemplateVersion string        `json:"template_version"`
	SentAt          time.Time     `json:"sent_at"`
}

// ChannelForStatus maps a delivery outcome to the channel recorded on its
// attempt row. Unresolved outcomes default to contact_form, matching the
// tracker's historical behavior.
func ChannelForStatus(s Status) Channel {
	switch s {
	case StatusDeliveredEmail:
		return ChannelEmail
	case StatusPlatformOnly, StatusDMSent:
		return ChannelDM
	default:
		return ChannelContactForm
	}
}
