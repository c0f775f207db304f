package model

import "time"

// ContactMethod is the channel classification outcome: how we *could* reach
// a provider. Distinct from Status, which records what actually happened on
// the most recent attempt.
type ContactMethod string

const (
	MethodUnclassified ContactMethod = ""
	MethodEmail        ContactMethod = "email"
	MethodContactForm  ContactMethod = "contact_form"
	MethodDM           ContactMethod = "dm"
	MethodNone         ContactMethod = "none"
)

// Deliverable reports whether the method can be acted on by the delivery
// executor. DM and none terminate at classification.
func (m ContactMethod) Deliverable() bool {
	return m == MethodEmail || m == MethodContactForm
}

// Reason is the semantic cause attached to a classification.
type Reason string

const (
	ReasonNoContactMethod Reason = "no_contact_method"
	ReasonEmailExposed    Reason = "email_exposed"
	ReasonConfirmableForm Reason = "confirmable_form"
	ReasonPlatformOnly    Reason = "platform_only"
)

// Status is the lifecycle state of a contact.
type Status string

const (
	StatusNotContacted    Status = "not_contacted"
	StatusDeliveredEmail  Status = "delivered_email"
	StatusDeliveredForm   Status = "delivered_form"
	StatusPlatformOnly    Status = "platform_only"
	StatusNoContactMethod Status = "no_contact_method"
	StatusSiteDown        Status = "site_down"
	StatusDMSent          Status = "dm_sent"
	StatusNeedsManual     Status = "needs_manual"
)

// Known reports whether s is part of the status taxonomy. Rows loaded from
// external trackers with unknown statuses are normalized to needs_manual.
func (s Status) Known() bool {
	switch s {
	case StatusNotContacted, StatusDeliveredEmail, StatusDeliveredForm,
		StatusPlatformOnly, StatusNoContactMethod, StatusSiteDown,
		StatusDMSent, StatusNeedsManual:
		return true
	}
	return false
}

// Delivered reports whether the status represents a successful first-contact
// delivery, i.e. the contact is a follow-up candidate while unclaimed.
func (s Status) Delivered() bool {
	return s == StatusDeliveredEmail || s == StatusDeliveredForm
}

// Contact is one provider/listing pairing tracked for outreach.
type Contact struct {
	ID          string `json:"id"`
	ListingID   string `json:"listing_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	City        string `json:"city,omitempty"`

	// Reachability inputs. WebsiteURL is unvalidated and may be scheme-less;
	// KnownEmail is filled in by classification when a mailto is discovered.
	WebsiteURL string `json:"website_url,omitempty"`
	KnownEmail string `json:"known_email,omitempty"`

	Method       ContactMethod `json:"contact_method,omitempty"`
	Reason       Reason        `json:"classification_reason,omitempty"`
	Evidence     string        `json:"classification_evidence,omitempty"`
	ClassifiedAt *time.Time    `json:"classified_at,omitempty"`

	Status          Status     `json:"status"`
	Notes           string     `json:"notes,omitempty"`
	FollowUpCount   int        `json:"follow_up_count"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	Claimed         bool       `json:"claimed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
