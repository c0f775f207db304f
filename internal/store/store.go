// Package store persists contacts and their attempt log. The classify,
// deliver and follow-up runners are written against the Store interface;
// Postgres, SQLite and CSV-tracker adapters supply it at the boundary.
package store

import (
	"context"
	"time"

	"github.com/providory/outreach/internal/model"
)

// ClassifyFilter selects rows awaiting channel classification.
type ClassifyFilter struct {
	City  string
	Limit int
}

// DeliverFilter selects classified rows awaiting first-contact delivery.
type DeliverFilter struct {
	City  string
	Limit int
}

// FollowUpFilter selects delivered, unclaimed rows whose follow-up stage
// and age make them eligible for the next templated send.
type FollowUpFilter struct {
	FollowUpCount int
	Cutoff        time.Time
	Limit         int
}

// ClassificationUpdate is the write-back of one classifier decision.
type ClassificationUpdate struct {
	Method   model.ContactMethod
	Reason   model.Reason
	Evidence string
	// KnownEmail is stored only when the row has no email yet.
	KnownEmail   string
	ClassifiedAt time.Time
}

// DeliveryUpdate is the write-back of one delivery attempt. It always sets
// follow_up_count to 1: the initial attempt is recorded regardless of
// outcome, and the follow-up scheduler only targets delivered statuses.
type DeliveryUpdate struct {
	Status      model.Status
	Evidence    string
	ContactedAt time.Time
}

// ListingSource resolves the public listing a contact's outreach points at.
type ListingSource interface {
	GetListing(ctx context.Context, listingID string) (*model.Listing, error)
}

// EngagementSource counts view events for the day-4 follow-up.
type EngagementSource interface {
	ViewCount(ctx context.Context, listingID string, since time.Time) (int, error)
}

// Store is the full persistence surface of the outreach pipeline. Write
// errors are the one per-row failure that halts a run; silently corroding
// state is worse than stopping.
type Store interface {
	ListingSource
	EngagementSource

	UnclassifiedContacts(ctx context.Context, filter ClassifyFilter) ([]model.Contact, error)
	DeliverableContacts(ctx context.Context, filter DeliverFilter) ([]model.Contact, error)
	FollowUpCandidates(ctx context.Context, filter FollowUpFilter) ([]model.Contact, error)

	UpdateClassification(ctx context.Context, contactID string, u ClassificationUpdate) error
	UpdateDelivery(ctx context.Context, contactID string, u DeliveryUpdate) error
	// AdvanceFollowUp bumps follow_up_count to newCount and stamps the send
	// time. follow_up_count only ever increases.
	AdvanceFollowUp(ctx context.Context, contactID string, newCount int, contactedAt time.Time) error
	AppendAttempt(ctx context.Context, attempt model.Attempt) error

	StatusCounts(ctx context.Context) (map[model.Status]int, error)

	Migrate(ctx context.Context) error
	Close() error
}
