package store

import (
	"context"
	"encoding/csv"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/providory/outreach/internal/model"
)

// trackerRow is one line of the flat-file tracker. Column names are the
// tracker's established vocabulary; response_status is the contact status.
type trackerRow struct {
	ID                     string `csv:"id"`
	ListingID              string `csv:"listing_id"`
	DisplayName            string `csv:"display_name"`
	City                   string `csv:"city"`
	WebsiteURL             string `csv:"website_url"`
	KnownEmail             string `csv:"known_email"`
	ContactMethod          string `csv:"contact_method"`
	ClassificationReason   string `csv:"classification_reason"`
	ClassificationEvidence string `csv:"classification_evidence"`
	ClassifiedAt           string `csv:"classified_at"`
	ResponseStatus         string `csv:"response_status"`
	ContactChannel         string `csv:"contact_channel"`
	ContactedAt            string `csv:"contacted_at"`
	FollowUpCount          int    `csv:"follow_up_count"`
	Claimed                string `csv:"claimed"`
	ListingURL             string `csv:"listing_url"`
	TrackedClicks7d        int    `csv:"tracked_clicks_7d"`
	Notes                  string `csv:"notes"`
	DeliveryEvidence       string `csv:"delivery_evidence"`
	DeliveryURL            string `csv:"delivery_url"`
}

// attemptRow is one line of the sibling attempts log.
type attemptRow struct {
	ID              string `csv:"id"`
	ContactID       string `csv:"contact_id"`
	ListingID       string `csv:"listing_id"`
	Channel         string `csv:"channel"`
	DeliveryURL     string `csv:"delivery_url"`
	Evidence        string `csv:"delivery_evidence"`
	Status          string `csv:"status"`
	TemplateVersion string `csv:"template_version"`
	SentAt          string `csv:"sent_at"`
}

// CSVStore implements Store over a flat-file tracker. All rows are held in
// memory; every write persists the whole file, so a crash loses at most the
// in-flight row. Attempts append to a sibling <tracker>.attempts.csv.
type CSVStore struct {
	path string
	rows []trackerRow
}

// NewCSV loads a tracker file and normalizes its lifecycle columns: unset
// statuses become not_contacted, unknown ones needs_manual.
func NewCSV(path string) (*CSVStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: read tracker %s", path)
	}

	var rows []trackerRow
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "csv: parse tracker %s", path)
	}

	for i := range rows {
		status := model.Status(rows[i].ResponseStatus)
		switch {
		case rows[i].ResponseStatus == "":
			rows[i].ResponseStatus = string(model.StatusNotContacted)
		case !status.Known():
			rows[i].ResponseStatus = string(model.StatusNeedsManual)
		}
		if rows[i].Claimed == "" {
			rows[i].Claimed = "no"
		}
	}

	return &CSVStore{path: path, rows: rows}, nil
}

func (s *CSVStore) Migrate(_ context.Context) error {
	// The tracker file is its own schema.
	return nil
}

func (s *CSVStore) Close() error {
	return s.save()
}

func (s *CSVStore) UnclassifiedContacts(_ context.Context, filter ClassifyFilter) ([]model.Contact, error) {
	var out []model.Contact
	for i := range s.rows {
		r := &s.rows[i]
		if r.ResponseStatus != string(model.StatusNotContacted) || r.ContactMethod != "" {
			continue
		}
		if filter.City != "" && !strings.EqualFold(r.City, filter.City) {
			continue
		}
		out = append(out, rowToContact(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *CSVStore) DeliverableContacts(_ context.Context, filter DeliverFilter) ([]model.Contact, error) {
	var out []model.Contact
	for i := range s.rows {
		r := &s.rows[i]
		if r.ResponseStatus != string(model.StatusNotContacted) {
			continue
		}
		if !model.ContactMethod(r.ContactMethod).Deliverable() {
			continue
		}
		if filter.City != "" && !strings.EqualFold(r.City, filter.City) {
			continue
		}
		out = append(out, rowToContact(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *CSVStore) FollowUpCandidates(_ context.Context, filter FollowUpFilter) ([]model.Contact, error) {
	var out []model.Contact
	for i := range s.rows {
		r := &s.rows[i]
		if !model.Status(r.ResponseStatus).Delivered() || r.Claimed == "yes" {
			continue
		}
		if r.FollowUpCount != filter.FollowUpCount {
			continue
		}
		contacted := parseTrackerTime(r.ContactedAt)
		if contacted.IsZero() || contacted.After(filter.Cutoff) {
			continue
		}
		out = append(out, rowToContact(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *CSVStore) UpdateClassification(_ context.Context, contactID string, u ClassificationUpdate) error {
	r := s.find(contactID)
	if r == nil {
		return eris.Errorf("csv: contact %s not found", contactID)
	}
	r.ContactMethod = string(u.Method)
	r.ClassificationReason = string(u.Reason)
	r.ClassificationEvidence = u.Evidence
	r.ClassifiedAt = u.ClassifiedAt.UTC().Format(time.RFC3339)
	if u.KnownEmail != "" && r.KnownEmail == "" {
		r.KnownEmail = u.KnownEmail
	}
	return s.save()
}

func (s *CSVStore) UpdateDelivery(_ context.Context, contactID string, u DeliveryUpdate) error {
	r := s.find(contactID)
	if r == nil {
		return eris.Errorf("csv: contact %s not found", contactID)
	}
	r.ResponseStatus = string(u.Status)
	r.ContactChannel = string(model.ChannelForStatus(u.Status))
	r.Notes = u.Evidence
	r.ContactedAt = u.ContactedAt.UTC().Format(time.RFC3339)
	r.FollowUpCount = 1
	return s.save()
}

func (s *CSVStore) AdvanceFollowUp(_ context.Context, contactID string, newCount int, contactedAt time.Time) error {
	r := s.find(contactID)
	if r == nil {
		return eris.Errorf("csv: contact %s not found", contactID)
	}
	if r.FollowUpCount >= newCount {
		return eris.Errorf("csv: contact %s already past follow-up %d", contactID, newCount)
	}
	r.FollowUpCount = newCount
	r.ContactedAt = contactedAt.UTC().Format(time.RFC3339)
	return s.save()
}

func (s *CSVStore) AppendAttempt(_ context.Context, attempt model.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	row := attemptRow{
		ID:              attempt.ID,
		ContactID:       attempt.ContactID,
		ListingID:       attempt.ListingID,
		Channel:         string(attempt.Channel),
		DeliveryURL:     attempt.DeliveryURL,
		Evidence:        attempt.Evidence,
		Status:          string(attempt.Status),
		TemplateVersion: attempt.TemplateVersion,
		SentAt:          attempt.SentAt.UTC().Format(time.RFC3339),
	}

	path := s.attemptsPath()
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "csv: open attempts log %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	enc.AutoHeader = writeHeader
	if err := enc.Encode(row); err != nil {
		return eris.Wrap(err, "csv: append attempt")
	}
	w.Flush()
	return eris.Wrap(w.Error(), "csv: flush attempts log")
}

func (s *CSVStore) StatusCounts(_ context.Context) (map[model.Status]int, error) {
	counts := make(map[model.Status]int)
	for i := range s.rows {
		counts[model.Status(s.rows[i].ResponseStatus)]++
	}
	return counts, nil
}

// GetListing resolves a listing through the tracker's listing_url column.
func (s *CSVStore) GetListing(_ context.Context, listingID string) (*model.Listing, error) {
	for i := range s.rows {
		if s.rows[i].ListingID == listingID {
			return &model.Listing{ID: listingID, URL: s.rows[i].ListingURL}, nil
		}
	}
	return nil, nil
}

// ViewCount reports the tracker's tracked_clicks_7d column; the flat-file
// variant has no event log to count from.
func (s *CSVStore) ViewCount(_ context.Context, listingID string, _ time.Time) (int, error) {
	for i := range s.rows {
		if s.rows[i].ListingID == listingID {
			return s.rows[i].TrackedClicks7d, nil
		}
	}
	return 0, nil
}

func (s *CSVStore) find(contactID string) *trackerRow {
	for i := range s.rows {
		if s.rows[i].ID == contactID {
			return &s.rows[i]
		}
	}
	return nil
}

func (s *CSVStore) save() error {
	data, err := csvutil.Marshal(s.rows)
	if err != nil {
		return eris.Wrap(err, "csv: marshal tracker")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return eris.Wrapf(err, "csv: write tracker %s", s.path)
	}
	return nil
}

func (s *CSVStore) attemptsPath() string {
	return strings.TrimSuffix(s.path, ".csv") + ".attempts.csv"
}

func rowToContact(r *trackerRow) model.Contact {
	c := model.Contact{
		ID:            r.ID,
		ListingID:     r.ListingID,
		DisplayName:   r.DisplayName,
		City:          r.City,
		WebsiteURL:    r.WebsiteURL,
		KnownEmail:    r.KnownEmail,
		Method:        model.ContactMethod(r.ContactMethod),
		Reason:        model.Reason(r.ClassificationReason),
		Evidence:      r.ClassificationEvidence,
		Status:        model.Status(r.ResponseStatus),
		Notes:         r.Notes,
		FollowUpCount: r.FollowUpCount,
		Claimed:       r.Claimed == "yes",
	}
	if t := parseTrackerTime(r.ClassifiedAt); !t.IsZero() {
		c.ClassifiedAt = &t
	}
	if t := parseTrackerTime(r.ContactedAt); !t.IsZero() {
		c.LastContactedAt = &t
	}
	return c
}

func parseTrackerTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
