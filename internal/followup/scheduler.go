// Package followup runs the timed re-contact sequence for delivered,
// unclaimed contacts: a day-4 email citing real view counts and a day-10
// expiry reminder.
package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/providory/outreach/internal/mail"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/store"
)

// Identity is the sender identity stamped into follow-up messages.
type Identity struct {
	SenderName string
	ReplyTo    string
	Directory  string
	BaseURL    string
}

// Summary reports one scheduler run.
type Summary struct {
	Day4Sent  int
	Day10Sent int
	Skipped   int
}

// Scheduler selects the two disjoint eligibility sets and sends their
// templated messages. A failed send leaves the row untouched, so it stays
// eligible on the next run; no retry state is kept.
type Scheduler struct {
	store  store.Store
	sender mail.Sender
	id     Identity
	limit  int
	now    func() time.Time
}

// New creates a Scheduler. now is injectable for tests and defaults to
// time.Now when nil.
func New(st store.Store, sender mail.Sender, id Identity, limit int, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{store: st, sender: sender, id: id, limit: limit, now: now}
}

// Run executes one day-4 plus day-10 sweep. The limit caps total sends
// across both stages. Store write errors halt the run; send errors only
// skip the row.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	now := s.now().UTC()

	day4, err := s.store.FollowUpCandidates(ctx, store.FollowUpFilter{
		FollowUpCount: 1,
		Cutoff:        now.AddDate(0, 0, -4),
		Limit:         s.limit,
	})
	if err != nil {
		return sum, eris.Wrap(err, "followup: query day-4 candidates")
	}

	for _, contact := range day4 {
		if sum.Day4Sent+sum.Day10Sent >= s.limit {
			break
		}
		sent, err := s.sendDay4(ctx, contact, now)
		if err != nil {
			return sum, err
		}
		if sent {
			sum.Day4Sent++
		} else {
			sum.Skipped++
		}
	}

	day10, err := s.store.FollowUpCandidates(ctx, store.FollowUpFilter{
		FollowUpCount: 2,
		Cutoff:        now.AddDate(0, 0, -10),
		Limit:         s.limit,
	})
	if err != nil {
		return sum, eris.Wrap(err, "followup: query day-10 candidates")
	}

	for _, contact := range day10 {
		if sum.Day4Sent+sum.Day10Sent >= s.limit {
			break
		}
		sent, err := s.sendDay10(ctx, contact, now)
		if err != nil {
			return sum, err
		}
		if sent {
			sum.Day10Sent++
		} else {
			sum.Skipped++
		}
	}

	return sum, nil
}

func (s *Scheduler) sendDay4(ctx context.Context, contact model.Contact, now time.Time) (bool, error) {
	if contact.KnownEmail == "" {
		return false, nil
	}

	listingURL, err := s.listingURL(ctx, contact.ListingID)
	if err != nil {
		return false, err
	}

	viewCount := 0
	if contact.ListingID != "" {
		viewCount, err = s.store.ViewCount(ctx, contact.ListingID, now.AddDate(0, 0, -7))
		if err != nil {
			return false, eris.Wrapf(err, "followup: view count for %s", contact.ListingID)
		}
	}

	data := templateData{
		ListingURL: listingURL,
		SenderName: s.id.SenderName,
		ReplyTo:    s.id.ReplyTo,
		Directory:  s.id.Directory,
	}
	msg := mail.Message{
		To:      contact.KnownEmail,
		Subject: day4Subject(viewCount, s.id.Directory),
		Body:    day4Body(data, viewCount),
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		// Row stays eligible; next run retries by construction.
		zap.L().Warn("followup: day-4 send failed",
			zap.String("contact_id", contact.ID), zap.Error(err))
		return false, nil
	}

	if err := s.store.AdvanceFollowUp(ctx, contact.ID, 2, now); err != nil {
		return false, eris.Wrapf(err, "followup: advance %s", contact.ID)
	}
	attempt := model.Attempt{
		ContactID:       contact.ID,
		ListingID:       contact.ListingID,
		Channel:         model.ChannelEmail,
		DeliveryURL:     "mailto:" + contact.KnownEmail,
		Evidence:        fmt.Sprintf("day4_views_%d", viewCount),
		Status:          model.AttemptSent,
		TemplateVersion: model.TemplateFollowUpDay4,
		SentAt:          now,
	}
	if err := s.store.AppendAttempt(ctx, attempt); err != nil {
		return false, eris.Wrapf(err, "followup: record attempt for %s", contact.ID)
	}

	zap.L().Info("followup: day-4 sent",
		zap.String("contact_id", contact.ID),
		zap.String("to", contact.KnownEmail),
		zap.Int("views", viewCount))
	return true, nil
}

func (s *Scheduler) sendDay10(ctx context.Context, contact model.Contact, now time.Time) (bool, error) {
	if contact.KnownEmail == "" {
		return false, nil
	}

	listingURL, err := s.listingURL(ctx, contact.ListingID)
	if err != nil {
		return false, err
	}

	msg := mail.Message{
		To:      contact.KnownEmail,
		Subject: day10Subject,
		Body: day10Body(templateData{
			ListingURL: listingURL,
			SenderName: s.id.SenderName,
			ReplyTo:    s.id.ReplyTo,
			Directory:  s.id.Directory,
		}),
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		zap.L().Warn("followup: day-10 send failed",
			zap.String("contact_id", contact.ID), zap.Error(err))
		return false, nil
	}

	if err := s.store.AdvanceFollowUp(ctx, contact.ID, 3, now); err != nil {
		return false, eris.Wrapf(err, "followup: advance %s", contact.ID)
	}
	attempt := model.Attempt{
		ContactID:       contact.ID,
		ListingID:       contact.ListingID,
		Channel:         model.ChannelEmail,
		DeliveryURL:     "mailto:" + contact.KnownEmail,
		Evidence:        "day10_expiry_reminder",
		Status:          model.AttemptSent,
		TemplateVersion: model.TemplateFollowUpDay10,
		SentAt:          now,
	}
	if err := s.store.AppendAttempt(ctx, attempt); err != nil {
		return false, eris.Wrapf(err, "followup: record attempt for %s", contact.ID)
	}

	zap.L().Info("followup: day-10 sent",
		zap.String("contact_id", contact.ID),
		zap.String("to", contact.KnownEmail))
	return true, nil
}

func (s *Scheduler) listingURL(ctx context.Context, listingID string) (string, error) {
	if listingID == "" {
		return "", nil
	}
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return "", eris.Wrapf(err, "followup: get listing %s", listingID)
	}
	return model.ListingURL(s.id.BaseURL, listing), nil
}
