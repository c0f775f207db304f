package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/providory/outreach/internal/deliver"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/store"
)

// overFetchFactor widens the candidate query past the daily cap: some rows
// fail pre-checks (empty websites, dead listings) without consuming budget.
const overFetchFactor = 3

// DeliverSummary counts one delivery batch by outcome.
type DeliverSummary struct {
	DeliveredEmail  int
	DeliveredForm   int
	NeedsManual     int
	SiteDown        int
	NoContactMethod int
	Skipped         int
}

// Sent is the number of rows that consumed daily budget: deliveries plus
// needs_manual rows, which still cost a real interaction with the target
// site.
func (s DeliverSummary) Sent() int {
	return s.DeliveredEmail + s.DeliveredForm + s.NeedsManual
}

// DeliverRunner performs first-contact delivery for classified rows, capped
// per run to protect sender reputation.
type DeliverRunner struct {
	store      store.Store
	executor   *deliver.Executor
	baseURL    string
	city       string
	dailyLimit int
	throttle   *rate.Limiter
	now        func() time.Time
}

// NewDeliverRunner creates a DeliverRunner. now defaults to time.Now.
func NewDeliverRunner(st store.Store, ex *deliver.Executor, baseURL, city string, dailyLimit int, delay time.Duration, now func() time.Time) *DeliverRunner {
	if now == nil {
		now = time.Now
	}
	return &DeliverRunner{
		store:      st,
		executor:   ex,
		baseURL:    baseURL,
		city:       city,
		dailyLimit: dailyLimit,
		throttle:   newThrottle(delay),
		now:        now,
	}
}

// Run processes one delivery batch. Each row gets a full
// read-decide-write cycle before the next row starts; a crash mid-run loses
// only the in-flight row.
func (r *DeliverRunner) Run(ctx context.Context) (DeliverSummary, error) {
	var sum DeliverSummary

	rows, err := r.store.DeliverableContacts(ctx, store.DeliverFilter{
		City:  r.city,
		Limit: r.dailyLimit * overFetchFactor,
	})
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: query deliverable contacts")
	}
	zap.L().Info("pipeline: delivering", zap.Int("candidates", len(rows)), zap.Int("daily_limit", r.dailyLimit))

	for _, contact := range rows {
		if sum.Sent() >= r.dailyLimit {
			break
		}
		if contact.WebsiteURL == "" {
			sum.Skipped++
			continue
		}

		if err := r.throttle.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "pipeline: throttle")
		}

		listingURL, err := r.listingURL(ctx, contact.ListingID)
		if err != nil {
			return sum, err
		}

		result := r.executor.Deliver(ctx, contact, listingURL)
		now := r.now().UTC()

		update := store.DeliveryUpdate{
			Status:      result.Status,
			Evidence:    result.Evidence,
			ContactedAt: now,
		}
		if err := r.store.UpdateDelivery(ctx, contact.ID, update); err != nil {
			return sum, eris.Wrapf(err, "pipeline: write delivery for %s", contact.ID)
		}

		attemptStatus := model.AttemptFailed
		if result.Status.Delivered() {
			attemptStatus = model.AttemptSent
		}
		attempt := model.Attempt{
			ContactID:       contact.ID,
			ListingID:       contact.ListingID,
			Channel:         model.ChannelForStatus(result.Status),
			DeliveryURL:     result.DeliveryURL,
			Evidence:        result.Evidence,
			Status:          attemptStatus,
			TemplateVersion: model.TemplateInitial,
			SentAt:          now,
		}
		if err := r.store.AppendAttempt(ctx, attempt); err != nil {
			return sum, eris.Wrapf(err, "pipeline: record attempt for %s", contact.ID)
		}

		switch result.Status {
		case model.StatusDeliveredEmail:
			sum.DeliveredEmail++
		case model.StatusDeliveredForm:
			sum.DeliveredForm++
		case model.StatusNeedsManual:
			sum.NeedsManual++
		case model.StatusSiteDown:
			sum.SiteDown++
		default:
			sum.NoContactMethod++
		}

		zap.L().Info("pipeline: processed",
			zap.String("city", contact.City),
			zap.String("contact", contact.DisplayName),
			zap.String("status", string(result.Status)),
			zap.String("evidence", result.Evidence))
	}

	return sum, nil
}

func (r *DeliverRunner) listingURL(ctx context.Context, listingID string) (string, error) {
	if listingID == "" {
		return "", nil
	}
	listing, err := r.store.GetListing(ctx, listingID)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: get listing %s", listingID)
	}
	return model.ListingURL(r.baseURL, listing), nil
}
