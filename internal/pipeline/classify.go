// Package pipeline drives the per-run batches: classification sweeps and
// first-contact delivery. Rows are processed strictly one at a time with an
// enforced delay in between; politeness toward third-party sites matters
// more than throughput here.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/providory/outreach/internal/classify"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/store"
)

// newThrottle builds the inter-row limiter. Burst 1 means the first row is
// immediate and every later row waits out the delay.
func newThrottle(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// ClassifySummary counts one classification sweep by resolved method.
type ClassifySummary struct {
	Email int
	Form  int
	DM    int
	None  int
}

// Total returns the number of rows classified.
func (s ClassifySummary) Total() int {
	return s.Email + s.Form + s.DM + s.None
}

// ClassifyRunner classifies uncontacted rows and writes the channel
// decision back to the store.
type ClassifyRunner struct {
	store      store.Store
	classifier *classify.Classifier
	city       string
	limit      int
	throttle   *rate.Limiter
	now        func() time.Time
}

// NewClassifyRunner creates a ClassifyRunner. now defaults to time.Now.
func NewClassifyRunner(st store.Store, cl *classify.Classifier, city string, limit int, delay time.Duration, now func() time.Time) *ClassifyRunner {
	if now == nil {
		now = time.Now
	}
	return &ClassifyRunner{
		store:      st,
		classifier: cl,
		city:       city,
		limit:      limit,
		throttle:   newThrottle(delay),
		now:        now,
	}
}

// Run processes one classification batch. Classification itself never
// fails; only store writes halt the run.
func (r *ClassifyRunner) Run(ctx context.Context) (ClassifySummary, error) {
	var sum ClassifySummary

	rows, err := r.store.UnclassifiedContacts(ctx, store.ClassifyFilter{City: r.city, Limit: r.limit})
	if err != nil {
		return sum, eris.Wrap(err, "pipeline: query unclassified contacts")
	}
	zap.L().Info("pipeline: classifying contacts", zap.Int("count", len(rows)))

	for _, contact := range rows {
		if err := r.throttle.Wait(ctx); err != nil {
			return sum, eris.Wrap(err, "pipeline: throttle")
		}

		decision := r.classifier.Classify(ctx, contact.WebsiteURL)

		update := store.ClassificationUpdate{
			Method:       decision.Method,
			Reason:       decision.Reason,
			Evidence:     decision.Evidence,
			KnownEmail:   decision.Email,
			ClassifiedAt: r.now().UTC(),
		}
		if err := r.store.UpdateClassification(ctx, contact.ID, update); err != nil {
			return sum, eris.Wrapf(err, "pipeline: write classification for %s", contact.ID)
		}

		switch decision.Method {
		case model.MethodEmail:
			sum.Email++
		case model.MethodContactForm:
			sum.Form++
		case model.MethodDM:
			sum.DM++
		default:
			sum.None++
		}

		zap.L().Info("pipeline: classified",
			zap.String("city", contact.City),
			zap.String("contact", contact.DisplayName),
			zap.String("method", string(decision.Method)),
			zap.String("reason", string(decision.Reason)))
	}

	return sum, nil
}
