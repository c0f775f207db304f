package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providory/outreach/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var pgContactColumnNames = []string{
	"id", "listing_id", "display_name", "city",
	"website_url", "known_email",
	"contact_method", "classification_reason", "classification_evidence",
	"classified_at", "status", "notes", "follow_up_count", "last_contacted_at", "claimed",
	"created_at", "updated_at",
}

func TestPostgresStore_UnclassifiedContacts_LimitPlaceholder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`contact_method, ''\) = '' ORDER BY created_at LIMIT \$2`).
		WithArgs("not_contacted", 5).
		WillReturnRows(pgxmock.NewRows(pgContactColumnNames))

	contacts, err := s.UnclassifiedContacts(context.Background(), ClassifyFilter{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, contacts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UnclassifiedContacts_CityShiftsLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// With a city filter the limit moves to the third placeholder.
	mock.ExpectQuery(`AND city = \$2 ORDER BY created_at LIMIT \$3`).
		WithArgs("not_contacted", "Portland", 5).
		WillReturnRows(pgxmock.NewRows(pgContactColumnNames))

	_, err := s.UnclassifiedContacts(context.Background(), ClassifyFilter{City: "Portland", Limit: 5})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeliverableContacts_MethodArray(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`contact_method = ANY\(\$2\) AND city = \$3 ORDER BY created_at LIMIT \$4`).
		WithArgs("not_contacted", []string{"email", "contact_form"}, "Portland", 3).
		WillReturnRows(pgxmock.NewRows(pgContactColumnNames))

	_, err := s.DeliverableContacts(context.Background(), DeliverFilter{City: "Portland", Limit: 3})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FollowUpCandidates_ScansRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	classified := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	contacted := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(pgContactColumnNames).AddRow(
		"c1", "L1", "Acme Massage", "Portland",
		"https://acme.example", "owner@acme.example",
		"email", "email_exposed", "mailto:owner@acme.example",
		&classified, model.StatusDeliveredEmail, "", 1, &contacted, false,
		created, created,
	)
	mock.ExpectQuery(`status = ANY\(\$1\) AND claimed = FALSE AND follow_up_count = \$2 AND last_contacted_at <= \$3`).
		WithArgs([]string{"delivered_email", "delivered_form"}, 1, cutoff).
		WillReturnRows(rows)

	contacts, err := s.FollowUpCandidates(context.Background(), FollowUpFilter{FollowUpCount: 1, Cutoff: cutoff})
	require.NoError(t, err)
	require.Len(t, contacts, 1)

	c := contacts[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "L1", c.ListingID)
	assert.Equal(t, model.MethodEmail, c.Method)
	assert.Equal(t, model.ReasonEmailExposed, c.Reason)
	assert.Equal(t, model.StatusDeliveredEmail, c.Status)
	assert.Equal(t, 1, c.FollowUpCount)
	require.NotNil(t, c.LastContactedAt)
	assert.Equal(t, contacted, *c.LastContactedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FollowUpCandidates_LimitPlaceholder(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cutoff := time.Date(2026, 8, 22, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`ORDER BY last_contacted_at LIMIT \$4`).
		WithArgs([]string{"delivered_email", "delivered_form"}, 2, cutoff, 10).
		WillReturnRows(pgxmock.NewRows(pgContactColumnNames))

	_, err := s.FollowUpCandidates(context.Background(), FollowUpFilter{FollowUpCount: 2, Cutoff: cutoff, Limit: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateClassification(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	classified := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update_classification`).
		WithArgs("email", "email_exposed", "mailto:owner@acme.example",
			classified, "owner@acme.example", pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateClassification(context.Background(), "c1", ClassificationUpdate{
		Method:       model.MethodEmail,
		Reason:       model.ReasonEmailExposed,
		Evidence:     "mailto:owner@acme.example",
		KnownEmail:   "owner@acme.example",
		ClassifiedAt: classified,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateClassification_EmptyFieldsBecomeNull(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	classified := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update_classification`).
		WithArgs("none", "no_contact_method", nil,
			classified, "", pgxmock.AnyArg(), "c2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateClassification(context.Background(), "c2", ClassificationUpdate{
		Method:       model.MethodNone,
		Reason:       model.ReasonNoContactMethod,
		ClassifiedAt: classified,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateClassification_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_classification`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateClassification(context.Background(), "missing", ClassificationUpdate{
		Method:       model.MethodEmail,
		Reason:       model.ReasonEmailExposed,
		ClassifiedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDelivery(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	contacted := time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC)
	mock.ExpectExec(`update_delivery`).
		WithArgs("delivered_email", "smtp_sent", contacted, pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateDelivery(context.Background(), "c1", DeliveryUpdate{
		Status:      model.StatusDeliveredEmail,
		Evidence:    "smtp_sent",
		ContactedAt: contacted,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateDelivery_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`update_delivery`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateDelivery(context.Background(), "missing", DeliveryUpdate{
		Status:      model.StatusSiteDown,
		Evidence:    "unreachable",
		ContactedAt: time.Now(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AdvanceFollowUp(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sent := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`advance_followup`).
		WithArgs(2, sent, pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.AdvanceFollowUp(context.Background(), "c1", 2, sent)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AdvanceFollowUp_AlreadyPast(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// The guard in the statement refuses to move follow_up_count backwards,
	// which surfaces as zero rows affected.
	mock.ExpectExec(`advance_followup`).
		WithArgs(2, pgxmock.AnyArg(), pgxmock.AnyArg(), "c1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.AdvanceFollowUp(context.Background(), "c1", 2, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already past")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAttempt_GeneratesID(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sent := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	mock.ExpectExec(`insert_attempt`).
		WithArgs(pgxmock.AnyArg(), "c1", "L1", "email",
			"", "smtp_sent", "sent", "v1_initial", sent).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAttempt(context.Background(), model.Attempt{
		ContactID:       "c1",
		ListingID:       "L1",
		Channel:         model.ChannelEmail,
		Evidence:        "smtp_sent",
		Status:          model.AttemptSent,
		TemplateVersion: model.TemplateInitial,
		SentAt:          sent,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendAttempt_EmptyListingBecomesNull(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	sent := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)
	mock.ExpectExec(`insert_attempt`).
		WithArgs("a1", "c1", nil, "contact_form",
			"https://acme.example/contact", "success_hint", "sent", "v1_initial", sent).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.AppendAttempt(context.Background(), model.Attempt{
		ID:              "a1",
		ContactID:       "c1",
		Channel:         model.ChannelContactForm,
		DeliveryURL:     "https://acme.example/contact",
		Evidence:        "success_hint",
		Status:          model.AttemptSent,
		TemplateVersion: model.TemplateInitial,
		SentAt:          sent,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StatusCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"status", "count"}).
		AddRow("not_contacted", 3).
		AddRow("delivered_email", 2)
	mock.ExpectQuery(`GROUP BY status`).WillReturnRows(rows)

	counts, err := s.StatusCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[model.Status]int{
		model.StatusNotContacted:   3,
		model.StatusDeliveredEmail: 2,
	}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetListing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"id", "slug", "city"}).
		AddRow("L1", "acme-massage", "Portland")
	mock.ExpectQuery(`get_listing`).WithArgs("L1").WillReturnRows(rows)

	l, err := s.GetListing(context.Background(), "L1")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "acme-massage", l.Slug)
	assert.Equal(t, "Portland", l.City)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetListing_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`get_listing`).
		WithArgs("unknown").
		WillReturnError(pgx.ErrNoRows)

	l, err := s.GetListing(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ViewCount(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	since := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"count"}).AddRow(12)
	mock.ExpectQuery(`view_count`).WithArgs("L1", since).WillReturnRows(rows)

	n, err := s.ViewCount(context.Background(), "L1", since)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
