package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/providory/outreach/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// single-operator deployments and the test suite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS outreach_contacts (
	id                      TEXT PRIMARY KEY,
	listing_id              TEXT,
	display_name            TEXT,
	city                    TEXT,
	website_url             TEXT,
	known_email             TEXT,
	contact_method          TEXT,
	classification_reason   TEXT,
	classification_evidence TEXT,
	classified_at           DATETIME,
	status                  TEXT NOT NULL DEFAULT 'not_contacted',
	notes                   TEXT,
	follow_up_count         INTEGER NOT NULL DEFAULT 0,
	last_contacted_at       DATETIME,
	claimed                 INTEGER NOT NULL DEFAULT 0,
	created_at              DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at              DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS outreach_attempts (
	id                TEXT PRIMARY KEY,
	contact_id        TEXT NOT NULL REFERENCES outreach_contacts(id),
	listing_id        TEXT,
	channel           TEXT,
	delivery_url      TEXT,
	delivery_evidence TEXT,
	status            TEXT,
	template_version  TEXT,
	sent_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	id   TEXT PRIMARY KEY,
	slug TEXT,
	city TEXT
);

CREATE TABLE IF NOT EXISTS lead_events (
	id         TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_contacts_status ON outreach_contacts(status);
CREATE INDEX IF NOT EXISTS idx_contacts_city ON outreach_contacts(city);
CREATE INDEX IF NOT EXISTS idx_attempts_contact_id ON outreach_attempts(contact_id);
CREATE INDEX IF NOT EXISTS idx_lead_events_listing ON lead_events(listing_id, event_type, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteContactColumns = `id, listing_id, display_name, city, website_url, known_email,
	contact_method, classification_reason, classification_evidence, classified_at,
	status, notes, follow_up_count, last_contacted_at, claimed, created_at, updated_at`

func (s *SQLiteStore) UnclassifiedContacts(ctx context.Context, filter ClassifyFilter) ([]model.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM outreach_contacts
		WHERE status = ? AND (contact_method IS NULL OR contact_method = '')`
	args := []any{string(model.StatusNotContacted)}

	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *SQLiteStore) DeliverableContacts(ctx context.Context, filter DeliverFilter) ([]model.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM outreach_contacts
		WHERE status = ? AND contact_method IN (?, ?)`
	args := []any{
		string(model.StatusNotContacted),
		string(model.MethodEmail),
		string(model.MethodContactForm),
	}

	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *SQLiteStore) FollowUpCandidates(ctx context.Context, filter FollowUpFilter) ([]model.Contact, error) {
	query := `SELECT ` + sqliteContactColumns + ` FROM outreach_contacts
		WHERE status IN (?, ?) AND claimed = 0 AND follow_up_count = ? AND last_contacted_at <= ?`
	args := []any{
		string(model.StatusDeliveredEmail),
		string(model.StatusDeliveredForm),
		filter.FollowUpCount,
		filter.Cutoff.UTC(),
	}
	query += ` ORDER BY last_contacted_at`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *SQLiteStore) UpdateClassification(ctx context.Context, contactID string, u ClassificationUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outreach_contacts SET
			contact_method = ?,
			classification_reason = ?,
			classification_evidence = ?,
			classified_at = ?,
			known_email = CASE WHEN (known_email IS NULL OR known_email = '') AND ? != '' THEN ? ELSE known_email END,
			updated_at = ?
		WHERE id = ?`,
		string(u.Method), string(u.Reason), u.Evidence, u.ClassifiedAt.UTC(),
		u.KnownEmail, u.KnownEmail, time.Now().UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update classification %s", contactID)
	}
	return checkRowsAffected(res, "contact", contactID)
}

func (s *SQLiteStore) UpdateDelivery(ctx context.Context, contactID string, u DeliveryUpdate) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outreach_contacts SET
			status = ?, notes = ?, last_contacted_at = ?, follow_up_count = 1, updated_at = ?
		WHERE id = ?`,
		string(u.Status), u.Evidence, u.ContactedAt.UTC(), time.Now().UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update delivery %s", contactID)
	}
	return checkRowsAffected(res, "contact", contactID)
}

func (s *SQLiteStore) AdvanceFollowUp(ctx context.Context, contactID string, newCount int, contactedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outreach_contacts SET
			follow_up_count = ?, last_contacted_at = ?, updated_at = ?
		WHERE id = ? AND follow_up_count < ?`,
		newCount, contactedAt.UTC(), time.Now().UTC(), contactID, newCount,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: advance follow-up %s", contactID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for contact %s", contactID)
	}
	if n == 0 {
		return eris.Errorf("sqlite: contact %s missing or already past follow-up %d", contactID, newCount)
	}
	return nil
}

func (s *SQLiteStore) AppendAttempt(ctx context.Context, attempt model.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach_attempts
			(id, contact_id, listing_id, channel, delivery_url, delivery_evidence, status, template_version, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.ContactID, attempt.ListingID, string(attempt.Channel),
		attempt.DeliveryURL, attempt.Evidence, string(attempt.Status),
		attempt.TemplateVersion, attempt.SentAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: append attempt for %s", attempt.ContactID)
}

func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM outreach_contacts GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: status counts rows")
}

func (s *SQLiteStore) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, slug, city FROM listings WHERE id = ?`, listingID)

	var l model.Listing
	var slug, city sql.NullString
	if err := row.Scan(&l.ID, &slug, &city); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get listing %s", listingID)
	}
	l.Slug = slug.String
	l.City = city.String
	return &l, nil
}

func (s *SQLiteStore) ViewCount(ctx context.Context, listingID string, since time.Time) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lead_events
		WHERE listing_id = ? AND event_type = 'listing_view' AND created_at >= ?`,
		listingID, since.UTC(),
	)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: view count %s", listingID)
	}
	return n, nil
}

func (s *SQLiteStore) queryContacts(ctx context.Context, query string, args ...any) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: contact rows")
}

// scanContact maps one outreach_contacts row, normalizing SQL NULLs.
func scanContact(rows *sql.Rows) (model.Contact, error) {
	var c model.Contact
	var listingID, displayName, city, website, email sql.NullString
	var method, reason, evidence, notes sql.NullString
	var classifiedAt, lastContactedAt sql.NullTime
	var claimed bool

	err := rows.Scan(
		&c.ID, &listingID, &displayName, &city, &website, &email,
		&method, &reason, &evidence, &classifiedAt,
		&c.Status, &notes, &c.FollowUpCount, &lastContactedAt, &claimed,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return model.Contact{}, err
	}

	c.ListingID = listingID.String
	c.DisplayName = displayName.String
	c.City = city.String
	c.WebsiteURL = website.String
	c.KnownEmail = email.String
	c.Method = model.ContactMethod(method.String)
	c.Reason = model.Reason(reason.String)
	c.Evidence = evidence.String
	c.Notes = notes.String
	c.Claimed = claimed
	if classifiedAt.Valid {
		t := classifiedAt.Time
		c.ClassifiedAt = &t
	}
	if lastContactedAt.Valid {
		t := lastContactedAt.Time
		c.LastContactedAt = &t
	}
	return c, nil
}

// checkRowsAffected surfaces updates that silently matched no row.
func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %s not found", entity, id)
	}
	return nil
}
