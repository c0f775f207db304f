package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/providory/outreach/internal/model"
)

// Pool is the subset of pgxpool.Pool the store runs its queries through.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store against the hosted contacts table using
// pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists the hot-path queries prepared on each new
// connection.
var preparedStatements = map[string]string{
	"update_classification": `UPDATE outreach_contacts SET
		contact_method = $1, classification_reason = $2, classification_evidence = $3,
		classified_at = $4,
		known_email = CASE WHEN COALESCE(known_email, '') = '' AND $5 != '' THEN $5 ELSE known_email END,
		updated_at = $6
	WHERE id = $7`,
	"update_delivery": `UPDATE outreach_contacts SET
		status = $1, notes = $2, last_contacted_at = $3, follow_up_count = 1, updated_at = $4
	WHERE id = $5`,
	"advance_followup": `UPDATE outreach_contacts SET
		follow_up_count = $1, last_contacted_at = $2, updated_at = $3
	WHERE id = $4 AND follow_up_count < $1`,
	"insert_attempt": `INSERT INTO outreach_attempts
		(id, contact_id, listing_id, channel, delivery_url, delivery_evidence, status, template_version, sent_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	"get_listing": `SELECT id, COALESCE(slug, ''), COALESCE(city, '') FROM listings WHERE id = $1`,
	"view_count": `SELECT COUNT(*) FROM lead_events
		WHERE listing_id = $1 AND event_type = 'listing_view' AND created_at >= $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// A sequential batch job needs very little pool.
	pgxCfg.MaxConns = 4
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS outreach_contacts (
	id                      TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	listing_id              TEXT,
	display_name            TEXT,
	city                    TEXT,
	website_url             TEXT,
	known_email             TEXT,
	contact_method          TEXT,
	classification_reason   TEXT,
	classification_evidence TEXT,
	classified_at           TIMESTAMPTZ,
	status                  TEXT NOT NULL DEFAULT 'not_contacted',
	notes                   TEXT,
	follow_up_count         INTEGER NOT NULL DEFAULT 0,
	last_contacted_at       TIMESTAMPTZ,
	claimed                 BOOLEAN NOT NULL DEFAULT FALSE,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
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
	sent_at           TIMESTAMPTZ NOT NULL
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_contacts_status ON outreach_contacts(status);
CREATE INDEX IF NOT EXISTS idx_contacts_city ON outreach_contacts(city);
CREATE INDEX IF NOT EXISTS idx_attempts_contact_id ON outreach_attempts(contact_id);
CREATE INDEX IF NOT EXISTS idx_lead_events_listing ON lead_events(listing_id, event_type, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgContactColumns = `id, COALESCE(listing_id, ''), COALESCE(display_name, ''), COALESCE(city, ''),
	COALESCE(website_url, ''), COALESCE(known_email, ''),
	COALESCE(contact_method, ''), COALESCE(classification_reason, ''), COALESCE(classification_evidence, ''),
	classified_at, status, COALESCE(notes, ''), follow_up_count, last_contacted_at, claimed,
	created_at, updated_at`

func (s *PostgresStore) UnclassifiedContacts(ctx context.Context, filter ClassifyFilter) ([]model.Contact, error) {
	query := `SELECT ` + pgContactColumns + ` FROM outreach_contacts
		WHERE status = $1 AND COALESCE(contact_method, '') = ''`
	args := []any{string(model.StatusNotContacted)}

	if filter.City != "" {
		args = append(args, filter.City)
		query += ` AND city = $2`
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *PostgresStore) DeliverableContacts(ctx context.Context, filter DeliverFilter) ([]model.Contact, error) {
	query := `SELECT ` + pgContactColumns + ` FROM outreach_contacts
		WHERE status = $1 AND contact_method = ANY($2)`
	args := []any{
		string(model.StatusNotContacted),
		[]string{string(model.MethodEmail), string(model.MethodContactForm)},
	}

	if filter.City != "" {
		args = append(args, filter.City)
		query += ` AND city = $3`
	}
	query += ` ORDER BY created_at`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *PostgresStore) FollowUpCandidates(ctx context.Context, filter FollowUpFilter) ([]model.Contact, error) {
	query := `SELECT ` + pgContactColumns + ` FROM outreach_contacts
		WHERE status = ANY($1) AND claimed = FALSE AND follow_up_count = $2 AND last_contacted_at <= $3
		ORDER BY last_contacted_at`
	args := []any{
		[]string{string(model.StatusDeliveredEmail), string(model.StatusDeliveredForm)},
		filter.FollowUpCount,
		filter.Cutoff.UTC(),
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	return s.queryContacts(ctx, query, args...)
}

func (s *PostgresStore) UpdateClassification(ctx context.Context, contactID string, u ClassificationUpdate) error {
	tag, err := s.pool.Exec(ctx, "update_classification",
		nullable(string(u.Method)), nullable(string(u.Reason)), nullable(u.Evidence),
		u.ClassifiedAt.UTC(), u.KnownEmail, time.Now().UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update classification %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: contact %s not found", contactID)
	}
	return nil
}

func (s *PostgresStore) UpdateDelivery(ctx context.Context, contactID string, u DeliveryUpdate) error {
	tag, err := s.pool.Exec(ctx, "update_delivery",
		string(u.Status), u.Evidence, u.ContactedAt.UTC(), time.Now().UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update delivery %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: contact %s not found", contactID)
	}
	return nil
}

func (s *PostgresStore) AdvanceFollowUp(ctx context.Context, contactID string, newCount int, contactedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, "advance_followup",
		newCount, contactedAt.UTC(), time.Now().UTC(), contactID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: advance follow-up %s", contactID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: contact %s missing or already past follow-up %d", contactID, newCount)
	}
	return nil
}

func (s *PostgresStore) AppendAttempt(ctx context.Context, attempt model.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, "insert_attempt",
		attempt.ID, attempt.ContactID, nullable(attempt.ListingID), string(attempt.Channel),
		attempt.DeliveryURL, attempt.Evidence, string(attempt.Status),
		attempt.TemplateVersion, attempt.SentAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: append attempt for %s", attempt.ContactID)
}

func (s *PostgresStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM outreach_contacts GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status counts rows")
}

func (s *PostgresStore) GetListing(ctx context.Context, listingID string) (*model.Listing, error) {
	var l model.Listing
	err := s.pool.QueryRow(ctx, "get_listing", listingID).Scan(&l.ID, &l.Slug, &l.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get listing %s", listingID)
	}
	return &l, nil
}

func (s *PostgresStore) ViewCount(ctx context.Context, listingID string, since time.Time) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "view_count", listingID, since.UTC()).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: view count %s", listingID)
	}
	return n, nil
}

func (s *PostgresStore) queryContacts(ctx context.Context, query string, args ...any) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query contacts")
	}
	defer rows.Close()

	var out []model.Contact
	for rows.Next() {
		var c model.Contact
		var method, reason string
		var classifiedAt, lastContactedAt *time.Time
		err := rows.Scan(
			&c.ID, &c.ListingID, &c.DisplayName, &c.City,
			&c.WebsiteURL, &c.KnownEmail,
			&method, &reason, &c.Evidence,
			&classifiedAt, &c.Status, &c.Notes, &c.FollowUpCount, &lastContactedAt, &c.Claimed,
			&c.CreatedAt, &c.UpdatedAt,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		c.Method = model.ContactMethod(method)
		c.Reason = model.Reason(reason)
		c.ClassifiedAt = classifiedAt
		c.LastContactedAt = lastContactedAt
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: contact rows")
}

// nullable maps empty strings to NULL so COALESCE-based defaults stay
// meaningful.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
