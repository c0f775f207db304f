package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providory/outreach/internal/classify"
	"github.com/providory/outreach/internal/deliver"
	"github.com/providory/outreach/internal/fetcher"
	"github.com/providory/outreach/internal/mail"
	"github.com/providory/outreach/internal/model"
	"github.com/providory/outreach/internal/store"
)

type fakeSender struct {
	sent    []mail.Message
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, msg mail.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

// unreachableGetter fails every request; pipeline tests never dial out.
type unreachableGetter struct{}

func (unreachableGetter) Get(context.Context, string) (*fetcher.Page, error) {
	return nil, eris.New("no network in tests")
}

type trackerSeed struct {
	id      string
	city    string
	website string
	email   string
	method  model.ContactMethod
}

func newTrackerStore(t *testing.T, seeds []trackerSeed) (*store.CSVStore, string) {
	t.Helper()

	body := "id,listing_id,city,website_url,known_email,contact_method,response_status\n"
	for _, s := range seeds {
		body += fmt.Sprintf("%s,l-%s,%s,%s,%s,%s,not_contacted\n",
			s.id, s.id, s.city, s.website, s.email, s.method)
	}

	path := filepath.Join(t.TempDir(), "tracker.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	st, err := store.NewCSV(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st, path
}

func TestClassifyRunner(t *testing.T) {
	st, _ := newTrackerStore(t, []trackerSeed{
		{id: "c1", website: "https://t.me/someone"},
		{id: "c2", website: "https://onlyfans.com/someone"},
		{id: "c3"},
	})

	// Platform domains and missing websites never touch the network.
	cl := classify.New(func() classify.PageFetcher {
		return unreachableGetter{}
	})
	runner := NewClassifyRunner(st, cl, "", 100, 0, nil)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.DM)
	assert.Equal(t, 1, sum.None)
	assert.Equal(t, 3, sum.Total())

	// Every row was written back; nothing is left unclassified.
	remaining, err := st.UnclassifiedContacts(context.Background(), store.ClassifyFilter{})
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestClassifyRunnerRespectsLimitFilter(t *testing.T) {
	st, _ := newTrackerStore(t, []trackerSeed{
		{id: "c1", website: "https://t.me/a"},
		{id: "c2", website: "https://t.me/b"},
	})
	cl := classify.New(func() classify.PageFetcher { return unreachableGetter{} })

	sum, err := NewClassifyRunner(st, cl, "", 1, 0, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Total())
}

func newEmailExecutor(sender *fakeSender) *deliver.Executor {
	return deliver.New(sender, func() deliver.FormFetcher {
		panic("email delivery must not build a fetcher")
	}, deliver.Identity{
		SenderName: "Providory Partnerships",
		ReplyTo:    "partners@providory.com",
		Directory:  "Providory",
	})
}

func TestDeliverRunnerDailyCap(t *testing.T) {
	st, path := newTrackerStore(t, []trackerSeed{
		{id: "c1", website: "https://a.example.com", email: "a@example.com", method: model.MethodEmail},
		{id: "c2", website: "https://b.example.com", email: "b@example.com", method: model.MethodEmail},
		{id: "c3", website: "https://c.example.com", email: "c@example.com", method: model.MethodEmail},
	})
	sender := &fakeSender{}
	runner := NewDeliverRunner(st, newEmailExecutor(sender), "https://providory.com", "", 2, 0, nil)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.DeliveredEmail)
	assert.Equal(t, 2, sum.Sent())
	assert.Len(t, sender.sent, 2)

	// The third row is untouched and still deliverable.
	left, err := st.DeliverableContacts(context.Background(), store.DeliverFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "c3", left[0].ID)

	attempts, err := os.ReadFile(filepath.Join(filepath.Dir(path), "tracker.attempts.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(attempts), model.TemplateInitial)
	assert.Contains(t, string(attempts), "smtp_sent")
}

func TestDeliverRunnerSkipsEmptyWebsite(t *testing.T) {
	st, _ := newTrackerStore(t, []trackerSeed{
		{id: "c1", email: "a@example.com", method: model.MethodEmail},
		{id: "c2", website: "https://b.example.com", email: "b@example.com", method: model.MethodEmail},
	})
	sender := &fakeSender{}
	runner := NewDeliverRunner(st, newEmailExecutor(sender), "https://providory.com", "", 8, 0, nil)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, sum.DeliveredEmail)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "b@example.com", sender.sent[0].To)
}

func TestDeliverRunnerSendFailureConsumesBudget(t *testing.T) {
	st, path := newTrackerStore(t, []trackerSeed{
		{id: "c1", website: "https://a.example.com", email: "a@example.com", method: model.MethodEmail},
	})
	sender := &fakeSender{sendErr: eris.New("451 greylisted")}
	runner := NewDeliverRunner(st, newEmailExecutor(sender), "https://providory.com", "", 8, 0, nil)

	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.NeedsManual)
	assert.Equal(t, 1, sum.Sent(), "needs_manual outcomes consume budget")

	attempts, err := os.ReadFile(filepath.Join(filepath.Dir(path), "tracker.attempts.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(attempts), "smtp_send_failed")
	assert.Contains(t, string(attempts), string(model.AttemptFailed))
}
