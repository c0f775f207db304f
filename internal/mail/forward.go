package mail

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Forwarder sweeps unseen inbox messages and re-sends each one to a fixed
// operator address as a .eml attachment. Designed for cron use: every run is
// a full sweep, messages are marked seen only after a successful forward, so
// a crashed run re-forwards at worst the in-flight message.
type Forwarder struct {
	addr      string // host:port
	username  string
	password  string
	replyTo   string
	forwardTo string
	sender    Sender
}

// NewForwarder creates a Forwarder that reads via IMAP at addr and sends
// through sender.
func NewForwarder(addr, username, password, replyTo, forwardTo string, sender Sender) *Forwarder {
	return &Forwarder{
		addr:      addr,
		username:  username,
		password:  password,
		replyTo:   replyTo,
		forwardTo: forwardTo,
		sender:    sender,
	}
}

// ShouldSkipForward is the loop guard: a message already addressed to the
// forward target whose subject carries a forwarded marker is dropped (and
// marked seen) instead of bounced around again.
func ShouldSkipForward(to []string, subject, forwardTo string) bool {
	target := strings.ToLower(forwardTo)
	addressed := false
	for _, addr := range to {
		if strings.Contains(strings.ToLower(addr), target) {
			addressed = true
			break
		}
	}
	return addressed && strings.Contains(strings.ToUpper(subject), "FWD")
}

// Run performs one sweep. Returns the number of messages forwarded.
func (f *Forwarder) Run(ctx context.Context) (int, error) {
	c, err := client.DialTLS(f.addr, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "forward: dial %s", f.addr)
	}
	defer func() { _ = c.Logout() }()

	if err := c.Login(f.username, f.password); err != nil {
		return 0, eris.Wrap(err, "forward: login")
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return 0, eris.Wrap(err, "forward: select inbox")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return 0, eris.Wrap(err, "forward: search unseen")
	}
	if len(ids) == 0 {
		zap.L().Info("forward: no unseen messages")
		return 0, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Peek so nothing is marked seen until the forward actually went out.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope}

	messages := make(chan *imap.Message, len(ids))
	fetchDone := make(chan error, 1)
	go func() { fetchDone <- c.Fetch(seqset, items, messages) }()

	type fetched struct {
		seq     uint32
		raw     []byte
		subject string
		from    string
		to      []string
	}
	var inbox []fetched

	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		m := fetched{seq: msg.SeqNum, raw: raw, subject: "(no subject)", from: "(unknown sender)"}
		if env := msg.Envelope; env != nil {
			if env.Subject != "" {
				m.subject = env.Subject
			}
			if len(env.From) > 0 {
				m.from = env.From[0].Address()
			}
			for _, a := range env.To {
				m.to = append(m.to, a.Address())
			}
		}
		inbox = append(inbox, m)
	}
	if err := <-fetchDone; err != nil {
		return 0, eris.Wrap(err, "forward: fetch")
	}

	done := new(imap.SeqSet)
	sent := 0

	for _, m := range inbox {
		if ShouldSkipForward(m.to, m.subject, f.forwardTo) {
			done.AddNum(m.seq)
			continue
		}

		fwd := Message{
			To:      f.forwardTo,
			Subject: "[Inbox Forward] " + m.subject,
			Body: fmt.Sprintf("Forwarded from %s\n\nOriginal From: %s\nOriginal Subject: %s\n",
				f.replyTo, m.from, m.subject),
			Attachment:     m.raw,
			AttachmentName: "original.eml",
		}
		if err := f.sender.Send(ctx, fwd); err != nil {
			zap.L().Warn("forward: send failed", zap.String("subject", m.subject), zap.Error(err))
			continue
		}
		done.AddNum(m.seq)
		sent++
	}

	if !done.Empty() {
		op := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(done, op, []interface{}{imap.SeenFlag}, nil); err != nil {
			return sent, eris.Wrap(err, "forward: mark seen")
		}
	}

	return sent, nil
}
