// Package mail holds the outbound SMTP transport and the inbox forwarder.
package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/rotisserie/eris"
)

// Message is one plain-text outbound mail. Attachment carries a raw RFC822
// message for the inbox forwarder and is empty everywhere else.
type Message struct {
	To             string
	Subject        string
	Body           string
	Attachment     []byte
	AttachmentName string
}

// Sender delivers a single message. Failures are reported, never retried
// internally; the caller decides what a failed send means.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender sends over an authenticated implicit-TLS session (port 465
// style). One session per message; nothing is pooled. timeout bounds each
// session end to end.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	fromName string
	replyTo  string
	timeout  time.Duration
}

// NewSMTPSender creates a sender with the given credentials and identity.
// A zero timeout leaves sends bounded only by the caller's context.
func NewSMTPSender(host string, port int, username, password, fromName, replyTo string, timeout time.Duration) *SMTPSender {
	return &SMTPSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		fromName: fromName,
		replyTo:  replyTo,
		timeout:  timeout,
	}
}

// Send delivers one message.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	e := email.NewEmail()
	e.From = fmt.Sprintf("%s <%s>", s.fromName, s.username)
	e.To = []string{msg.To}
	e.ReplyTo = []string{s.replyTo}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Body)

	if len(msg.Attachment) > 0 {
		name := msg.AttachmentName
		if name == "" {
			name = "original.eml"
		}
		if _, err := e.Attach(bytes.NewReader(msg.Attachment), name, "message/rfc822"); err != nil {
			return eris.Wrap(err, "mail: attach")
		}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	auth := smtp.PlainAuth("", s.username, s.password, s.host)

	// SendWithTLS carries no deadline of its own. Run the session aside and
	// abandon it when the context expires; a hung server must not stall the
	// whole batch.
	done := make(chan error, 1)
	go func() {
		done <- e.SendWithTLS(addr, auth, &tls.Config{ServerName: s.host})
	}()

	select {
	case err := <-done:
		if err != nil {
			return eris.Wrapf(err, "mail: send to %s", msg.To)
		}
		return nil
	case <-ctx.Done():
		return eris.Wrapf(ctx.Err(), "mail: send to %s", msg.To)
	}
}
