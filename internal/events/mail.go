package events

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/go-mail/mail/v2"
)

// MailSink e-mails operators about events that need a human: block requests
// and accounts expired by the sweep. Other kinds are ignored.
type MailSink struct {
	from string
	to   string
	send func(*mail.Message) error
}

func NewMailSink(host string, port int, user, password, to string) *MailSink {
	d := mail.NewDialer(host, port, user, password)
	d.TLSConfig = &tls.Config{ServerName: host}
	return &MailSink{from: user, to: to, send: func(m *mail.Message) error { return d.DialAndSend(m) }}
}

func (s *MailSink) Name() string { return "mail" }

func (s *MailSink) Deliver(_ context.Context, e Event) error {
	m := s.message(e)
	if m == nil {
		return nil
	}
	if err := s.send(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *MailSink) message(e Event) *mail.Message {
	var subject, body string
	switch e.Kind {
	case BlockRequested:
		subject = fmt.Sprintf("Block requested for account %d", e.AccountID)
		body = fmt.Sprintf("<p>User <strong>%d</strong> requested a block of account <strong>%d</strong> at %s.</p>",
			e.ActorID, e.AccountID, e.OccurredAt.Format("02.01.2006 15:04"))
	case AccountExpired:
		subject = fmt.Sprintf("Account %d expired", e.AccountID)
		body = fmt.Sprintf("<p>Account <strong>%d</strong> passed its expiry date and was marked EXPIRED at %s.</p>",
			e.AccountID, e.OccurredAt.Format("02.01.2006 15:04"))
	default:
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body+"<small>This is an automated notification.</small>")
	return m
}
