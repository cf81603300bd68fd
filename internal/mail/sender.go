// Package mail delivers account email produced from feed events.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/tazhibayda/feed-service/internal/helper"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes mail to the logger instead of delivering it. Used when no
// SMTP relay is configured.
type LogSender struct {
	L *zap.Logger
}

func (s LogSender) Send(_ context.Context, m Message) error {
	s.L.Info("mail",
		zap.String("to_hash", helper.Hash8(m.To)),
		zap.String("subject", m.Subject),
		zap.String("body", m.Body),
	)
	return nil
}

// SMTPSender relays through a plain SMTP server, authenticating when a user
// is set.
type SMTPSender struct {
	Addr string
	From string
	User string
	Pass string
}

func (s SMTPSender) Send(_ context.Context, m Message) error {
	var auth smtp.Auth
	if s.User != "" {
		host, _, _ := net.SplitHostPort(s.Addr)
		auth = smtp.PlainAuth("", s.User, s.Pass, host)
	}
	if err := smtp.SendMail(s.Addr, auth, s.From, []string{m.To}, compose(s.From, m)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func compose(from string, m Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return []byte(b.String())
}
