// Package notify delivers fire-and-forget messages to marketplace parties.
// Delivery failure is logged by callers, never propagated.
package notify

import (
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Notifier sends a message to a single recipient address.
type Notifier interface {
	Notify(recipient, subject, body string) error
}

// SMTPNotifier sends plain-text mail through a configured SMTP relay.
type SMTPNotifier struct {
	addr string
	from string
	auth smtp.Auth
}

func NewSMTPNotifier(host, port, user, pass string) *SMTPNotifier {
	return &SMTPNotifier{
		addr: host + ":" + port,
		from: fmt.Sprintf("Procurement Platform <%s>", user),
		auth: smtp.PlainAuth("", user, pass, host),
	}
}

func (n *SMTPNotifier) Notify(recipient, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + n.from,
		"To: " + recipient,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	return smtp.SendMail(n.addr, n.auth, n.from, []string{recipient}, []byte(msg))
}

// LogNotifier stands in when no SMTP relay is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(recipient, subject, body string) error {
	log.Printf("notify %s: %s", recipient, subject)
	return nil
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(recipient, subject, body string) error

func (f NotifierFunc) Notify(recipient, subject, body string) error {
	return f(recipient, subject, body)
}
