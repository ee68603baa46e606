// Package mail holds the outbound-mail capability. Delivery failures are
// reported to callers but the service treats dispatch as best-effort.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPMailer delivers mail through a relay that accepts unauthenticated
// submissions (the usual setup for an internal corporate relay).
type SMTPMailer struct {
	addr string
	from string
}

// NewSMTPMailer creates a mailer for the given relay address ("host:port").
func NewSMTPMailer(addr, from string) *SMTPMailer {
	return &SMTPMailer{addr: addr, from: from}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: SecureSend <%s>\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	return nil
}

// NopMailer logs instead of sending. Used in development and tests.
type NopMailer struct{}

func (NopMailer) Send(ctx context.Context, to, subject, body string) error {
	slog.Info("mail suppressed", "to", to, "subject", subject)
	return nil
}

// OTPSubject is the subject line of one-time passcode mail.
const OTPSubject = "One-time passcode for your file download"

// OTPBody renders the body of a one-time passcode mail.
func OTPBody(code string, ttlMinutes int) string {
	return fmt.Sprintf(`To confirm your identity, enter the following passcode on the verification screen.

----------------------------------------------------------------------
Passcode: %s

About this passcode:
- It is valid for %d minutes from the time it was requested.
- It can be used only once.
- If it no longer works, request a new one from the verification screen.
----------------------------------------------------------------------

This message was sent to verify a file download request.
If you did not expect it, please discard this mail.

This mailbox is not monitored; replies will not be read.
`, code, ttlMinutes)
}
