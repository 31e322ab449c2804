package account

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/storeit/storeit/internal/logging"
)

// Mailer delivers one-time codes.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string) error
}

// SMTPMailer sends codes over plain SMTP.
type SMTPMailer struct {
	Addr string // host:port
	From string
	User string
	Pass string
}

// SendOTP sends the code to the address.
func (m SMTPMailer) SendOTP(_ context.Context, email, code string) error {
	var auth smtp.Auth
	if m.User != "" {
		host := m.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.User, m.Pass, host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Your StoreIt sign-in code\r\n\r\n"+
		"Your one-time code is %s. It expires in 15 minutes.\r\n", m.From, email, code)

	if err := smtp.SendMail(m.Addr, auth, m.From, []string{email}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", email, err)
	}
	return nil
}

// LogMailer logs codes instead of sending them. Development only.
type LogMailer struct{}

// SendOTP logs the code.
func (LogMailer) SendOTP(_ context.Context, email, code string) error {
	logging.Warn("SMTP not configured, logging OTP instead",
		zap.String("email", email),
		zap.String("code", code))
	return nil
}
