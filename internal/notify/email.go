// Package notify holds the outbound verification channels: transactional
// email for the emailed code and Twilio Verify for the SMS challenge.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wneessen/go-mail"
)

const smtpTimeout = 20 * time.Second

// EmailConfig configures the SMTP transport for verification emails.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

// Email sends verification codes over SMTP. Fire-and-forget: a delivery
// failure surfaces to the caller and is never retried here.
type Email struct {
	client *mail.Client
	sender string
}

// NewEmail creates a new SMTP email sender.
func NewEmail(cfg EmailConfig) (*Email, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(smtpTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	return &Email{client: client, sender: cfg.Sender}, nil
}

// SendCode emails the verification code to the recipient, mentioning how
// long the code stays valid.
func (e *Email) SendCode(ctx context.Context, recipient, code string, ttl time.Duration) error {
	msg := mail.NewMsg()
	if err := msg.From(e.sender); err != nil {
		return fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	msg.Subject("Your Physiotech verification code")
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello,\n\nYour verification code is: %s\n\nThe code expires in %d minutes.\n\nPhysiotech",
		code, int(ttl.Minutes()),
	))

	if err := e.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	log.Debug().Str("recipient", recipient).Msg("Dispatched verification email")
	return nil
}
