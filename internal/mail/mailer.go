package mail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	gomail "github.com/wneessen/go-mail"

	"github.com/genstudio/server/internal/config"
)

// Mailer sends transactional mail over SMTP. With no SMTP host
// configured it logs the link instead, which keeps local development
// working without a relay.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// New creates a Mailer from config.
func New(cfg *config.Config) *Mailer {
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
	}
}

// SendVerification mails the email-verification link.
func (m *Mailer) SendVerification(ctx context.Context, to, link string) error {
	if m.host == "" {
		log.Info().Str("to", to).Str("link", link).Msg("smtp not configured, verification link logged only")
		return nil
	}

	msg := gomail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("mail to: %w", err)
	}
	msg.Subject("Verify your email")
	msg.SetBodyString(gomail.TypeTextPlain,
		"Welcome! Confirm your email address by opening this link:\n\n"+link+
			"\n\nThe link expires in 48 hours. If you did not register, ignore this mail.\n")

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
