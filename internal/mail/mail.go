// ABOUTME: OTP delivery over SMTP using go-mail
// ABOUTME: Falls back to a log-only deliverer when mail is disabled

package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/sunware/authgate/internal/config"
)

const (
	otpSubject  = "Your OTP Code"
	otpBodyTmpl = "Your OTP code is: %s"
)

// SMTPDeliverer sends passcodes by email through an SMTP relay.
type SMTPDeliverer struct {
	client *gomail.Client
	from   string
	logger *slog.Logger
}

// NewSMTPDeliverer builds a deliverer from mail configuration. The
// connection is established lazily on first send.
func NewSMTPDeliverer(cfg config.MailConfig, logger *slog.Logger) (*SMTPDeliverer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("building smtp client: %w", err)
	}
	return &SMTPDeliverer{
		client: client,
		from:   cfg.From,
		logger: logger.With("component", "mail"),
	}, nil
}

// SendOTP emails the passcode to the identity's address.
func (d *SMTPDeliverer) SendOTP(ctx context.Context, email, otp string) error {
	msg := gomail.NewMsg()
	if err := msg.From(d.from); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := msg.To(email); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(otpBodyTmpl, otp))

	if err := d.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending otp mail: %w", err)
	}
	d.logger.Info("otp mail sent", "email", email)
	return nil
}

// LogDeliverer writes passcodes to the log instead of sending mail.
// Intended for local development with mail.enabled: false.
type LogDeliverer struct {
	logger *slog.Logger
}

func NewLogDeliverer(logger *slog.Logger) *LogDeliverer {
	return &LogDeliverer{logger: logger.With("component", "mail")}
}

func (d *LogDeliverer) SendOTP(_ context.Context, email, otp string) error {
	d.logger.Info("otp issued (mail disabled)", "email", email, "otp", otp)
	return nil
}
