package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/eternisai/group-notifier/internal/logger"
)

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// Mailer sends batched blind-copy emails over implicit-TLS SMTP.
type Mailer struct {
	cfg    Config
	logger *logger.Logger
}

// NewMailer creates a new SMTP mailer.
func NewMailer(cfg Config, logger *logger.Logger) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Mailer{
		cfg:    cfg,
		logger: logger.WithComponent("email"),
	}
}

// SendBlindCopy sends one message addressed to the sender with every recipient in Bcc.
// If the SMTP server cannot be reached the send is skipped and only logged.
func (m *Mailer) SendBlindCopy(ctx context.Context, to []string, subject, body string) error {
	log := m.logger.WithContext(ctx)

	if len(to) == 0 {
		log.Debug("no email recipients, skipping")
		return nil
	}

	msg, err := m.buildMessage(to, subject, body)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTimeout(m.cfg.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}

	if err := client.DialWithContext(ctx); err != nil {
		log.Error("email transport verification failed",
			slog.String("host", m.cfg.Host),
			slog.String("error", err.Error()))
		return nil
	}
	defer client.Close()

	if err := client.Send(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info("email sent",
		slog.String("subject", subject),
		slog.Int("recipients", len(to)))

	return nil
}

func (m *Mailer) buildMessage(to []string, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	if err := msg.Bcc(to...); err != nil {
		return nil, fmt.Errorf("invalid bcc address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
