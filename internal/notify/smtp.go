package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"
)

// SMTPConfig holds the mail account used for SMTP submission.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTP sends reports through an authenticated SMTP submission server.
type SMTP struct {
	cfg SMTPConfig
	log logrus.FieldLogger
}

// NewSMTP returns an SMTP notifier.
func NewSMTP(cfg SMTPConfig, log logrus.FieldLogger) *SMTP {
	return &SMTP{cfg: cfg, log: log}
}

func (s *SMTP) client() (*mail.Client, error) {
	return mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	)
}

// Send implements Notifier.
func (s *SMTP) Send(ctx context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = s.cfg.Username
	}
	m, err := Compose(msg)
	if err != nil {
		return err
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("smtp: send via %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.log.WithField("host", s.cfg.Host).Info("report mailed via smtp")
	return nil
}
