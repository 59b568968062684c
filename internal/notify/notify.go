package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wneessen/go-mail"

	"github.com/Nao-Mk2/isp-log-reporter/internal/model"
)

// Message is one outbound report mail.
type Message struct {
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []string
}

// Notifier delivers a report message.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Subject returns the mail subject for a run.
func Subject(timestamp string, alerting bool) string {
	if alerting {
		return "ISP Alert - " + timestamp
	}
	return "ISP Log File Report - " + timestamp
}

// Body returns the mail text: the report path, then any lines flagged after cutoff.
func Body(reportPath string, alerts []model.Alert, cutoff time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attached is the log file %s.\n", reportPath)
	if len(alerts) > 0 {
		fmt.Fprintf(&b, "\n%d alerting line(s) since %s:\n", len(alerts), cutoff.Format(time.RFC3339))
		for _, a := range alerts {
			b.WriteString(string(a.Line))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Compose builds the MIME message with text body and file attachments.
func Compose(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}
	to := msg.To
	if to == "" {
		to = msg.From
	}
	if err := m.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	for _, path := range msg.Attachments {
		m.AttachFile(path)
	}
	return m, nil
}

// Discard logs the message instead of sending it.
type Discard struct {
	log logrus.FieldLogger
}

// NewDiscard returns a notifier for dry runs.
func NewDiscard(log logrus.FieldLogger) *Discard {
	return &Discard{log: log}
}

// Send implements Notifier.
func (d *Discard) Send(_ context.Context, msg Message) error {
	d.log.WithFields(logrus.Fields{
		"subject":     msg.Subject,
		"attachments": msg.Attachments,
	}).Info("notifier disabled, not sending mail")
	return nil
}
