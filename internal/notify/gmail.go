package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/gmail/v1"
)

// MessagesAPI is the subset of the Gmail API we use.
type MessagesAPI interface {
	SendRaw(ctx context.Context, raw string) (string, error)
}

type gmailMessages struct {
	svc *gmail.Service
}

func (g gmailMessages) SendRaw(ctx context.Context, raw string) (string, error) {
	sent, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

// Gmail sends reports through the Gmail API as the authorized user.
type Gmail struct {
	api MessagesAPI
	log logrus.FieldLogger
}

// NewGmail wraps an authorized Gmail service.
func NewGmail(svc *gmail.Service, log logrus.FieldLogger) *Gmail {
	return NewGmailWithAPI(gmailMessages{svc: svc}, log)
}

// NewGmailWithAPI uses api directly.
func NewGmailWithAPI(api MessagesAPI, log logrus.FieldLogger) *Gmail {
	return &Gmail{api: api, log: log}
}

// Send implements Notifier.
func (g *Gmail) Send(ctx context.Context, msg Message) error {
	m, err := Compose(msg)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		return fmt.Errorf("gmail: render message: %w", err)
	}
	id, err := g.api.SendRaw(ctx, base64.URLEncoding.EncodeToString(buf.Bytes()))
	if err != nil {
		return fmt.Errorf("gmail: send: %w", err)
	}
	g.log.WithField("message_id", id).Info("report mailed via gmail")
	return nil
}
