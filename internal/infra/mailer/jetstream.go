package mailer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/PowerForm/internal/app/model"
)

// Publisher is the subset of nats.JetStreamContext the transport needs.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// JetStream hands messages to the mail worker through a JetStream subject.
type JetStream struct {
	js      Publisher
	subject string
}

// NewJetStream returns a transport publishing to subject, or to
// model.MailStreamSubject when subject is empty.
func NewJetStream(js Publisher, subject string) *JetStream {
	if subject == "" {
		subject = model.MailStreamSubject
	}
	return &JetStream{js: js, subject: subject}
}

func (m *JetStream) Send(ctx context.Context, msg model.MailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mailer: encode message: %w", err)
	}

	// A fresh id per attempt: a retried publish after a lost ack may duplicate,
	// which is acceptable for best-effort mail.
	if _, err := m.js.Publish(m.subject, data, nats.Context(ctx), nats.MsgId(uuid.NewString())); err != nil {
		return fmt.Errorf("mailer: publish %s: %w", m.subject, err)
	}
	return nil
}
