// Package mailer provides the mail transports notification dispatch can be
// wired to. Delivery itself happens outside this service.
package mailer

import (
	"context"

	"github.com/sifan077/PowerForm/internal/app/model"
	"go.uber.org/zap"
)

// Log writes messages to the logger instead of delivering them. It is the
// development transport.
type Log struct {
	logger *zap.Logger
}

// NewLog returns a transport that only logs.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, msg model.MailMessage) error {
	l.logger.Info("mail (log transport)",
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
