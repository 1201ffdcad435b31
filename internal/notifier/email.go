package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// LogEmailSender writes messages to the log instead of a mail transport.
type LogEmailSender struct {
	logger zerolog.Logger
}

func NewLogEmailSender(logger zerolog.Logger) *LogEmailSender {
	return &LogEmailSender{logger: logger.With().Str("component", "email").Logger()}
}

func (s *LogEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("email sent")
	return nil
}
