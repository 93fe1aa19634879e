package notify

import (
	"context"

	"github.com/jmcleod/masterkeep/internal/logger"
)

// LogMailer records sends in the log instead of delivering them. The body is
// never logged.
type LogMailer struct {
	log *logger.Logger
}

func NewLogMailer(log *logger.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (m *LogMailer) SendMail(ctx context.Context, recipients []string, subject, _ string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	m.log.Info().
		Int("recipients", len(recipients)).
		Str("subject", subject).
		Msg("mail not delivered: no webhook configured")
	return nil
}
