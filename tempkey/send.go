package tempkey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/masterkeep/notify"
)

const mailSubject = "Temporary master key"

// SendByEmailForGroup mails passphrase to every user of groupID that has an
// email address. A delivery failure does not affect the token.
func (s *Service) SendByEmailForGroup(ctx context.Context, groupID, passphrase string) error {
	if groupID == "" {
		return errors.New("group id must not be empty")
	}
	return s.send(ctx, groupID, passphrase)
}

// SendByEmailForAllUsers mails passphrase to every user with an email address.
func (s *Service) SendByEmailForAllUsers(ctx context.Context, passphrase string) error {
	return s.send(ctx, "", passphrase)
}

func (s *Service) send(ctx context.Context, groupID, passphrase string) error {
	if s.mailer == nil {
		return errors.New("no mailer configured")
	}
	info, err := s.Info(ctx)
	if err != nil {
		return err
	}

	users, err := s.store.ListUsers(ctx, groupID)
	if err != nil {
		return err
	}
	var recipients []string
	for _, u := range users {
		if u.Email != "" {
			recipients = append(recipients, u.Email)
		}
	}
	if len(recipients) == 0 {
		return notify.ErrNoRecipients
	}

	body := fmt.Sprintf("A temporary master key has been issued.\n\nKey: %s\nValid until: %s\n",
		passphrase, info.ExpiresAt.Format(time.RFC1123))
	if err := s.mailer.SendMail(ctx, recipients, mailSubject, body); err != nil {
		s.log.Error().Err(err).
			Str("group", groupID).
			Int("recipients", len(recipients)).
			Msg("sending temporary master key")
		return fmt.Errorf("sending temporary master key: %w", err)
	}
	s.log.Info().Str("group", groupID).Int("recipients", len(recipients)).Msg("temporary master key sent")
	return nil
}
