// Package notify delivers out-of-band messages to users, such as a
// temporary master key passphrase.
package notify

import (
	"context"
	"errors"
)

var (
	// ErrNoRecipients is returned when a send resolves to an empty list.
	ErrNoRecipients = errors.New("no recipients")
	// ErrDelivery wraps every transport failure.
	ErrDelivery = errors.New("message delivery failed")
)

// Mailer sends one message to a list of recipients.
type Mailer interface {
	SendMail(ctx context.Context, recipients []string, subject, body string) error
}
