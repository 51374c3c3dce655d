package accounts

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Mailer delivers account emails.
type Mailer interface {
	SendConfirmation(ctx context.Context, to, name, link string) error
}

// LogMailer writes confirmation links to the log instead of sending mail.
type LogMailer struct{}

func (LogMailer) SendConfirmation(_ context.Context, to, name, link string) error {
	log.Info().
		Str("to", to).
		Str("name", name).
		Str("link", link).
		Msg("Email confirmation link")
	return nil
}
