package notify

//go:generate mockgen -source=mailer.go -destination=mock_mailer_test.go -package=notify

import (
	"context"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Mailer is the outbound email collaborator. Address lookup for a user id is
// its concern.
type Mailer interface {
	Send(ctx context.Context, to domain.UserID, subject, body string) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to domain.UserID, subject, body string) error {
	log.Info().Str("module", "notify.mail").Int64("to", int64(to)).Str("subject", subject).Str("body", body).Msg("mail")
	return nil
}
