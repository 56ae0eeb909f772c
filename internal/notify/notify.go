// Package notify delivers best-effort mention notifications. Nothing here
// ever reports back to the request that triggered it.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

const defaultTimeout = 10 * time.Second

type Notifier struct {
	mailer   Mailer
	timeout  time.Duration
	inflight conc.WaitGroup
}

func New(m Mailer) *Notifier {
	return &Notifier{mailer: m, timeout: defaultTimeout}
}

// CommentPosted schedules one mail per mentioned user and returns at once.
// The author is never notified of their own mention and duplicates collapse.
func (n *Notifier) CommentPosted(c domain.Comment) {
	to := recipients(c)
	if len(to) == 0 {
		return
	}
	n.inflight.Go(func() { n.deliver(c, to) })
}

// Wait blocks until every scheduled delivery has settled.
func (n *Notifier) Wait() {
	if r := n.inflight.WaitAndRecover(); r != nil {
		log.Error().Str("module", "notify").Str("panic", r.String()).Msg("notification dispatcher panicked")
	}
}

func (n *Notifier) deliver(c domain.Comment, to []domain.UserID) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	subject := fmt.Sprintf("%s mentioned you in project %d", c.Author.Username, c.ProjectID)
	body := fmt.Sprintf("%s mentioned you in a comment on project %d.", c.Author.Username, c.ProjectID)

	var wg conc.WaitGroup
	for _, uid := range to {
		wg.Go(func() {
			if err := n.mailer.Send(ctx, uid, subject, body); err != nil {
				log.Warn().Err(err).Str("module", "notify").Int64("to", int64(uid)).Int64("comment", c.ID).Msg("mention mail failed")
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		log.Error().Str("module", "notify").Int64("comment", c.ID).Str("panic", r.String()).Msg("mailer panicked")
	}
}

func recipients(c domain.Comment) []domain.UserID {
	seen := make(map[domain.UserID]struct{}, len(c.Mentions))
	out := make([]domain.UserID, 0, len(c.Mentions))
	for _, uid := range c.Mentions {
		if uid <= 0 || uid == c.Author.ID {
			continue
		}
		if _, dup := seen[uid]; dup {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	return out
}
