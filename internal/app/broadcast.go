package app

import (
	"fmt"

	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Broadcaster fans a frame out to the registered members of one room.
type Broadcaster struct {
	Registry *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{Registry: reg}
}

// Broadcast offers f to every member of room except exclude. Delivery is a
// non-blocking enqueue per peer; a peer that cannot take the frame is
// skipped and reported in Dropped.
func (b *Broadcaster) Broadcast(room domain.ProjectID, f core.Frame, exclude domain.ConnID) core.PublishResult {
	res := core.PublishResult{}
	for _, m := range b.Registry.MembersOf(room) {
		if m.ID() == exclude {
			continue
		}
		if err := deliver(m, f); err != nil {
			log.Debug().Err(err).Str("module", "app.broadcast").Str("cid", string(m.ID())).Msg("peer skipped")
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "app.broadcast").Str("project_id", room.String()).Str("from", string(exclude)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// deliver isolates one peer: a panicking transport counts as a failed send.
func deliver(m core.Connection, f core.Frame) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("send panic: %v", p)
		}
	}()
	return m.TrySend(f)
}
