package orch

import (
	"errors"

	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotMember      = errors.New("sender is not a member of the room")
	ErrUnknownProject = errors.New("unknown project")
)

// Orchestrator drives the per-connection state machine
// Unjoined -> Joined -> Closed on top of the shared registry.
type Orchestrator struct {
	Registry    *app.Registry
	Broadcaster *app.Broadcaster
	Policy      app.Policy
	// Projects validates join targets; nil accepts any positive id.
	Projects core.ProjectLookup
}

func New(reg *app.Registry, policy app.Policy, projects core.ProjectLookup) *Orchestrator {
	return &Orchestrator{
		Registry:    reg,
		Broadcaster: app.NewBroadcaster(reg),
		Policy:      policy,
		Projects:    projects,
	}
}

// Relay fans f out to the other members of project. The sender must already
// be joined to exactly that project; a room id in the message alone is never
// enough to reach its members.
func (o *Orchestrator) Relay(from core.Connection, project domain.ProjectID, f core.Frame) (core.PublishResult, error) {
	room, ok := o.Registry.RoomOf(from.ID())
	if !ok || room != project {
		log.Debug().Str("module", "orch").Str("cid", string(from.ID())).Str("project_id", project.String()).Msg("relay from non-member dropped")
		return core.PublishResult{}, ErrNotMember
	}

	res := o.Broadcaster.Broadcast(room, f, from.ID())
	if o.Policy == nil {
		return res, nil
	}
	for _, slow := range res.Dropped {
		switch o.Policy.OnBackPressure(slow) {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("cid", string(slow.ID())).Msg("kicking stalled peer")
			o.kick(slow)
		case app.MarkSlow, app.DropFrame, app.NoAction:
		}
	}
	return res, nil
}

func (o *Orchestrator) State(cid domain.ConnID) app.State {
	return o.Registry.State(cid)
}
