package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connect records a new connection in the Unjoined state.
func (o *Orchestrator) Connect(conn core.Connection) {
	o.Registry.Bind(conn)
}

// Join moves conn into project's room, leaving any previous room first.
// A connection that was never connected or has already disconnected gets
// core.ErrConnClosed.
func (o *Orchestrator) Join(ctx context.Context, conn core.Connection, project domain.ProjectID) error {
	if !project.Valid() {
		return app.ErrInvalidRoom
	}
	if o.Registry.State(conn.ID()) == app.StateClosed {
		return core.ErrConnClosed
	}
	if o.Projects != nil && !o.Registry.HasRoom(project) {
		exists, err := o.Projects.ProjectExists(ctx, project)
		if err != nil {
			return fmt.Errorf("lookup project %d: %w", project, err)
		}
		if !exists {
			return ErrUnknownProject
		}
	}

	prev, err := o.Registry.Register(conn, project)
	if err != nil {
		return err
	}
	if prev != 0 {
		log.Info().Str("module", "orch").Str("cid", string(conn.ID())).Str("from_room", prev.String()).Msg("left room on rejoin")
	}
	log.Info().Str("module", "orch").Str("cid", string(conn.ID())).Str("project_id", project.String()).Msg("joined room")
	return nil
}

// Leave drops room membership; the connection stays open and Unjoined.
func (o *Orchestrator) Leave(conn core.Connection) (domain.ProjectID, bool) {
	room, ok := o.Registry.Leave(conn.ID())
	if ok {
		log.Info().Str("module", "orch").Str("cid", string(conn.ID())).Str("project_id", room.String()).Msg("left room")
	}
	return room, ok
}

// OnDisconnect is the terminal transition. Safe to call more than once.
func (o *Orchestrator) OnDisconnect(conn core.Connection) {
	room, ok := o.Registry.Unregister(conn.ID())
	if ok {
		log.Info().Str("module", "orch").Str("cid", string(conn.ID())).Str("project_id", room.String()).Msg("disconnected from room")
	}
}

func (o *Orchestrator) kick(conn core.Connection) {
	o.Registry.Unregister(conn.ID())
	conn.Close()
}

// EvictRoom closes every member of project.
func (o *Orchestrator) EvictRoom(project domain.ProjectID) int {
	members := o.Registry.MembersOf(project)
	for _, m := range members {
		o.kick(m)
	}
	return len(members)
}
