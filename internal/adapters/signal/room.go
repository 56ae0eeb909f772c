package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/app/orch"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/protocol"
	"github.com/rs/zerolog/log"
)

const joinTimeout = 5 * time.Second

func (ctl *SignalWSController) handleJoin(ctx context.Context, conn *WsSignalConn, env protocol.Envelope) {
	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	err := ctl.Orch.Join(ctx, conn, env.ProjectID)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrConnClosed):
		return
	case errors.Is(err, app.ErrInvalidRoom):
		ctl.sendJSON(conn, protocol.Error(protocol.ErrCodeInvalidProject))
		return
	case errors.Is(err, orch.ErrUnknownProject):
		ctl.sendJSON(conn, protocol.Error(protocol.ErrCodeUnknownProject))
		return
	default:
		log.Error().Err(err).Str("module", "signal").Str("cid", string(conn.id)).Msg("join failed")
		ctl.sendJSON(conn, protocol.Error(protocol.ErrCodeInternal))
		return
	}

	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypeProjectJoined, ProjectID: env.ProjectID})
}

// handleLeave: выход из текущей комнаты, соединение при этом не рвётся.
func (ctl *SignalWSController) handleLeave(conn *WsSignalConn) {
	room, ok := ctl.Orch.Leave(conn)
	if !ok {
		return
	}
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypeProjectLeft, ProjectID: room})
}

func (ctl *SignalWSController) handleComment(conn *WsSignalConn, env protocol.Envelope) {
	if !protocol.Present(env.Comment) {
		log.Error().Str("module", "signal").Str("cid", string(conn.id)).Msg("comment without payload")
		ctl.sendJSON(conn, protocol.Error(protocol.ErrCodeBadPayload))
		return
	}
	ctl.relay(conn, protocol.CommentAdded(env.ProjectID, env.Comment))
}

// handleTyping charges the rate limit only for frames that would be relayed.
func (ctl *SignalWSController) handleTyping(conn *WsSignalConn, env protocol.Envelope) {
	if room, ok := ctl.Orch.Registry.RoomOf(conn.id); !ok || room != env.ProjectID {
		return
	}
	if !ctl.typing.Allow(conn.id) {
		return
	}
	user := env.User
	if !protocol.Present(user) {
		if conn.user == nil {
			ctl.sendJSON(conn, protocol.Error(protocol.ErrCodeBadPayload))
			return
		}
		b, err := json.Marshal(conn.user)
		if err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("stamp typing user")
			return
		}
		user = b
	}
	ctl.relay(conn, protocol.UserTyping(env.ProjectID, user))
}

// relay drops frames from non-members silently.
func (ctl *SignalWSController) relay(conn *WsSignalConn, env protocol.Envelope) {
	b, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("relay marshal")
		return
	}
	if _, err := ctl.Orch.Relay(conn, env.ProjectID, b); err != nil && !errors.Is(err, orch.ErrNotMember) {
		log.Error().Err(err).Str("module", "signal").Str("cid", string(conn.id)).Msg("relay failed")
	}
}
