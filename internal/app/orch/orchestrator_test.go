package orch

import (
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/core/coretest"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type projectSet struct {
	ids   map[domain.ProjectID]bool
	err   error
	calls int
}

func (p *projectSet) ProjectExists(_ context.Context, id domain.ProjectID) (bool, error) {
	p.calls++
	return p.ids[id], p.err
}

func newOrch(projects core.ProjectLookup) *Orchestrator {
	return New(app.NewRegistry(), app.DropPolicy{}, projects)
}

// connect opens a fake connection the way the socket adapter does on upgrade.
func connect(o *Orchestrator, id string) *coretest.Conn {
	c := coretest.NewConn(id)
	o.Connect(c)
	return c
}

func TestOrchestrator_StateMachine(t *testing.T) {
	o := newOrch(nil)
	c := connect(o, "c1")
	ctx := context.Background()

	o.Connect(c)
	assert.Equal(t, app.StateUnjoined, o.State(c.ID()))

	require.NoError(t, o.Join(ctx, c, 42))
	assert.Equal(t, app.StateJoined, o.State(c.ID()))

	o.OnDisconnect(c)
	assert.Equal(t, app.StateClosed, o.State(c.ID()))
	assert.False(t, o.Registry.HasRoom(42))

	// idempotent
	o.OnDisconnect(c)
	assert.Equal(t, app.StateClosed, o.State(c.ID()))
}

func TestOrchestrator_Relay(t *testing.T) {
	ctx := context.Background()

	t.Run("unjoined sender is dropped", func(t *testing.T) {
		o := newOrch(nil)
		s, peer := connect(o, "s"), connect(o, "p")
		o.Connect(s)
		require.NoError(t, o.Join(ctx, peer, 42))

		_, err := o.Relay(s, 42, core.Frame("x"))
		assert.ErrorIs(t, err, ErrNotMember)
		assert.Empty(t, peer.Frames())
	})

	t.Run("room id spoofing is not honored", func(t *testing.T) {
		o := newOrch(nil)
		s, victim := connect(o, "s"), connect(o, "v")
		require.NoError(t, o.Join(ctx, s, 1))
		require.NoError(t, o.Join(ctx, victim, 2))

		_, err := o.Relay(s, 2, core.Frame("x"))
		assert.ErrorIs(t, err, ErrNotMember)
		assert.Empty(t, victim.Frames())
	})

	t.Run("member reaches peers but not itself", func(t *testing.T) {
		o := newOrch(nil)
		s, peer := connect(o, "s"), connect(o, "p")
		require.NoError(t, o.Join(ctx, s, 42))
		require.NoError(t, o.Join(ctx, peer, 42))

		res, err := o.Relay(s, 42, core.Frame("x"))
		require.NoError(t, err)
		assert.Equal(t, 1, res.SendTo)
		assert.Equal(t, []string{"x"}, peer.Frames())
		assert.Empty(t, s.Frames())
	})
}

func TestOrchestrator_KickPolicyClosesStalledPeer(t *testing.T) {
	o := New(app.NewRegistry(), app.KickPolicy{}, nil)
	ctx := context.Background()
	s, slow := connect(o, "s"), connect(o, "slow")
	require.NoError(t, o.Join(ctx, s, 1))
	require.NoError(t, o.Join(ctx, slow, 1))
	slow.SetFull(true)

	_, err := o.Relay(s, 1, core.Frame("x"))
	require.NoError(t, err)

	assert.True(t, slow.Closed())
	assert.Equal(t, app.StateClosed, o.State(slow.ID()))
}

func TestOrchestrator_DropPolicyKeepsStalledPeer(t *testing.T) {
	o := newOrch(nil)
	ctx := context.Background()
	s, slow := connect(o, "s"), connect(o, "slow")
	require.NoError(t, o.Join(ctx, s, 1))
	require.NoError(t, o.Join(ctx, slow, 1))
	slow.SetFull(true)

	_, err := o.Relay(s, 1, core.Frame("x"))
	require.NoError(t, err)

	assert.False(t, slow.Closed())
	assert.Equal(t, app.StateJoined, o.State(slow.ID()))
}

func TestOrchestrator_JoinValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid id", func(t *testing.T) {
		o := newOrch(nil)
		assert.ErrorIs(t, o.Join(ctx, connect(o, "c"), 0), app.ErrInvalidRoom)
	})

	t.Run("unknown project", func(t *testing.T) {
		o := newOrch(&projectSet{ids: map[domain.ProjectID]bool{1: true}})
		assert.ErrorIs(t, o.Join(ctx, connect(o, "c"), 2), ErrUnknownProject)
		assert.False(t, o.Registry.HasRoom(2))
	})

	t.Run("lookup error", func(t *testing.T) {
		o := newOrch(&projectSet{err: errors.New("db down")})
		err := o.Join(ctx, connect(o, "c"), 1)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnknownProject)
	})

	t.Run("live room skips lookup", func(t *testing.T) {
		p := &projectSet{ids: map[domain.ProjectID]bool{1: true}}
		o := newOrch(p)
		require.NoError(t, o.Join(ctx, connect(o, "a"), 1))
		require.NoError(t, o.Join(ctx, connect(o, "b"), 1))
		assert.Equal(t, 1, p.calls)
	})
}

func TestOrchestrator_RejoinAndLeave(t *testing.T) {
	o := newOrch(nil)
	ctx := context.Background()
	c := connect(o, "c")

	require.NoError(t, o.Join(ctx, c, 1))
	require.NoError(t, o.Join(ctx, c, 2))
	assert.False(t, o.Registry.HasRoom(1))
	room, _ := o.Registry.RoomOf(c.ID())
	assert.Equal(t, domain.ProjectID(2), room)

	left, ok := o.Leave(c)
	assert.True(t, ok)
	assert.Equal(t, domain.ProjectID(2), left)
	assert.Equal(t, app.StateUnjoined, o.State(c.ID()))
}

func TestOrchestrator_EvictRoom(t *testing.T) {
	o := newOrch(nil)
	ctx := context.Background()
	a, b := connect(o, "a"), connect(o, "b")
	require.NoError(t, o.Join(ctx, a, 3))
	require.NoError(t, o.Join(ctx, b, 3))

	assert.Equal(t, 2, o.EvictRoom(3))
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.False(t, o.Registry.HasRoom(3))
}

func TestOrchestrator_JoinAfterDisconnectFails(t *testing.T) {
	ctx := context.Background()

	t.Run("disconnected", func(t *testing.T) {
		p := &projectSet{ids: map[domain.ProjectID]bool{5: true}}
		o := newOrch(p)
		c := connect(o, "c")
		o.OnDisconnect(c)
		c.Close()

		assert.ErrorIs(t, o.Join(ctx, c, 5), core.ErrConnClosed)
		assert.Empty(t, o.Registry.MembersOf(5))
		assert.False(t, o.Registry.HasRoom(5))
		assert.Equal(t, app.StateClosed, o.State(c.ID()))
		assert.Zero(t, p.calls, "closed connection must not reach the project lookup")
	})

	t.Run("never connected", func(t *testing.T) {
		o := newOrch(nil)
		assert.ErrorIs(t, o.Join(ctx, coretest.NewConn("stray"), 5), core.ErrConnClosed)
		assert.False(t, o.Registry.HasRoom(5))
	})

	t.Run("kicked peer cannot rejoin", func(t *testing.T) {
		o := New(app.NewRegistry(), app.KickPolicy{}, nil)
		s, slow := connect(o, "s"), connect(o, "slow")
		require.NoError(t, o.Join(ctx, s, 1))
		require.NoError(t, o.Join(ctx, slow, 1))
		slow.SetFull(true)

		_, err := o.Relay(s, 1, core.Frame("x"))
		require.NoError(t, err)
		require.True(t, slow.Closed())

		// A join frame read before the kick lands afterwards.
		assert.ErrorIs(t, o.Join(ctx, slow, 2), core.ErrConnClosed)
		assert.False(t, o.Registry.HasRoom(2))
		assert.Equal(t, []domain.ConnID{"s"}, memberIDs(o, 1))
	})
}

func memberIDs(o *Orchestrator, room domain.ProjectID) []domain.ConnID {
	var out []domain.ConnID
	for _, m := range o.Registry.MembersOf(room) {
		out = append(out, m.ID())
	}
	return out
}
