package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrInvalidRoom = errors.New("room id must be a positive project id")

// State is the lifecycle position of a connection as seen by the registry.
type State int

const (
	StateClosed State = iota
	StateUnjoined
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	default:
		return "closed"
	}
}

type connEntry struct {
	conn core.Connection
	room domain.ProjectID // zero until joined
}

// Registry maps rooms to their member connections and each connection back
// to its room. It is the only shared mutable state of the relay; every
// mutation happens under mu.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
	rooms map[domain.ProjectID]map[domain.ConnID]core.Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
		rooms: make(map[domain.ProjectID]map[domain.ConnID]core.Connection),
	}
}

// Bind records a freshly handshaken connection that has not joined a room yet.
func (r *Registry) Bind(conn core.Connection) {
	mustConn(conn)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = &connEntry{conn: conn}
	log.Debug().Str("module", "app.registry").Str("cid", string(conn.ID())).Msg("bound connection")
}

// Register places conn into room. Any previous membership is replaced, so a
// connection is never a member of two rooms. Registering into the current
// room is a no-op. prev is the room the connection left, zero if none.
// conn must be bound; once unregistered it stays out with core.ErrConnClosed.
func (r *Registry) Register(conn core.Connection, room domain.ProjectID) (prev domain.ProjectID, err error) {
	mustConn(conn)
	if !room.Valid() {
		return 0, ErrInvalidRoom
	}
	cid := conn.ID()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return 0, core.ErrConnClosed
	}
	if e.room == room {
		return 0, nil
	}
	prev = e.room
	if prev != 0 {
		r.removeFromRoomLocked(cid, prev)
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]core.Connection)
		r.rooms[room] = members
		log.Debug().Str("module", "app.registry").Str("project_id", room.String()).Msg("room created")
	}
	members[cid] = conn
	e.room = room
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("project_id", room.String()).Int("members", len(members)).Msg("registered")
	return prev, nil
}

// Leave drops the room membership of cid but keeps the connection bound.
func (r *Registry) Leave(cid domain.ConnID) (domain.ProjectID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok || e.room == 0 {
		return 0, false
	}
	room := e.room
	r.removeFromRoomLocked(cid, room)
	e.room = 0
	return room, true
}

// Unregister forgets cid entirely. It is a no-op for unknown connections.
func (r *Registry) Unregister(cid domain.ConnID) (domain.ProjectID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return 0, false
	}
	delete(r.conns, cid)
	if e.room != 0 {
		r.removeFromRoomLocked(cid, e.room)
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unregistered")
	return e.room, e.room != 0
}

// removeFromRoomLocked deletes the room once its last member is gone.
func (r *Registry) removeFromRoomLocked(cid domain.ConnID, room domain.ProjectID) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, cid)
	if len(members) == 0 {
		delete(r.rooms, room)
		log.Debug().Str("module", "app.registry").Str("project_id", room.String()).Msg("room removed")
	}
}

func (r *Registry) RoomOf(cid domain.ConnID) (domain.ProjectID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok || e.room == 0 {
		return 0, false
	}
	return e.room, true
}

func (r *Registry) State(cid domain.ConnID) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	switch {
	case !ok:
		return StateClosed
	case e.room == 0:
		return StateUnjoined
	default:
		return StateJoined
	}
}

// MembersOf returns a snapshot of the room; callers may send without holding
// the registry lock.
func (r *Registry) MembersOf(room domain.ProjectID) []core.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]core.Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) HasRoom(room domain.ProjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room]
	return ok
}

func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		out = append(out, core.RoomInfo{ProjectID: id, MemberCount: len(members)})
	}
	return out
}

func (r *Registry) Stats() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}

func mustConn(conn core.Connection) {
	if conn == nil {
		panic("app.registry: nil connection")
	}
}
