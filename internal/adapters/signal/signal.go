package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Collab/internal/app/orch"
	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	TypingLimit    int
	TypingInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:      32768,
		PingPeriod:     54 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      5 * time.Second,
		SendBuffer:     32,
		TypingLimit:    10,
		TypingInterval: time.Second,
	}
}

type SignalWSController struct {
	Orch   *orch.Orchestrator
	opts   Options
	typing *RateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	return &SignalWSController{
		Orch:   o,
		opts:   opts,
		typing: NewRateLimiter(opts.TypingLimit, opts.TypingInterval),
	}
}

// WsSignalConn is one upgraded socket. It implements core.Connection.
type WsSignalConn struct {
	id   domain.ConnID
	user *domain.User
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) ID() domain.ConnID  { return c.id }
func (c *WsSignalConn) User() *domain.User { return c.user }

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until either
// side closes it. user may be nil for anonymous sockets.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, user *domain.User) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		id:   domain.NewConnID(),
		user: user,
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}
	ev := log.Info().Str("module", "signal").Str("cid", string(conn.id))
	if user != nil {
		ev = ev.Int64("user_id", int64(user.ID))
	}
	ev.Msg("new WS connection")

	ctl.Orch.Connect(conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, conn)
}
