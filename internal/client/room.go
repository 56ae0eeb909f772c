package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/dkeye/Collab/internal/protocol"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// RoomConn is one collaboration socket. Writes are safe for concurrent use;
// Next must be called from a single goroutine.
type RoomConn struct {
	ws  *websocket.Conn
	wmu sync.Mutex
}

// Dial opens a socket carrying the client's session.
func (c *Client) Dial(ctx context.Context) (*RoomConn, error) {
	d := websocket.Dialer{Jar: c.http.Jar, HandshakeTimeout: 10 * time.Second}
	url := "ws" + strings.TrimPrefix(c.base, "http") + "/api/ws"
	ws, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &RoomConn{ws: ws}, nil
}

func (r *RoomConn) send(env protocol.Envelope) error {
	b, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()
	_ = r.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return r.ws.WriteMessage(websocket.TextMessage, b)
}

// Join asks to enter a project room. The outcome arrives through Next as
// project-joined or error.
func (r *RoomConn) Join(project domain.ProjectID) error {
	return r.send(protocol.Envelope{Type: protocol.TypeJoinProject, ProjectID: project})
}

func (r *RoomConn) Leave(project domain.ProjectID) error {
	return r.send(protocol.Envelope{Type: protocol.TypeLeaveProject, ProjectID: project})
}

func (r *RoomConn) SendComment(project domain.ProjectID, comment json.RawMessage) error {
	return r.send(protocol.Envelope{Type: protocol.TypeNewComment, ProjectID: project, Comment: comment})
}

// SendTyping announces activity. The server fills in the session user.
func (r *RoomConn) SendTyping(project domain.ProjectID) error {
	return r.send(protocol.Envelope{Type: protocol.TypeUserTyping, ProjectID: project})
}

func (r *RoomConn) Ping() error {
	return r.send(protocol.Envelope{Type: protocol.TypePing})
}

// Next blocks for the next envelope or until ctx is done. Once ctx has
// interrupted a read the socket is unusable and must be closed.
func (r *RoomConn) Next(ctx context.Context) (protocol.Envelope, error) {
	_ = r.ws.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = r.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := r.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Envelope{}, ctx.Err()
		}
		return protocol.Envelope{}, err
	}
	return protocol.Decode(data)
}

func (r *RoomConn) Close() error {
	r.wmu.Lock()
	_ = r.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	r.wmu.Unlock()
	return r.ws.Close()
}
