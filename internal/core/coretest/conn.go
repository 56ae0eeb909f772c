// Package coretest provides an in-memory core.Connection for tests.
package coretest

import (
	"sync"

	"github.com/dkeye/Collab/internal/core"
	"github.com/dkeye/Collab/internal/domain"
)

// Conn records every frame it accepts. Set Full to simulate a stalled peer.
type Conn struct {
	id   domain.ConnID
	user *domain.User

	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
}

func NewConn(id string) *Conn {
	return &Conn{id: domain.ConnID(id)}
}

func NewUserConn(id string, user *domain.User) *Conn {
	return &Conn{id: domain.ConnID(id), user: user}
}

func (c *Conn) ID() domain.ConnID  { return c.id }
func (c *Conn) User() *domain.User { return c.user }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) SetFull(full bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.full = full
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Frames returns a copy of the accepted frames in arrival order.
func (c *Conn) Frames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.frames))
	for i, f := range c.frames {
		out[i] = string(f)
	}
	return out
}
