package core

import (
	"errors"

	"github.com/dkeye/Collab/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded message ready for the wire.
type Frame []byte

// Connection abstracts one live duplex link to a client.
// Owned by the adapter; the adapter must Close() it.
type Connection interface {
	ID() domain.ConnID
	// User is the identity the connection was opened with, nil when anonymous.
	User() *domain.User
	// TrySend queues f without blocking. It returns ErrBackpressure when the
	// peer buffer is full and ErrConnClosed after Close.
	TrySend(f Frame) error
	Close()
}
