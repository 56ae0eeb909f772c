package app

import (
	"fmt"

	"github.com/dkeye/Collab/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to a peer that could not take a frame.
type Policy interface {
	OnBackPressure(member core.Connection) BackpressureAction
}

// DropPolicy skips the peer for this frame only.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.Connection) BackpressureAction { return DropFrame }

// KickPolicy closes peers that stall.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.Connection) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}
