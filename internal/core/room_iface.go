package core

import (
	"context"

	"github.com/dkeye/Collab/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []Connection
}

type RoomInfo struct {
	ProjectID   domain.ProjectID `json:"projectId"`
	MemberCount int              `json:"memberCount"`
}

// ProjectLookup is consulted before a join when project validation is enabled.
type ProjectLookup interface {
	ProjectExists(ctx context.Context, id domain.ProjectID) (bool, error)
}
