package domain

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var ErrInvalidProjectID = errors.New("invalid project id")

// ProjectID keys both the persisted project and its live room.
type ProjectID int64

func (id ProjectID) Valid() bool { return id > 0 }

func (id ProjectID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseProjectID accepts only positive decimal integers.
func ParseProjectID(s string) (ProjectID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidProjectID
	}
	return ProjectID(n), nil
}

type Project struct {
	ID        ProjectID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Description is the rich-text document of a project. Content is an opaque
// document tree and is passed through untouched.
type Description struct {
	ProjectID ProjectID       `json:"projectId"`
	Content   json.RawMessage `json:"content"`
	UpdatedBy UserID          `json:"updatedBy"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type Comment struct {
	ID        int64           `json:"id"`
	ProjectID ProjectID       `json:"projectId"`
	Author    User            `json:"author"`
	Body      json.RawMessage `json:"body"`
	Mentions  []UserID        `json:"mentions,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
