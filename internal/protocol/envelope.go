// Package protocol defines the JSON envelope exchanged over the collaboration
// socket. Comment and user payloads are opaque and relayed byte for byte.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/dkeye/Collab/internal/domain"
)

// Client to server.
const (
	TypeJoinProject  = "join-project"
	TypeLeaveProject = "leave-project"
	TypeNewComment   = "new-comment"
	TypeUserTyping   = "user-typing"
	TypePing         = "ping"
)

// Server to client. user-typing is relayed under its own name.
const (
	TypeCommentAdded  = "comment-added"
	TypeProjectJoined = "project-joined"
	TypeProjectLeft   = "project-left"
	TypePong          = "pong"
	TypeError         = "error"
)

// Error codes carried in Envelope.Error.
const (
	ErrCodeBadPayload     = "bad_payload"
	ErrCodeInvalidProject = "invalid_project"
	ErrCodeUnknownProject = "unknown_project"
	ErrCodeInternal       = "internal_error"
)

var ErrMissingType = errors.New("protocol: missing message type")

type Envelope struct {
	Type      string           `json:"type"`
	ProjectID domain.ProjectID `json:"projectId,omitempty"`
	Comment   json.RawMessage  `json:"comment,omitempty"`
	User      json.RawMessage  `json:"user,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Present reports whether an opaque field carries a value other than null.
func Present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func CommentAdded(project domain.ProjectID, comment json.RawMessage) Envelope {
	return Envelope{Type: TypeCommentAdded, ProjectID: project, Comment: comment}
}

func UserTyping(project domain.ProjectID, user json.RawMessage) Envelope {
	return Envelope{Type: TypeUserTyping, ProjectID: project, User: user}
}

func Error(code string) Envelope {
	return Envelope{Type: TypeError, Error: code}
}
