package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dkeye/Collab/internal/app/orch"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/dkeye/Collab/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Repository is the slice of the persistence collaborator the REST API uses.
type Repository interface {
	CreateProject(ctx context.Context, name string) (domain.Project, error)
	GetProject(ctx context.Context, id domain.ProjectID) (domain.Project, error)
	SaveDescription(ctx context.Context, id domain.ProjectID, content json.RawMessage, by domain.UserID) (domain.Description, error)
	GetDescription(ctx context.Context, id domain.ProjectID) (domain.Description, error)
	AddComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	ListComments(ctx context.Context, id domain.ProjectID) ([]domain.Comment, error)
}

type CommentNotifier interface {
	CommentPosted(c domain.Comment)
}

type Handlers struct {
	Repo     Repository
	Notifier CommentNotifier
	Orch     *orch.Orchestrator
	// AllowAnonymousWrites lets unauthenticated clients save descriptions.
	// Such writes are recorded with UpdatedBy zero.
	AllowAnonymousWrites bool
}

type projectRequest struct {
	Name string `json:"name" binding:"required,max=200"`
}

type descriptionRequest struct {
	Content json.RawMessage `json:"content" binding:"required"`
}

type commentRequest struct {
	Body     json.RawMessage `json:"body" binding:"required"`
	Mentions []domain.UserID `json:"mentions"`
}

func projectParam(c *gin.Context) (domain.ProjectID, bool) {
	id, err := domain.ParseProjectID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_project_id"})
		return 0, false
	}
	return id, true
}

func (h *Handlers) fail(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func (h *Handlers) health(c *gin.Context) {
	rooms, conns := h.Orch.Registry.Stats()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": rooms, "connections": conns})
}

func (h *Handlers) createProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
		return
	}
	p, err := h.Repo.CreateProject(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handlers) getProject(c *gin.Context) {
	id, ok := projectParam(c)
	if !ok {
		return
	}
	p, err := h.Repo.GetProject(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handlers) getDescription(c *gin.Context) {
	id, ok := projectParam(c)
	if !ok {
		return
	}
	d, err := h.Repo.GetDescription(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// putDescription overwrites the stored document. Concurrent editors are not
// reconciled: whichever request lands last wins.
func (h *Handlers) putDescription(c *gin.Context) {
	id, ok := projectParam(c)
	if !ok {
		return
	}
	var by domain.UserID
	if u, ok := CurrentUser(c); ok {
		by = u.ID
	} else if !h.AllowAnonymousWrites {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req descriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil || !json.Valid(req.Content) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content"})
		return
	}
	d, err := h.Repo.SaveDescription(c.Request.Context(), id, req.Content, by)
	if err != nil {
		h.fail(c, err)
		return
	}
	log.Debug().Str("module", "adapters.http").Str("project_id", id.String()).Int64("by", int64(by)).Msg("description saved")
	c.JSON(http.StatusOK, d)
}

func (h *Handlers) listComments(c *gin.Context) {
	id, ok := projectParam(c)
	if !ok {
		return
	}
	list, err := h.Repo.ListComments(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

func (h *Handlers) postComment(c *gin.Context) {
	id, ok := projectParam(c)
	if !ok {
		return
	}
	u, _ := CurrentUser(c)

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil || !json.Valid(req.Body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment"})
		return
	}
	cm, err := h.Repo.AddComment(c.Request.Context(), domain.Comment{
		ProjectID: id,
		Author:    *u,
		Body:      req.Body,
		Mentions:  req.Mentions,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if h.Notifier != nil {
		h.Notifier.CommentPosted(cm)
	}
	c.JSON(http.StatusCreated, cm)
}
