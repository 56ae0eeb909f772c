package http

import (
	"net/http"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionName     = "CollabSessions"
	sessionUserID   = "user_id"
	sessionUsername = "username"
	ctxUserKey      = "user"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a long-lived opaque token,
// used only to correlate log lines.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// IdentityMiddleware resolves the authenticated user from the cookie
// session. Authentication itself happens elsewhere; this only reads what it
// left behind.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		id, _ := s.Get(sessionUserID).(int64)
		name, _ := s.Get(sessionUsername).(string)
		if u, err := domain.NewUser(domain.UserID(id), name); err == nil {
			c.Set(ctxUserKey, u)
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok
}

// RequireUser rejects requests without an authenticated user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Next()
	}
}

type sessionRequest struct {
	UserID   int64  `json:"userId" binding:"required,gt=0"`
	Username string `json:"username" binding:"required"`
}

// login stores an identity in the session. Only mounted in debug mode; in
// production the authentication service writes the session.
func login(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session request"})
		return
	}
	u, err := domain.NewUser(domain.UserID(req.UserID), req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionUserID, int64(u.ID))
	s.Set(sessionUsername, u.Username)
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_save"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func logout(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	_ = s.Save()
	c.Status(http.StatusNoContent)
}

func whoami(c *gin.Context) {
	u, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, u)
}
