package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	collabhttp "github.com/dkeye/Collab/internal/adapters/http"
	"github.com/dkeye/Collab/internal/app"
	"github.com/dkeye/Collab/internal/app/orch"
	"github.com/dkeye/Collab/internal/autosave"
	"github.com/dkeye/Collab/internal/client"
	"github.com/dkeye/Collab/internal/config"
	"github.com/dkeye/Collab/internal/domain"
	"github.com/dkeye/Collab/internal/protocol"
	"github.com/dkeye/Collab/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.LoadFile(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	cfg.Mode = "debug"
	cfg.Secret = "test-secret"
	cfg.StaticPath = dir

	st, err := store.Open(filepath.Join(dir, "collab.db"))
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	r := collabhttp.SetupRouter(ctx, cfg, &collabhttp.Handlers{
		Repo: st,
		Orch: orch.New(app.NewRegistry(), app.DropPolicy{}, st),
	})
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = st.Close()
	})
	return srv.URL
}

func loggedIn(t *testing.T, url string, id domain.UserID, name string) *client.Client {
	t.Helper()
	c, err := client.New(url)
	require.NoError(t, err)
	_, err = c.Login(context.Background(), id, name)
	require.NoError(t, err)
	return c
}

func TestClient_REST(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()
	c := loggedIn(t, url, 7, "ada")

	p, err := c.CreateProject(ctx, "roadmap")
	require.NoError(t, err)

	_, err = c.Description(ctx, p.ID)
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "not_found", apiErr.Code)

	require.NoError(t, c.Save(ctx, p.ID, []byte(`{"type":"doc","text":"hello"}`)))
	d, err := c.Description(ctx, p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"doc","text":"hello"}`, string(d.Content))

	assert.Error(t, c.Save(ctx, p.ID, []byte(`not json`)))

	cm, err := c.PostComment(ctx, p.ID, json.RawMessage(`{"text":"first"}`), []domain.UserID{8})
	require.NoError(t, err)
	list, err := c.Comments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cm.ID, list[0].ID)
}

func TestClient_AnonymousWriteRejected(t *testing.T) {
	url := newServer(t)
	owner := loggedIn(t, url, 7, "ada")
	p, err := owner.CreateProject(context.Background(), "roadmap")
	require.NoError(t, err)

	anon, err := client.New(url)
	require.NoError(t, err)
	err = anon.Save(context.Background(), p.ID, []byte(`{}`))
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
}

func next(t *testing.T, rc *client.RoomConn) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := rc.Next(ctx)
	require.NoError(t, err)
	return env
}

func TestClient_RoomConn(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()
	ada, bob := loggedIn(t, url, 7, "ada"), loggedIn(t, url, 8, "bob")
	p, err := ada.CreateProject(ctx, "roadmap")
	require.NoError(t, err)

	r1, err := ada.Dial(ctx)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := bob.Dial(ctx)
	require.NoError(t, err)
	defer r2.Close()

	for _, rc := range []*client.RoomConn{r1, r2} {
		require.NoError(t, rc.Join(p.ID))
		require.Equal(t, protocol.TypeProjectJoined, next(t, rc).Type)
	}

	require.NoError(t, r1.SendComment(p.ID, json.RawMessage(`{"text":"hi"}`)))
	env := next(t, r2)
	assert.Equal(t, protocol.TypeCommentAdded, env.Type)
	assert.JSONEq(t, `{"text":"hi"}`, string(env.Comment))

	require.NoError(t, r2.SendTyping(p.ID))
	env = next(t, r1)
	assert.Equal(t, protocol.TypeUserTyping, env.Type)
	assert.JSONEq(t, `{"id":8,"username":"bob"}`, string(env.User))

	require.NoError(t, r1.Leave(p.ID))
	assert.Equal(t, protocol.TypeProjectLeft, next(t, r1).Type)

	require.NoError(t, r1.Ping())
	assert.Equal(t, protocol.TypePong, next(t, r1).Type)
}

func TestClient_NextStopsOnContext(t *testing.T) {
	url := newServer(t)
	c := loggedIn(t, url, 7, "ada")
	rc, err := c.Dial(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = rc.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_AutosaveThroughAPI(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()
	c := loggedIn(t, url, 7, "ada")
	p, err := c.CreateProject(ctx, "roadmap")
	require.NoError(t, err)

	co := autosave.New(p.ID, c, autosave.Options{Quiet: 20 * time.Millisecond, Timeout: 2 * time.Second})
	co.Edit([]byte(`{"text":"a"}`))
	co.Edit([]byte(`{"text":"ab"}`))
	co.Edit([]byte(`{"text":"abc"}`))

	require.Eventually(t, func() bool { return co.Status() == autosave.StatusSaved }, 2*time.Second, 10*time.Millisecond)
	d, err := c.Description(ctx, p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"abc"}`, string(d.Content))

	co.Edit([]byte(`{"text":"abcd"}`))
	require.NoError(t, co.Save(ctx))
	d, err = c.Description(ctx, p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"abcd"}`, string(d.Content))
	require.NoError(t, co.Close(ctx))
}
