package store_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/dkeye/Collab/internal/domain"
	"github.com/dkeye/Collab/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "collab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "collab.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	p, err := s.CreateProject(context.Background(), "alpha")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = store.Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Name)
}

func TestProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "roadmap")
	require.NoError(t, err)
	assert.True(t, p.ID.Valid())

	ok, err := s.ProjectExists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ProjectExists(ctx, p.ID+100)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetProject(ctx, p.ID+100)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDescriptions_LastWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "doc")
	require.NoError(t, err)

	_, err = s.GetDescription(ctx, p.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.SaveDescription(ctx, p.ID, json.RawMessage(`{"type":"doc","text":"first"}`), 1)
	require.NoError(t, err)
	_, err = s.SaveDescription(ctx, p.ID, json.RawMessage(`{"type":"doc","text":"second"}`), 2)
	require.NoError(t, err)

	d, err := s.GetDescription(ctx, p.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"doc","text":"second"}`, string(d.Content))
	assert.Equal(t, domain.UserID(2), d.UpdatedBy)
	assert.False(t, d.UpdatedAt.IsZero())
}

func TestDescriptions_UnknownProject(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SaveDescription(context.Background(), 77, json.RawMessage(`{}`), 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "c")
	require.NoError(t, err)

	author := domain.User{ID: 3, Username: "ann"}
	first, err := s.AddComment(ctx, domain.Comment{
		ProjectID: p.ID,
		Author:    author,
		Body:      json.RawMessage(`{"text":"hi @bob"}`),
		Mentions:  []domain.UserID{4},
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	_, err = s.AddComment(ctx, domain.Comment{ProjectID: p.ID, Author: author, Body: json.RawMessage(`{"text":"again"}`)})
	require.NoError(t, err)

	list, err := s.ListComments(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, author, list[0].Author)
	assert.Equal(t, []domain.UserID{4}, list[0].Mentions)
	assert.JSONEq(t, `{"text":"again"}`, string(list[1].Body))

	_, err = s.AddComment(ctx, domain.Comment{ProjectID: p.ID + 1, Author: author, Body: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
