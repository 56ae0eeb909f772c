// Package client talks to a collab server over its REST API and socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/dkeye/Collab/internal/domain"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("collab api: http %d", e.Status)
	}
	return fmt.Sprintf("collab api: http %d: %s", e.Status, e.Code)
}

type Client struct {
	base string
	http *http.Client
}

// New returns a client for the server at base, e.g. "http://localhost:8080".
// The session cookie is kept in a private jar and reused by Dial.
func New(base string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Code: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Login opens a session. Only debug servers accept it.
func (c *Client) Login(ctx context.Context, id domain.UserID, username string) (domain.User, error) {
	var u domain.User
	err := c.do(ctx, http.MethodPost, "/api/session", map[string]any{"userId": id, "username": username}, &u)
	return u, err
}

func (c *Client) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	var p domain.Project
	err := c.do(ctx, http.MethodPost, "/api/projects", map[string]string{"name": name}, &p)
	return p, err
}

func (c *Client) Description(ctx context.Context, id domain.ProjectID) (domain.Description, error) {
	var d domain.Description
	err := c.do(ctx, http.MethodGet, "/api/projects/"+id.String()+"/description", nil, &d)
	return d, err
}

// Save overwrites the project description with content, which must be a
// JSON document. It satisfies autosave.Persister.
func (c *Client) Save(ctx context.Context, id domain.ProjectID, content []byte) error {
	if !json.Valid(content) {
		return fmt.Errorf("collab api: description of project %s is not valid json", id)
	}
	body := struct {
		Content json.RawMessage `json:"content"`
	}{Content: content}
	return c.do(ctx, http.MethodPut, "/api/projects/"+id.String()+"/description", body, nil)
}

func (c *Client) PostComment(ctx context.Context, id domain.ProjectID, body json.RawMessage, mentions []domain.UserID) (domain.Comment, error) {
	var cm domain.Comment
	req := struct {
		Body     json.RawMessage `json:"body"`
		Mentions []domain.UserID `json:"mentions,omitempty"`
	}{body, mentions}
	err := c.do(ctx, http.MethodPost, "/api/projects/"+id.String()+"/comments", req, &cm)
	return cm, err
}

func (c *Client) Comments(ctx context.Context, id domain.ProjectID) ([]domain.Comment, error) {
	var out struct {
		Comments []domain.Comment `json:"comments"`
	}
	err := c.do(ctx, http.MethodGet, "/api/projects/"+id.String()+"/comments", nil, &out)
	return out.Comments, err
}
