// Package cliclient is the HTTP client cmd/landctl's CLI-facing commands
// use to talk to a running control plane's AdminAPI. Grounded on the
// teacher's pkg/client/client.go Config/NewClient/Close/verb-method shape,
// adapted from gRPC+mTLS to HTTP+JSON+bearer-token since AdminAPI's own
// transport is chi/HTTP, not gRPC.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cuemby/landctl/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Client wraps an authenticated HTTP connection to one control plane.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a Client against addr, authenticating every request
// with token (a Session or Cmdline token, per AdminAPI's boundary auth).
func NewClient(addr, token string) *Client {
	return &Client{
		baseURL: addr,
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

type apiError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cliclient: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("cliclient: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cliclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("cliclient: %s %s: %d %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("cliclient: %s %s: %d", method, path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("cliclient: decode response: %w", err)
	}
	return nil
}

// page is the shared pagination envelope every list endpoint returns.
type page[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

type createProjectRequest struct {
	Language    string `json:"language"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// CreateProject creates a project; the server generates its name.
func (c *Client) CreateProject(ctx context.Context, language, description, source string) (*types.Project, error) {
	var proj types.Project
	err := c.do(ctx, http.MethodPost, "/projects", createProjectRequest{
		Language:    language,
		Description: description,
		Source:      source,
	}, &proj)
	return &proj, err
}

// ListProjects lists the caller's projects, page 1-indexed.
func (c *Client) ListProjects(ctx context.Context, search string, page, size int) ([]*types.Project, int, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var p page[*types.Project]
	err := c.do(ctx, http.MethodGet, "/projects?"+q.Encode(), nil, &p)
	return p.Data, p.Total, err
}

// GetProject fetches one project by name.
func (c *Client) GetProject(ctx context.Context, name string) (*types.Project, error) {
	var proj types.Project
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(name), nil, &proj)
	return &proj, err
}

// DeleteProject soft-deletes a project.
func (c *Client) DeleteProject(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/projects/"+url.PathEscape(name), nil, nil)
}

type deployRequest struct {
	WasmBytes   []byte `json:"wasm_bytes"`
	ContentType string `json:"content_type"`
}

// Deploy uploads wasmBytes as a new Development deployment for project.
func (c *Client) Deploy(ctx context.Context, project string, wasmBytes []byte, contentType string) (*types.Deployment, error) {
	var d types.Deployment
	err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(project)+"/deploy", deployRequest{
		WasmBytes:   wasmBytes,
		ContentType: contentType,
	}, &d)
	return &d, err
}

// Publish promotes project's latest successful Development deployment to
// Production.
func (c *Client) Publish(ctx context.Context, project string) (*types.Deployment, error) {
	var d types.Deployment
	err := c.do(ctx, http.MethodPost, "/projects/"+url.PathEscape(project)+"/publish", nil, &d)
	return &d, err
}

type issueTokenRequest struct {
	Name string `json:"name"`
}

// IssueToken requests a new Cmdline token for the caller.
func (c *Client) IssueToken(ctx context.Context, name string) (*types.Token, error) {
	var tok types.Token
	err := c.do(ctx, http.MethodPost, "/settings/tokens", issueTokenRequest{Name: name}, &tok)
	return &tok, err
}

// ExpireToken revokes a token by id.
func (c *Client) ExpireToken(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/settings/tokens/"+strconv.FormatInt(id, 10), nil, nil)
}

// ListUsers lists every user (admin-only).
func (c *Client) ListUsers(ctx context.Context, page, size int) ([]*types.User, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var p page[*types.User]
	err := c.do(ctx, http.MethodGet, "/admin/users?"+q.Encode(), nil, &p)
	return p.Data, p.Total, err
}

// ListWorkers lists every worker (admin-only).
func (c *Client) ListWorkers(ctx context.Context) ([]*types.Worker, error) {
	var body struct {
		Data []*types.Worker `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/workers", nil, &body)
	return body.Data, err
}
