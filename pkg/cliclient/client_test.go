package cliclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/pkg/types"
)

func TestCreateProject_SendsBearerTokenAndDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer my-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/projects", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body createProjectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "javascript", body.Language)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(types.Project{ID: 1, Name: "fn-ab12cd34"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "my-token")
	proj, err := c.CreateProject(context.Background(), "javascript", "", "")
	require.NoError(t, err)
	assert.Equal(t, "fn-ab12cd34", proj.Name)
}

func TestGetProject_EscapesName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/my%2Fproject", r.URL.EscapedPath())
		_ = json.NewEncoder(w).Encode(types.Project{Name: "my/project"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	proj, err := c.GetProject(context.Background(), "my/project")
	require.NoError(t, err)
	assert.Equal(t, "my/project", proj.Name)
}

func TestDo_NonOKStatusReturnsAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(apiError{Status: "error", Message: "project name already exists"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	_, err := c.CreateProject(context.Background(), "javascript", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project name already exists")
}

func TestDeleteProject_NoContentIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	assert.NoError(t, c.DeleteProject(context.Background(), "fn-ab12cd34"))
}

func TestListWorkers_DecodesDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/workers", r.URL.Path)
		_ = json.NewEncoder(w).Encode(struct {
			Data []*types.Worker `json:"data"`
		}{Data: []*types.Worker{{IP: "203.0.113.4"}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok")
	workers, err := c.ListWorkers(context.Background())
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, "203.0.113.4", workers[0].IP)
}
