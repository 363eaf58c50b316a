package adminapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/deployfsm"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/tokenregistry"
	"github.com/cuemby/landctl/pkg/types"
)

type fakeRepo struct {
	repository.Repository

	users       map[int64]*types.User
	tokens      map[int64]*types.Token
	projects    map[string]*types.Project
	deployments map[int64]*types.Deployment
	tasks       []*types.DeployTask
	workers     []*types.Worker
	settings    map[string]string
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       make(map[int64]*types.User),
		tokens:      make(map[int64]*types.Token),
		projects:    make(map[string]*types.Project),
		deployments: make(map[int64]*types.Deployment),
		settings:    make(map[string]string),
	}
}

func (f *fakeRepo) nextIDVal() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id int64) (*types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apierr.NotFound("user")
	}
	return u, nil
}

func (f *fakeRepo) GetSetting(ctx context.Context, name string) (string, bool, error) {
	v, ok := f.settings[name]
	return v, ok, nil
}

func (f *fakeRepo) GetActiveTokenByOwnerNameUsage(ctx context.Context, ownerID int64, name string, usage types.TokenUsage) (*types.Token, error) {
	for _, t := range f.tokens {
		if t.UserID == ownerID && t.Name == name && t.Usage == usage && t.Status == types.TokenStatusActive {
			return t, nil
		}
	}
	return nil, apierr.NotFound("token")
}

func (f *fakeRepo) CreateToken(ctx context.Context, t *types.Token) error {
	t.ID = f.nextIDVal()
	f.tokens[t.ID] = t
	return nil
}

func (f *fakeRepo) GetTokenByValue(ctx context.Context, value string) (*types.Token, error) {
	for _, t := range f.tokens {
		if t.Value == value {
			return t, nil
		}
	}
	return nil, apierr.NotFound("token")
}

func (f *fakeRepo) TouchTokenUsage(ctx context.Context, id int64, at int64) error { return nil }
func (f *fakeRepo) ExpireToken(ctx context.Context, id int64) error {
	if t, ok := f.tokens[id]; ok {
		t.Status = types.TokenStatusExpired
	}
	return nil
}

func (f *fakeRepo) CreateProjectWithPlayground(ctx context.Context, p *types.Project, source string) (*types.Playground, error) {
	if _, exists := f.projects[p.Name]; exists {
		return nil, apierr.Conflict("project name already exists")
	}
	p.ID = f.nextIDVal()
	p.UUID = "proj-uuid"
	f.projects[p.Name] = p
	return nil, nil
}

func (f *fakeRepo) GetProjectByName(ctx context.Context, name string, ownerID *int64) (*types.Project, error) {
	p, ok := f.projects[name]
	if !ok {
		return nil, apierr.NotFound("project")
	}
	if ownerID != nil && p.OwnerID != *ownerID {
		return nil, apierr.NotFound("project")
	}
	return p, nil
}

func (f *fakeRepo) ListProjectsPaginated(ctx context.Context, filter repository.ProjectFilter, page, size int) ([]*types.Project, int, error) {
	var out []*types.Project
	for _, p := range f.projects {
		if filter.OwnerID != nil && p.OwnerID != *filter.OwnerID {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (f *fakeRepo) DeleteProject(ctx context.Context, userID, projectID int64) error {
	for name, p := range f.projects {
		if p.ID == projectID && p.OwnerID == userID {
			delete(f.projects, name)
			return nil
		}
	}
	return apierr.NotFound("project")
}

func (f *fakeRepo) CreateDeployment(ctx context.Context, d *types.Deployment) error {
	d.ID = f.nextIDVal()
	if d.TaskID == "" {
		d.TaskID = fmt.Sprintf("task-%d", d.ID)
	}
	if d.DeployStatus == "" {
		d.DeployStatus = types.DeployStatusWaiting
	}
	cp := *d
	f.deployments[d.ID] = &cp
	return nil
}

func (f *fakeRepo) GetDeployment(ctx context.Context, id int64) (*types.Deployment, error) {
	d, ok := f.deployments[id]
	if !ok {
		return nil, apierr.NotFound("deployment")
	}
	return d, nil
}

func (f *fakeRepo) GetLatestDeployment(ctx context.Context, projectID int64, deployType types.DeployType) (*types.Deployment, error) {
	var latest *types.Deployment
	for _, d := range f.deployments {
		if d.ProjectID == projectID && d.DeployType == deployType {
			if latest == nil || d.ID > latest.ID {
				latest = d
			}
		}
	}
	if latest == nil {
		return nil, apierr.NotFound("deployment")
	}
	return latest, nil
}

func (f *fakeRepo) SetDeployStatus(ctx context.Context, id int64, newStatus types.DeployStatus, message string, fromAnyOf ...types.DeployStatus) (bool, error) {
	d, ok := f.deployments[id]
	if !ok {
		return false, apierr.NotFound("deployment")
	}
	for _, s := range fromAnyOf {
		if d.DeployStatus != s {
			return false, nil
		}
	}
	d.DeployStatus = newStatus
	d.DeployMessage = message
	return true, nil
}

func (f *fakeRepo) SetDeploymentStorage(ctx context.Context, id int64, path, md5 string) error {
	if d, ok := f.deployments[id]; ok {
		d.StoragePath = path
		d.StorageMD5 = md5
	}
	return nil
}

func (f *fakeRepo) FindWorkers(ctx context.Context, status *types.WorkerStatus) ([]*types.Worker, error) {
	var out []*types.Worker
	for _, w := range f.workers {
		if status == nil || w.Status == *status {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateDeployTask(ctx context.Context, t *types.DeployTask) error {
	t.ID = f.nextIDVal()
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeRepo) ListUsers(ctx context.Context, page, size int) ([]*types.User, int, error) {
	var out []*types.User
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, len(out), nil
}

type fakeStore struct{ failWrite bool }

func (s *fakeStore) Write(ctx context.Context, name string, data []byte) error {
	if s.failWrite {
		return assert.AnError
	}
	return nil
}
func (s *fakeStore) Read(ctx context.Context, name string) ([]byte, error) { return nil, nil }
func (s *fakeStore) Exists(ctx context.Context, name string) (bool, error) { return true, nil }
func (s *fakeStore) Delete(ctx context.Context, name string) error        { return nil }
func (s *fakeStore) BuildURL(name string) string                          { return "https://cdn.example.com/" + name }

func newTestServer(t *testing.T, repo *fakeRepo) (*Server, string, *types.User) {
	t.Helper()
	user := &types.User{ID: 1, UUID: "user-uuid", Status: types.UserStatusActive, Role: types.UserRoleNormal}
	repo.users[user.ID] = user

	tokens := tokenregistry.New(repo)
	tok, err := tokens.Issue(context.Background(), user.ID, "session", types.TokenUsageSession)
	require.NoError(t, err)

	fsm := deployfsm.New(repo, &fakeStore{})
	return New(repo, tokens, fsm), tok.Value, user
}

func router(s *Server) http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func authed(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestCreateProject_GeneratesNameAndReturns201(t *testing.T) {
	repo := newFakeRepo()
	s, token, _ := newTestServer(t, repo)

	body, _ := json.Marshal(createProjectRequest{Language: "javascript", Description: "a function"})
	req := authed(httptest.NewRequest(http.MethodPost, "/projects", bytes.NewReader(body)), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var proj types.Project
	require.NoError(t, json.NewDecoder(w.Body).Decode(&proj))
	assert.Regexp(t, projectNamePattern, proj.Name)
	assert.Equal(t, types.ProjectStatusActive, proj.Status)
}

func TestDeploy_HappyPathFansOutToOnlineWorkers(t *testing.T) {
	repo := newFakeRepo()
	s, token, user := newTestServer(t, repo)
	repo.projects["myfn"] = &types.Project{ID: 10, UUID: "proj-uuid", OwnerID: user.ID, Name: "myfn", Status: types.ProjectStatusActive}
	repo.workers = []*types.Worker{
		{ID: 1, IP: "10.0.0.1", Status: types.WorkerStatusOnline},
		{ID: 2, IP: "10.0.0.2", Status: types.WorkerStatusOnline},
	}

	payload, _ := json.Marshal(deployRequest{WasmBytes: []byte("wasm-bytes"), ContentType: "application/wasm"})
	req := authed(httptest.NewRequest(http.MethodPost, "/projects/myfn/deploy", bytes.NewReader(payload)), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var d types.Deployment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, types.DeployStatusDeploying, d.DeployStatus)
	assert.Equal(t, types.DeployTypeDevelopment, d.DeployType)
	assert.Len(t, repo.tasks, 2)
}

func TestDeploy_RejectsOversizedPayload(t *testing.T) {
	repo := newFakeRepo()
	s, token, user := newTestServer(t, repo)
	repo.projects["myfn"] = &types.Project{ID: 10, UUID: "proj-uuid", OwnerID: user.ID, Name: "myfn", Status: types.ProjectStatusActive}

	oversized := make([]byte, maxUploadBytes+1)
	encoded := base64.StdEncoding.EncodeToString(oversized)
	payload := []byte(`{"wasm_bytes":"` + encoded + `"}`)

	req := authed(httptest.NewRequest(http.MethodPost, "/projects/myfn/deploy", bytes.NewReader(payload)), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPublish_PromotesSuccessfulDevelopmentDeployment(t *testing.T) {
	repo := newFakeRepo()
	s, token, user := newTestServer(t, repo)
	repo.projects["myfn"] = &types.Project{ID: 10, UUID: "proj-uuid", OwnerID: user.ID, Name: "myfn", Status: types.ProjectStatusActive}
	repo.deployments[1] = &types.Deployment{
		ID: 1, ProjectID: 10, DeployType: types.DeployTypeDevelopment,
		DeployStatus: types.DeployStatusSuccess, StoragePath: "a/b.wasm", StorageMD5: "abc123",
	}
	repo.workers = []*types.Worker{{ID: 1, IP: "10.0.0.1", Status: types.WorkerStatusOnline}}

	req := authed(httptest.NewRequest(http.MethodPost, "/projects/myfn/publish", nil), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var d types.Deployment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&d))
	assert.Equal(t, types.DeployTypeProduction, d.DeployType)
	assert.Equal(t, "a/b.wasm", d.StoragePath)
}

func TestPublish_NoSuccessfulDevelopmentDeploymentIsConflict(t *testing.T) {
	repo := newFakeRepo()
	s, token, user := newTestServer(t, repo)
	repo.projects["myfn"] = &types.Project{ID: 10, UUID: "proj-uuid", OwnerID: user.ID, Name: "myfn", Status: types.ProjectStatusActive}

	req := authed(httptest.NewRequest(http.MethodPost, "/projects/myfn/publish", nil), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminUsers_ForbiddenForNonAdmin(t *testing.T) {
	repo := newFakeRepo()
	s, token, _ := newTestServer(t, repo)

	req := authed(httptest.NewRequest(http.MethodGet, "/admin/users", nil), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminWorkers_AllowedForAdmin(t *testing.T) {
	repo := newFakeRepo()
	s, token, user := newTestServer(t, repo)
	user.Role = types.UserRoleAdmin
	repo.workers = []*types.Worker{{ID: 1, IP: "10.0.0.1", Status: types.WorkerStatusOnline}}

	req := authed(httptest.NewRequest(http.MethodGet, "/admin/workers", nil), token)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
