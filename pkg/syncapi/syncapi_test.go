package syncapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/confsnapshot"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/tokenregistry"
	"github.com/cuemby/landctl/pkg/types"
	"github.com/cuemby/landctl/pkg/workerregistry"
)

type fakeRepo struct {
	repository.Repository

	tokens      map[int64]*types.Token
	users       map[int64]*types.User
	workers     map[string]*types.Worker
	deployments []*types.Deployment
	tasks       []*types.DeployTask
	nextID      int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		tokens:  make(map[int64]*types.Token),
		users:   make(map[int64]*types.User),
		workers: make(map[string]*types.Worker),
	}
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
	f.nextID++
	t.ID = f.nextID
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

func (f *fakeRepo) GetUserByID(ctx context.Context, id int64) (*types.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apierr.NotFound("user")
	}
	return u, nil
}

func (f *fakeRepo) TouchTokenUsage(ctx context.Context, id int64, at int64) error { return nil }
func (f *fakeRepo) ExpireToken(ctx context.Context, id int64) error              { return nil }

func (f *fakeRepo) FindWorkers(ctx context.Context, status *types.WorkerStatus) ([]*types.Worker, error) {
	var out []*types.Worker
	for _, w := range f.workers {
		if status == nil || w.Status == *status {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpsertWorkerOnline(ctx context.Context, ip, hostname, ipInfo string) (*types.Worker, bool, error) {
	w, ok := f.workers[ip]
	if !ok {
		w = &types.Worker{IP: ip, Hostname: hostname, Status: types.WorkerStatusOnline}
		f.workers[ip] = w
		return w, true, nil
	}
	w.Status = types.WorkerStatusOnline
	return w, false, nil
}

func (f *fakeRepo) ListActiveDeployments(ctx context.Context) ([]*types.Deployment, error) {
	return f.deployments, nil
}

func (f *fakeRepo) SetDeployTaskSuccess(ctx context.Context, workerIP, taskID string) error {
	for _, t := range f.tasks {
		if t.WorkerIP == workerIP && t.TaskID == taskID {
			t.Status = types.DeployTaskStatusSuccess
		}
	}
	return nil
}

func (f *fakeRepo) SetDeployTaskFailed(ctx context.Context, workerIP, taskID, message string) error {
	for _, t := range f.tasks {
		if t.WorkerIP == workerIP && t.TaskID == taskID {
			t.Status = types.DeployTaskStatusFailed
			t.Message = message
		}
	}
	return nil
}

func (f *fakeRepo) ListDeployTasks(ctx context.Context, workerIP *string, status *types.DeployTaskStatus, taskID *string) ([]*types.DeployTask, error) {
	var out []*types.DeployTask
	for _, t := range f.tasks {
		if workerIP != nil && t.WorkerIP != *workerIP {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

type fakeStore struct{}

func (fakeStore) Write(ctx context.Context, name string, data []byte) error { return nil }
func (fakeStore) Read(ctx context.Context, name string) ([]byte, error)     { return nil, nil }
func (fakeStore) Exists(ctx context.Context, name string) (bool, error)     { return true, nil }
func (fakeStore) Delete(ctx context.Context, name string) error            { return nil }
func (fakeStore) BuildURL(name string) string                              { return "https://cdn.example.com/" + name }

func newTestServer(t *testing.T, repo *fakeRepo) (*Server, string) {
	t.Helper()
	repo.users[1] = &types.User{ID: 1, Status: types.UserStatusActive}
	tokens := tokenregistry.New(repo)
	tok, err := tokens.Issue(context.Background(), 1, "worker-token", types.TokenUsageWorker)
	require.NoError(t, err)

	workers := workerregistry.New(repo)
	snapshot := confsnapshot.New(repo, fakeStore{})
	require.NoError(t, snapshot.Refresh(context.Background()))

	return New(tokens, workers, snapshot, repo), tok.Value
}

func router(s *Server) http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

func TestHandleSync_RejectsMissingToken(t *testing.T) {
	repo := newFakeRepo()
	s, _ := newTestServer(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/worker-api/sync", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleSync_FirstCallReturns200WithSnapshot(t *testing.T) {
	repo := newFakeRepo()
	repo.deployments = []*types.Deployment{
		{ID: 1, TaskID: "t1", DeployStatus: types.DeployStatusSuccess, StoragePath: "a/t1.wasm"},
	}
	s, tokenValue := newTestServer(t, repo)
	require.NoError(t, s.snapshot.Refresh(context.Background()))

	body, _ := json.Marshal(syncRequest{IP: "10.0.0.1", Hostname: "w1"})
	req := httptest.NewRequest(http.MethodPost, "/worker-api/sync", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenValue)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Md5"))

	var resp syncResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)

	assert.Equal(t, types.WorkerStatusOnline, repo.workers["10.0.0.1"].Status)
}

func TestHandleSync_MatchingChecksumReturns304(t *testing.T) {
	repo := newFakeRepo()
	repo.deployments = []*types.Deployment{
		{ID: 1, TaskID: "t1", DeployStatus: types.DeployStatusSuccess, StoragePath: "a/t1.wasm"},
	}
	s, tokenValue := newTestServer(t, repo)
	checksum := s.snapshot.Current().Checksum

	body, _ := json.Marshal(syncRequest{IP: "10.0.0.1"})
	req := httptest.NewRequest(http.MethodPost, "/worker-api/sync", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenValue)
	req.Header.Set("X-Md5", checksum)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestHandleTask_RecordsOutcomesAndReturnsDoingTasks(t *testing.T) {
	repo := newFakeRepo()
	repo.tasks = []*types.DeployTask{
		{TaskID: "t1", WorkerIP: "10.0.0.1", Status: types.DeployTaskStatusDoing},
		{TaskID: "t2", WorkerIP: "10.0.0.1", Status: types.DeployTaskStatusDoing},
	}
	s, tokenValue := newTestServer(t, repo)

	body, _ := json.Marshal(map[string]string{"t1": "success", "t2": "oom killed"})
	req := httptest.NewRequest(http.MethodGet, "/worker-api/task?ip=10.0.0.1", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenValue)
	w := httptest.NewRecorder()
	router(s).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, types.DeployTaskStatusSuccess, repo.tasks[0].Status)
	assert.Equal(t, types.DeployTaskStatusFailed, repo.tasks[1].Status)
	assert.Equal(t, "oom killed", repo.tasks[1].Message)

	var resp taskResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Empty(t, resp.Data) // both tasks just left Doing
}
