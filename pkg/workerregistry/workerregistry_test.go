package workerregistry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

type fakeRepo struct {
	repository.Repository
	workers map[string]*types.Worker
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{workers: make(map[string]*types.Worker)}
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

func (f *fakeRepo) UpsertWorkerOnline(ctx context.Context, ip, hostname, ipInfo string) (*types.Worker, bool, error) {
	w, ok := f.workers[ip]
	if !ok {
		w = &types.Worker{IP: ip, Hostname: hostname, Status: types.WorkerStatusOnline, UpdatedAt: time.Now()}
		f.workers[ip] = w
		return w, true, nil
	}
	w.Status = types.WorkerStatusOnline
	w.UpdatedAt = time.Now()
	return w, false, nil
}

func (f *fakeRepo) SetWorkerOffline(ctx context.Context, ip string) error {
	f.workers[ip].Status = types.WorkerStatusOffline
	return nil
}

func (f *fakeRepo) SetWorkersOnline(ctx context.Context, ips []string) error {
	for _, ip := range ips {
		f.workers[ip].Status = types.WorkerStatusOnline
		f.workers[ip].UpdatedAt = time.Now()
	}
	return nil
}

// TestReconcile_MarksStaleWorkerOffline exercises spec scenario 4: W1 last
// heartbeat 61s ago, W2 5s ago. After one reconcile tick, W1 is Offline and
// W2 stays Online.
func TestReconcile_MarksStaleWorkerOffline(t *testing.T) {
	repo := newFakeRepo()
	repo.workers["10.0.0.1"] = &types.Worker{IP: "10.0.0.1", Status: types.WorkerStatusOnline, UpdatedAt: time.Now().Add(-90 * time.Second)}
	repo.workers["10.0.0.2"] = &types.Worker{IP: "10.0.0.2", Status: types.WorkerStatusOnline, UpdatedAt: time.Now()}

	reg := New(repo)
	reg.mu.Lock()
	reg.livings["10.0.0.1"] = time.Now().Add(-61 * time.Second).Unix()
	reg.livings["10.0.0.2"] = time.Now().Add(-5 * time.Second).Unix()
	reg.mu.Unlock()

	require.NoError(t, reg.reconcile(context.Background()))

	assert.Equal(t, types.WorkerStatusOffline, repo.workers["10.0.0.1"].Status)
	assert.Equal(t, types.WorkerStatusOnline, repo.workers["10.0.0.2"].Status)
}

func TestHeartbeat_CreatesWorkerRowAndMarksLiving(t *testing.T) {
	repo := newFakeRepo()
	reg := New(repo)

	_, err := reg.Heartbeat(context.Background(), "10.0.0.5", "worker-5", `{"city":"sf"}`)
	require.NoError(t, err)

	assert.Equal(t, types.WorkerStatusOnline, repo.workers["10.0.0.5"].Status)
	reg.mu.Lock()
	_, heard := reg.livings["10.0.0.5"]
	reg.mu.Unlock()
	assert.True(t, heard)
}

func TestReconcile_WorkerNeverMarkedOfflineWithoutHeartbeatGapButRecentRow(t *testing.T) {
	repo := newFakeRepo()
	repo.workers["10.0.0.9"] = &types.Worker{IP: "10.0.0.9", Status: types.WorkerStatusOnline, UpdatedAt: time.Now()}
	reg := New(repo)

	require.NoError(t, reg.reconcile(context.Background()))
	assert.Equal(t, types.WorkerStatusOnline, repo.workers["10.0.0.9"].Status)
}
