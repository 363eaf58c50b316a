// Package deployfsm drives a Deployment through its per-deployment state
// machine and fans tasks out to the online worker fleet. Grounded on the
// teacher's pkg/deploy/deploy.go Deployer (explicit method per phase,
// structured logging of every transition) and pkg/scheduler/scheduler.go's
// scheduleGlobalService ("one container per node" fan-out, generalized here
// to "one task per online worker").
package deployfsm

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/metrics"
	"github.com/cuemby/landctl/pkg/objectstore"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

// FSM drives deployments through Waiting -> Compiling -> Uploading ->
// Deploying -> {Success, Failed}. Every transition is a conditional update
// predicated on the prior status so concurrent writers never clobber a
// terminal state — Success and Failed are absorbing.
type FSM struct {
	repo    repository.Repository
	store   objectstore.Store
	logger  zerolog.Logger
}

// New constructs an FSM over repo and store.
func New(repo repository.Repository, store objectstore.Store) *FSM {
	return &FSM{
		repo:   repo,
		store:  store,
		logger: log.WithComponent("deployfsm"),
	}
}

// Advance drives deployment d from its current state through Uploading and
// into Deploying, uploading wasmBytes to the object store under
// <owner_uuid>/<project_uuid>/<task_id>.wasm. It is the synchronous part of
// the pipeline triggered by AdminAPI's deploy handler; TaskFanout and
// ReviewLoop take it from Deploying onward.
func (f *FSM) Advance(ctx context.Context, d *types.Deployment, wasmBytes []byte) error {
	logger := f.logger.With().Str("task_id", d.TaskID).Int64("deployment_id", d.ID).Logger()

	if _, err := f.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusUploading, "", types.DeployStatusWaiting, types.DeployStatusCompiling); err != nil {
		return err
	}
	logger.Info().Msg("deployment entering Uploading")

	path := fmt.Sprintf("%s/%s/%s.wasm", d.OwnerUUID, d.ProjectUUID, d.TaskID)
	if err := f.store.Write(ctx, path, wasmBytes); err != nil {
		logger.Error().Err(err).Msg("upload failed, terminalizing deployment")
		_, _ = f.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusFailed, "upload failed: "+err.Error(), types.DeployStatusUploading)
		return apierr.Upstream("upload wasm artifact", err)
	}

	sum := fmt.Sprintf("%x", md5.Sum(wasmBytes))
	if err := f.repo.SetDeploymentStorage(ctx, d.ID, path, sum); err != nil {
		return err
	}
	d.StoragePath = path
	d.StorageMD5 = sum

	if changed, err := f.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusDeploying, "", types.DeployStatusUploading); err != nil {
		return err
	} else if !changed {
		// Someone else already moved this deployment past Uploading
		// (crash-retry, duplicate request); nothing left to do.
		return nil
	}
	d.DeployStatus = types.DeployStatusDeploying
	logger.Info().Msg("deployment entering Deploying")

	return nil
}

// Fanout is TaskFanout: for a Deploying deployment, create one DeployTask
// per currently-online worker. Idempotent by the (deployment, worker,
// task_id) unique constraint — calling twice with the same task_id is a
// no-op for already-inserted pairs.
func (f *FSM) Fanout(ctx context.Context, deploymentID int64) error {
	d, err := f.repo.GetDeployment(ctx, deploymentID)
	if err != nil {
		return err
	}
	if d.DeployStatus != types.DeployStatusDeploying {
		return apierr.Validation("deployment is not in Deploying state")
	}

	online := types.WorkerStatusOnline
	workers, err := f.repo.FindWorkers(ctx, &online)
	if err != nil {
		return err
	}

	logger := f.logger.With().Str("task_id", d.TaskID).Int64("deployment_id", d.ID).Logger()

	if len(workers) == 0 {
		logger.Warn().Msg("no online workers at fan-out, failing deployment")
		_, err := f.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusFailed, "No online workers", types.DeployStatusDeploying)
		return err
	}

	item := types.ConfItem{
		UserID:    d.OwnerID,
		ProjectID: d.ProjectID,
		DeployID:  d.ID,
		TaskID:    d.TaskID,
		FileName:  d.TaskID + ".wasm",
		FileHash:  d.StorageMD5,
		Domain:    d.Domain,
	}
	content, err := json.Marshal(item)
	if err != nil {
		return apierr.Upstream("marshal task content", err)
	}

	for _, w := range workers {
		task := &types.DeployTask{
			OwnerID:      d.OwnerID,
			ProjectID:    d.ProjectID,
			DeploymentID: d.ID,
			TaskID:       d.TaskID,
			TaskType:     types.DeployTaskTypeDeployWasmToWorker,
			TaskContent:  string(content),
			WorkerID:     w.ID,
			WorkerIP:     w.IP,
			Status:       types.DeployTaskStatusDoing,
		}
		if err := f.repo.CreateDeployTask(ctx, task); err != nil {
			return err
		}
		metrics.TasksFannedOut.Inc()
	}

	logger.Info().Int("worker_count", len(workers)).Msg("fanned out deploy tasks")
	return nil
}

// NewTaskID is exposed so callers (AdminAPI) can pre-generate a task_id
// before the deployment row exists, matching the teacher's
// uuid.New().String() idiom in pkg/scheduler/scheduler.go.
func NewTaskID() string {
	return uuid.New().String()
}
