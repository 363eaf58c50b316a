// Package reviewloop aggregates per-worker DeployTask outcomes into the
// owning Deployment's terminal status. Grounded on the teacher's
// pkg/reconciler/reconciler.go: a ticker-driven loop that lists candidates,
// classifies each, and acts — generalized from node staleness to deploy
// task outcome tallying.
package reviewloop

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/metrics"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

const reviewInterval = time.Second

// Loop reviews every Deploying deployment's fanned-out tasks once per
// reviewInterval: all tasks Success -> deployment Success; any task Failed
// -> deployment Failed; otherwise left Deploying for the next tick.
type Loop struct {
	repo repository.Repository

	logger zerolog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Loop over repo.
func New(repo repository.Repository) *Loop {
	return &Loop{
		repo:   repo,
		logger: log.WithComponent("reviewloop"),
		stopCh: make(chan struct{}),
	}
}

// Start launches the review loop.
func (l *Loop) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop signals the loop to exit and waits for it.
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Loop) run() {
	defer l.wg.Done()
	ticker := time.NewTicker(reviewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.ReviewOnce(context.Background()); err != nil {
				l.logger.Error().Err(err).Msg("review cycle failed")
			}
		case <-l.stopCh:
			return
		}
	}
}

// ReviewOnce runs a single review pass over every Deploying deployment.
func (l *Loop) ReviewOnce(ctx context.Context) error {
	deployments, err := l.repo.ListDeploymentsByStatus(ctx, types.DeployStatusDeploying)
	if err != nil {
		return err
	}

	for _, d := range deployments {
		if err := l.review(ctx, d); err != nil {
			l.logger.Error().Err(err).Int64("deployment_id", d.ID).Msg("review failed for deployment")
		}
	}
	return nil
}

func (l *Loop) review(ctx context.Context, d *types.Deployment) error {
	tasks, err := l.repo.ListDeployTasksByTaskID(ctx, d.ID, d.TaskID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		// Fan-out hasn't run yet for this deployment; nothing to tally.
		return nil
	}

	allSuccess := true
	anyFailed := false
	doing := 0
	var failMessage string
	for _, t := range tasks {
		metrics.TaskOutcomesTotal.WithLabelValues(string(t.Status)).Inc()
		switch t.Status {
		case types.DeployTaskStatusFailed:
			allSuccess = false
			if !anyFailed {
				failMessage = t.Message
			}
			anyFailed = true
		case types.DeployTaskStatusDoing:
			allSuccess = false
			doing++
		}
	}

	if doing > 0 {
		// Still in flight on at least one worker; leave Deploying for the next tick.
		return nil
	}

	switch {
	case anyFailed:
		changed, err := l.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusFailed, failMessage, types.DeployStatusDeploying)
		if err != nil || !changed {
			return err
		}
		metrics.DeploymentsTotal.WithLabelValues(string(d.DeployType), string(types.DeployStatusFailed)).Inc()
	case allSuccess:
		changed, err := l.repo.SetDeployStatus(ctx, d.ID, types.DeployStatusSuccess, "", types.DeployStatusDeploying)
		if err != nil || !changed {
			return err
		}
		metrics.DeploymentsTotal.WithLabelValues(string(d.DeployType), string(types.DeployStatusSuccess)).Inc()

		if d.DeployType == types.DeployTypeProduction {
			if err := l.repo.OutdateOtherProductionDeployments(ctx, d.ProjectID, d.ID); err != nil {
				return err
			}
			if err := l.repo.SetProjectDomains(ctx, d.ProjectID, d.Domain, ""); err != nil {
				return err
			}
		} else {
			if err := l.repo.SetProjectDomains(ctx, d.ProjectID, "", d.Domain); err != nil {
				return err
			}
		}
		if err := l.repo.SetProjectDeployStatus(ctx, d.ProjectID, types.DeployStatusSuccess); err != nil {
			return err
		}
	}
	return nil
}
