// Package confsnapshot builds and serves the fleet-wide routing snapshot
// workers pull from SyncEndpoint. Grounded on the teacher's
// pkg/manager/fsm.go WarrenFSM.Snapshot: a mutex-guarded singleton rebuilt
// on a ticker, generalized here from "Raft log compaction snapshot" to
// "routing cache for worker-api/sync."
package confsnapshot

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/metrics"
	"github.com/cuemby/landctl/pkg/objectstore"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

const (
	refreshInterval = time.Second
	quietPeriod     = 10 * time.Second
)

// Builder produces and holds the current ConfSnapshot, refreshed on a
// ticker. Reads of the current snapshot never block on a rebuild.
type Builder struct {
	repo  repository.Repository
	store objectstore.Store

	logger zerolog.Logger

	mu      sync.RWMutex
	current types.ConfSnapshot

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Builder over repo and store. The returned Builder holds
// an empty snapshot until Start (or an explicit Refresh) populates it.
func New(repo repository.Repository, store objectstore.Store) *Builder {
	return &Builder{
		repo:   repo,
		store:  store,
		logger: log.WithComponent("confsnapshot"),
		stopCh: make(chan struct{}),
	}
}

// Current returns the most recently built snapshot.
func (b *Builder) Current() types.ConfSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Start launches the refresh loop.
func (b *Builder) Start() {
	b.wg.Add(1)
	go b.run()
}

// Stop signals the loop to exit and waits for it.
func (b *Builder) Stop() {
	close(b.stopCh)
	b.wg.Wait()
}

func (b *Builder) run() {
	defer b.wg.Done()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	if err := b.Refresh(context.Background()); err != nil {
		b.logger.Error().Err(err).Msg("initial snapshot build failed")
	}

	for {
		select {
		case <-ticker.C:
			if err := b.Refresh(context.Background()); err != nil {
				b.logger.Error().Err(err).Msg("snapshot refresh failed")
			}
		case <-b.stopCh:
			return
		}
	}
}

// quiet reports whether the active deployment set is unlikely to have
// changed since the last refresh, letting Refresh skip the rebuild. It
// requires a non-empty cached snapshot, a matching item count (so a
// deployment leaving the active set is never missed), and no deployment
// touched within quietPeriod.
func (b *Builder) quiet(deployments []*types.Deployment) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.current.Items) == 0 || len(b.current.Items) != len(deployments) {
		return false
	}

	var newest time.Time
	for _, d := range deployments {
		if d.UpdatedAt.After(newest) {
			newest = d.UpdatedAt
		}
	}
	return time.Since(newest) > quietPeriod
}

// Refresh rebuilds the snapshot from the repository's active deployments.
// If the content checksum is unchanged from the current snapshot, the swap
// is skipped — that is the content-hash short-circuit.
func (b *Builder) Refresh(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SnapshotBuildDuration)

	deployments, err := b.repo.ListActiveDeployments(ctx)
	if err != nil {
		return err
	}

	if b.quiet(deployments) {
		return nil
	}

	items := make([]types.ConfItem, 0, len(deployments))
	for _, d := range deployments {
		if d.DeployStatus != types.DeployStatusSuccess {
			continue
		}
		items = append(items, types.ConfItem{
			UserID:      d.OwnerID,
			ProjectID:   d.ProjectID,
			DeployID:    d.ID,
			TaskID:      d.TaskID,
			FileName:    d.TaskID + ".wasm",
			FileHash:    d.StorageMD5,
			DownloadURL: b.store.BuildURL(d.StoragePath),
			Domain:      d.Domain,
		})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].TaskID < items[j].TaskID })

	encoded, err := json.Marshal(items)
	if err != nil {
		return err
	}
	checksum := fmt.Sprintf("%x", md5.Sum(encoded))

	b.mu.Lock()
	defer b.mu.Unlock()
	if checksum == b.current.Checksum {
		metrics.SnapshotChecksumUnchangedTotal.Inc()
		return nil
	}
	b.current = types.ConfSnapshot{Items: items, Checksum: checksum}
	b.logger.Info().Int("item_count", len(items)).Str("checksum", checksum).Msg("snapshot rebuilt")
	return nil
}
