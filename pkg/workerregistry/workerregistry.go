// Package workerregistry tracks the online/offline status of the worker
// fleet. It has two surfaces: a heartbeat path invoked by pkg/syncapi on
// every sync call, and a background reconciliation loop. Grounded on the
// teacher's pkg/reconciler/reconciler.go reconcileNodes (ticker-driven
// staleness check against a threshold) and pkg/manager/manager.go's
// CreateNode/UpdateNode read/write split.
package workerregistry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

const (
	reconcileInterval = 10 * time.Second
	offlineThreshold   = 60 * time.Second
)

// Registry tracks worker liveness. The `livings` map is process-local per
// SPEC_FULL.md §9 ("global mutable state"): authoritative for "heard from
// recently," never persisted.
type Registry struct {
	repo   repository.Repository
	logger zerolog.Logger

	mu      sync.Mutex
	livings map[string]int64 // ip -> last_seen_unix_seconds

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Registry over repo.
func New(repo repository.Repository) *Registry {
	return &Registry{
		repo:    repo,
		logger:  log.WithComponent("workerregistry"),
		livings: make(map[string]int64),
		stopCh:  make(chan struct{}),
	}
}

// Heartbeat is invoked from SyncEndpoint on every worker call: it records
// the worker as seen now and upserts its row, marking it Online.
func (r *Registry) Heartbeat(ctx context.Context, ip, hostname, ipInfo string) (*types.Worker, error) {
	r.mu.Lock()
	r.livings[ip] = time.Now().Unix()
	r.mu.Unlock()

	worker, _, err := r.repo.UpsertWorkerOnline(ctx, ip, hostname, ipInfo)
	return worker, err
}

// Start launches the reconciliation loop in a goroutine.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop signals the loop to exit and waits for it.
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Registry) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconcile cycle failed")
			}
		case <-r.stopCh:
			return
		}
	}
}

// reconcile implements the algorithm from SPEC_FULL.md §4.4 step by step.
func (r *Registry) reconcile(ctx context.Context) error {
	workers, err := r.repo.FindWorkers(ctx, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	livings := make(map[string]int64, len(r.livings))
	for ip, seen := range r.livings {
		livings[ip] = seen
	}
	r.mu.Unlock()

	now := time.Now().Unix()
	byIP := make(map[string]*types.Worker, len(workers))
	var onlines []string

	for _, w := range workers {
		byIP[w.IP] = w
		lastSeen, heard := livings[w.IP]

		shouldOffline := false
		if !heard {
			if now-w.UpdatedAt.Unix() > int64(offlineThreshold.Seconds()) {
				shouldOffline = true
			}
		} else if now-lastSeen > int64(offlineThreshold.Seconds()) {
			shouldOffline = true
		}

		if shouldOffline {
			if err := r.repo.SetWorkerOffline(ctx, w.IP); err != nil {
				r.logger.Error().Err(err).Str("ip", w.IP).Msg("failed to mark worker offline")
			}
			continue
		}
		onlines = append(onlines, w.IP)
	}

	if len(onlines) > 0 {
		if err := r.repo.SetWorkersOnline(ctx, onlines); err != nil {
			return err
		}
	}

	for ip := range livings {
		if _, exists := byIP[ip]; !exists {
			if _, _, err := r.repo.UpsertWorkerOnline(ctx, ip, "", ""); err != nil {
				r.logger.Error().Err(err).Str("ip", ip).Msg("failed to create worker row for live ip")
			}
		}
	}

	return nil
}
