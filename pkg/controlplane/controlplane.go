// Package controlplane wires every component into one running process:
// Repository, ObjectStore, TokenRegistry, WorkerRegistry, DeploymentFSM,
// ConfSnapshot, ReviewLoop, and the two HTTP surfaces. Grounded on the
// teacher's pkg/manager/manager.go NewManager/Shutdown shape, deliberately
// without its 100+ passthrough-CRUD-method surface — here each component
// keeps its own narrow interface and the Plane just starts and stops them
// in order.
package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/internal/config"
	"github.com/cuemby/landctl/pkg/adminapi"
	"github.com/cuemby/landctl/pkg/configstore"
	"github.com/cuemby/landctl/pkg/confsnapshot"
	"github.com/cuemby/landctl/pkg/deployfsm"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/metrics"
	"github.com/cuemby/landctl/pkg/objectstore"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/reviewloop"
	"github.com/cuemby/landctl/pkg/secretbox"
	"github.com/cuemby/landctl/pkg/syncapi"
	"github.com/cuemby/landctl/pkg/tokenregistry"
	"github.com/cuemby/landctl/pkg/workerregistry"
)

// Plane holds every long-lived component for one control-plane process.
type Plane struct {
	repo   repository.Repository
	store  objectstore.Store
	config *configstore.Store

	tokens    *tokenregistry.Registry
	workers   *workerregistry.Registry
	fsm       *deployfsm.FSM
	snapshot  *confsnapshot.Builder
	review    *reviewloop.Loop
	collector *metrics.Collector

	adminAPI *adminapi.Server
	syncAPI  *syncapi.Server

	adminSrv  *http.Server
	workerSrv *http.Server

	logger zerolog.Logger
}

// Addrs is where the two HTTP surfaces listen.
type Addrs struct {
	Admin  string // user-facing AdminAPI
	Worker string // worker-facing SyncEndpoint
}

// New builds every component against repo and an ObjectStore selected by
// cfg's storage-type setting (falling back to env.S3/DataDir when no
// setting has been written yet, since ConfigStore starts empty on a brand
// new deployment).
func New(ctx context.Context, repo repository.Repository, env config.Config) (*Plane, error) {
	var box *secretbox.Box
	if env.ServerToken != "" {
		b, err := secretbox.New(env.ServerToken)
		if err != nil {
			return nil, fmt.Errorf("controlplane: %w", err)
		}
		box = b
	}

	cs := configstore.New(repo, box)
	if err := cs.EnsureDefaults(ctx); err != nil {
		return nil, fmt.Errorf("controlplane: install config defaults: %w", err)
	}

	store, err := buildObjectStore(ctx, cs, env)
	if err != nil {
		return nil, fmt.Errorf("controlplane: %w", err)
	}

	tokens := tokenregistry.New(repo)
	workers := workerregistry.New(repo)
	fsm := deployfsm.New(repo, store)
	snapshot := confsnapshot.New(repo, store)
	review := reviewloop.New(repo)
	collector := metrics.NewCollector(repo)

	return &Plane{
		repo:      repo,
		store:     store,
		config:    cs,
		tokens:    tokens,
		workers:   workers,
		fsm:       fsm,
		snapshot:  snapshot,
		review:    review,
		collector: collector,
		adminAPI:  adminapi.New(repo, tokens, fsm),
		syncAPI:   syncapi.New(tokens, workers, snapshot, repo),
		logger:    log.WithComponent("controlplane"),
	}, nil
}

// buildObjectStore selects fs or s3 per the storage-type setting,
// defaulting to an S3 backend seeded from the process environment when no
// setting has been written yet (a fresh deployment has nowhere else to
// learn its bucket before the admin API is reachable).
func buildObjectStore(ctx context.Context, cs *configstore.Store, env config.Config) (objectstore.Store, error) {
	st, err := cs.GetStorageType(ctx)
	if err != nil {
		return nil, err
	}

	switch st.Type {
	case "fs":
		fs, _, err := cs.GetStorageFS(ctx)
		if err != nil {
			return nil, err
		}
		return objectstore.NewFs(fs.LocalPath, fs.LocalURLTemplate), nil
	case "s3":
		s3cfg, ok, err := cs.GetStorageS3(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("storage-type is s3 but storage-s3 is unset")
		}
		return objectstore.NewS3(ctx, objectstore.S3Config{
			Endpoint:        s3cfg.Endpoint,
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			AccessKeyID:     s3cfg.AccessKey,
			SecretAccessKey: s3cfg.SecretKey,
			Directory:       s3cfg.Directory,
			PublicURL:       s3cfg.URL,
		})
	default:
		return objectstore.NewS3(ctx, objectstore.S3Config{
			Endpoint:        env.S3.Endpoint,
			Bucket:          env.S3.Bucket,
			Region:          env.S3.Region,
			AccessKeyID:     env.S3.AccessKeyID,
			SecretAccessKey: env.S3.SecretAccessKey,
			Directory:       env.S3.BucketBasepath,
		})
	}
}

// Start launches the background loops and both HTTP surfaces. It returns
// once the listeners are up; serving happens on background goroutines.
func (p *Plane) Start(addrs Addrs) error {
	p.workers.Start()
	p.snapshot.Start()
	p.review.Start()
	p.collector.Start()

	adminRouter := chi.NewRouter()
	p.adminAPI.Routes(adminRouter)
	adminRouter.Get("/healthz", metrics.HealthHandler())
	adminRouter.Get("/metrics", metrics.Handler().ServeHTTP)
	p.adminSrv = &http.Server{Addr: addrs.Admin, Handler: adminRouter}

	workerRouter := chi.NewRouter()
	p.syncAPI.Routes(workerRouter)
	p.workerSrv = &http.Server{Addr: addrs.Worker, Handler: workerRouter}

	go p.serve(p.adminSrv, "admin")
	go p.serve(p.workerSrv, "worker")

	return nil
}

func (p *Plane) serve(srv *http.Server, name string) {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		p.logger.Error().Err(err).Str("server", name).Msg("http server stopped unexpectedly")
	}
}

// Stop shuts everything down in the reverse order it was started,
// matching the teacher's Manager.Shutdown cascade. Each step's failure is
// logged, not fatal, so later steps still run.
func (p *Plane) Stop(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if p.workerSrv != nil {
		if err := p.workerSrv.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn().Err(err).Msg("worker http server shutdown")
		}
	}
	if p.adminSrv != nil {
		if err := p.adminSrv.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn().Err(err).Msg("admin http server shutdown")
		}
	}

	p.collector.Stop()
	p.review.Stop()
	p.snapshot.Stop()
	p.workers.Stop()
}
