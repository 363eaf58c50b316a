// Package syncapi is the worker-facing HTTP surface: POST /worker-api/sync
// (presence + configuration pull) and GET /worker-api/task (per-task
// outcome reporting). Grounded on the teacher's pkg/api/health.go typed-
// response idiom, promoted to chi since the teacher's own worker<->manager
// wire protocol (gRPC+mTLS, a generated .proto package) has no stub in this
// pack to build against.
package syncapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/confsnapshot"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/tokenregistry"
	"github.com/cuemby/landctl/pkg/types"
	"github.com/cuemby/landctl/pkg/workerregistry"
)

// Server serves the worker-facing sync and task-report endpoints.
type Server struct {
	tokens   *tokenregistry.Registry
	workers  *workerregistry.Registry
	snapshot *confsnapshot.Builder
	repo     repository.Repository
	logger   zerolog.Logger
}

// New constructs a Server wiring the given components.
func New(tokens *tokenregistry.Registry, workers *workerregistry.Registry, snapshot *confsnapshot.Builder, repo repository.Repository) *Server {
	return &Server{
		tokens:   tokens,
		workers:  workers,
		snapshot: snapshot,
		repo:     repo,
		logger:   log.WithComponent("syncapi"),
	}
}

// Routes mounts this server's endpoints onto r.
func (s *Server) Routes(r chi.Router) {
	r.Post("/worker-api/sync", s.handleSync)
	r.Get("/worker-api/task", s.handleTask)
}

type syncRequest struct {
	IP       string `json:"ip"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Timezone string `json:"timezone"`
	Hostname string `json:"hostname"`
}

type syncResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    []types.ConfItem `json:"data"`
}

func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (*types.Token, bool) {
	value := bearerToken(r)
	if value == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return nil, false
	}
	tok, _, err := s.tokens.Verify(r.Context(), value, types.TokenUsageWorker)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return tok, true
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// handleSync implements spec.md §4.8 step by step.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ipInfo, _ := json.Marshal(map[string]string{
		"city": req.City, "region": req.Region, "country": req.Country,
		"loc": req.Loc, "org": req.Org, "timezone": req.Timezone,
	})
	if _, err := s.workers.Heartbeat(r.Context(), req.IP, req.Hostname, string(ipInfo)); err != nil {
		s.logger.Error().Err(err).Str("ip", req.IP).Msg("heartbeat failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	snap := s.snapshot.Current()
	clientMD5 := r.Header.Get("X-Md5")

	w.Header().Set("X-Md5", snap.Checksum)
	if snap.Checksum != "" && clientMD5 == snap.Checksum {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(syncResponse{Status: "ok", Data: snap.Items})
}

type taskResponse struct {
	Status string              `json:"status"`
	Data   []*types.DeployTask `json:"data"`
}

// handleTask implements the GET /worker-api/task companion endpoint.
func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(w, r); !ok {
		return
	}

	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "missing ip query parameter", http.StatusBadRequest)
		return
	}

	var outcomes map[string]string
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&outcomes); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	for taskID, result := range outcomes {
		var err error
		if result == "success" {
			err = s.repo.SetDeployTaskSuccess(r.Context(), ip, taskID)
		} else {
			err = s.repo.SetDeployTaskFailed(r.Context(), ip, taskID, result)
		}
		if err != nil {
			s.logger.Error().Err(err).Str("ip", ip).Str("task_id", taskID).Msg("failed to record task outcome")
		}
	}

	doing := types.DeployTaskStatusDoing
	tasks, err := s.repo.ListDeployTasks(r.Context(), &ip, &doing, nil)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(taskResponse{Status: "ok", Data: tasks})
}
