// Package adminapi is the user-facing authenticated HTTP surface: project
// and deployment CRUD, token issuance, and two admin-only read endpoints.
// Grounded on the teacher's pkg/api/server.go request lifecycle and
// pkg/api/interceptor.go's boundary-auth idiom (extract identity once at
// the edge, inject into context), promoted to chi/HTTP since the teacher's
// own surface is gRPC+mTLS with no retrievable .proto stub.
package adminapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/deployfsm"
	"github.com/cuemby/landctl/pkg/log"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/tokenregistry"
	"github.com/cuemby/landctl/pkg/types"
)

// maxUploadBytes is the hard cap on a deploy request's wasm_bytes payload.
const maxUploadBytes = 10 * 1024 * 1024

// Server serves the authenticated project/deployment/token surface.
type Server struct {
	repo     repository.Repository
	tokens   *tokenregistry.Registry
	fsm      *deployfsm.FSM
	validate *validator.Validate
	logger   zerolog.Logger
}

// New constructs a Server wiring the given components.
func New(repo repository.Repository, tokens *tokenregistry.Registry, fsm *deployfsm.FSM) *Server {
	return &Server{
		repo:     repo,
		tokens:   tokens,
		fsm:      fsm,
		validate: validator.New(),
		logger:   log.WithComponent("adminapi"),
	}
}

// Routes mounts this server's endpoints onto r.
func (s *Server) Routes(r chi.Router) {
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate(types.TokenUsageSession, types.TokenUsageCmdline))

		r.Post("/projects", s.handleCreateProject)
		r.Get("/projects", s.handleListProjects)
		r.Get("/projects/{name}", s.handleGetProject)
		r.Post("/projects/{name}/deploy", s.handleDeploy)
		r.Post("/projects/{name}/publish", s.handlePublish)
		r.Delete("/projects/{name}", s.handleDeleteProject)

		r.Post("/settings/tokens", s.handleIssueToken)
		r.Delete("/settings/tokens/{id}", s.handleExpireToken)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/admin/users", s.handleListUsers)
			r.Get("/admin/workers", s.handleListWorkers)
		})
	})
}

type ctxKey int

const userCtxKey ctxKey = iota

func userFromContext(ctx context.Context) *types.User {
	u, _ := ctx.Value(userCtxKey).(*types.User)
	return u
}

// authenticate extracts the bearer token, verifies it against any of the
// allowed usages, and injects the resulting User into the request context.
// Grounded on the teacher's mTLS peer-identity interceptor: boundary auth
// once, not sprinkled per handler.
func (s *Server) authenticate(allowed ...types.TokenUsage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := bearerToken(r)
			if value == "" {
				writeError(w, apierr.Unauthorized("missing bearer token"))
				return
			}
			var user *types.User
			for _, usage := range allowed {
				if _, u, err := s.tokens.Verify(r.Context(), value, usage); err == nil {
					user = u
					break
				}
			}
			if user == nil {
				writeError(w, apierr.Unauthorized("invalid token"))
				return
			}
			ctx := context.WithValue(r.Context(), userCtxKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := userFromContext(r.Context())
		if user == nil || user.Role != types.UserRoleAdmin {
			writeError(w, apierr.Forbidden("admin role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// writeError maps an apierr.Kind to its HTTP status exactly once, at this
// boundary, per spec.md §7.
func writeError(w http.ResponseWriter, err error) {
	kind := apierr.KindOf(err)
	writeJSON(w, apierr.StatusCode(kind), errorResponse{Status: "error", Message: err.Error()})
}

func pageParams(r *http.Request) (page, size int) {
	page, size = 1, 20
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			page = n
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			size = n
		}
	}
	return page, size
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, apierr.Validation("not a positive integer")
	}
	return n, nil
}
