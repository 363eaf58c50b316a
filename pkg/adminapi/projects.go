package adminapi

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/repository"
	"github.com/cuemby/landctl/pkg/types"
)

var projectNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*$`)

type createProjectRequest struct {
	Language    string `json:"language" validate:"required,oneof=javascript"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

type domainSettings struct {
	DomainSuffix string `json:"domain_suffix"`
	HTTPProtocol string `json:"http_protocol"`
}

// loadDomainSettings reads the domain-settings entry the core installs a
// default for at boot (spec.md §4.1); callers here tolerate its absence by
// falling back to the same default ("localhost", "http").
func (s *Server) loadDomainSettings(r *http.Request) domainSettings {
	settings := domainSettings{DomainSuffix: "localhost", HTTPProtocol: "http"}
	raw, ok, err := s.repo.GetSetting(r.Context(), "domain-settings")
	if err != nil || !ok {
		return settings
	}
	_ = json.Unmarshal([]byte(raw), &settings)
	return settings
}

// generateProjectName produces a name satisfying projectNamePattern that is
// unlikely to collide; the Repository's UNIQUE constraint is the actual
// source of truth, so a collision simply surfaces as Conflict.
func generateProjectName() string {
	id := uuid.New().String()
	return "fn-" + id[:8]
}

func buildDomain(projectName string, deployType types.DeployType, settings domainSettings) string {
	if deployType == types.DeployTypeProduction {
		return projectName + "." + settings.DomainSuffix
	}
	return projectName + "-dev." + settings.DomainSuffix
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apierr.Validation(err.Error()))
		return
	}

	proj := &types.Project{
		OwnerID:     user.ID,
		Name:        generateProjectName(),
		Language:    types.ProjectLanguage(req.Language),
		Description: req.Description,
		Status:      types.ProjectStatusActive,
		CreatedBy:   types.ProjectCreatedByBlank,
	}
	if req.Source != "" {
		proj.CreatedBy = types.ProjectCreatedByPlayground
	}

	if _, err := s.repo.CreateProjectWithPlayground(r.Context(), proj, req.Source); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, proj)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	page, size := pageParams(r)

	ownerID := user.ID
	filter := repository.ProjectFilter{OwnerID: &ownerID, Search: r.URL.Query().Get("search")}
	projects, total, err := s.repo.ListProjectsPaginated(r.Context(), filter, page, size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Data  []*types.Project `json:"data"`
		Total int              `json:"total"`
		Page  int              `json:"page"`
		Size  int              `json:"size"`
	}{Data: projects, Total: total, Page: page, Size: size})
}

func (s *Server) loadOwnedProject(r *http.Request) (*types.Project, *types.User, error) {
	user := userFromContext(r.Context())
	name := chi.URLParam(r, "name")

	var ownerID *int64
	if user.Role != types.UserRoleAdmin {
		ownerID = &user.ID
	}
	proj, err := s.repo.GetProjectByName(r.Context(), name, ownerID)
	if err != nil {
		return nil, user, err
	}
	return proj, user, nil
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	proj, _, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	proj, user, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.repo.DeleteProject(r.Context(), user.ID, proj.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
