package adminapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/types"
)

type deployRequest struct {
	// WasmBytes decodes from a base64 JSON string, matching encoding/json's
	// standard []byte handling.
	WasmBytes []byte `json:"wasm_bytes" validate:"required"`
	// ContentType is accepted for forward compatibility with non-wasm
	// artifact types; the current storage model doesn't persist it
	// alongside StoragePath/StorageMD5.
	ContentType string `json:"content_type"`
}

func (s *Server) loadDeploySpec(r *http.Request) types.DeploySpec {
	spec := types.DeploySpec{CPULimit: 1.0, MemoryLimitMB: 128, FetchLimitSecond: 30}
	raw, ok, err := s.repo.GetSetting(r.Context(), "deploy-defaults")
	if err != nil || !ok {
		return spec
	}
	_ = json.Unmarshal([]byte(raw), &spec)
	return spec
}

// handleDeploy implements spec.md §4.10's POST /projects/{name}/deploy: it
// creates a Development deployment, drives it through Uploading via the
// FSM, and fans tasks out to the online worker fleet. ReviewLoop takes the
// deployment from Deploying to its terminal status asynchronously.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	proj, user, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		writeError(w, apierr.Validation("invalid request body"))
		return
	}
	if len(body) > maxUploadBytes {
		writeError(w, apierr.TooLarge("upload exceeds 10 MiB"))
		return
	}

	var req deployRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apierr.Validation(err.Error()))
		return
	}
	if len(req.WasmBytes) > maxUploadBytes {
		writeError(w, apierr.TooLarge("upload exceeds 10 MiB"))
		return
	}

	settings := s.loadDomainSettings(r)
	d := &types.Deployment{
		OwnerID:     user.ID,
		OwnerUUID:   user.UUID,
		ProjectID:   proj.ID,
		ProjectUUID: proj.UUID,
		DeployType:  types.DeployTypeDevelopment,
		Domain:      buildDomain(proj.Name, types.DeployTypeDevelopment, settings),
		Spec:        s.loadDeploySpec(r),
		Status:      types.DeploymentStatusActive,
	}
	if err := s.repo.CreateDeployment(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	if err := s.fsm.Advance(r.Context(), d, req.WasmBytes); err != nil {
		s.logger.Error().Err(err).Int64("deployment_id", d.ID).Msg("advance failed")
	} else if d.DeployStatus == types.DeployStatusDeploying {
		if err := s.fsm.Fanout(r.Context(), d.ID); err != nil {
			s.logger.Error().Err(err).Int64("deployment_id", d.ID).Msg("fanout failed")
		}
	}

	final, err := s.repo.GetDeployment(r.Context(), d.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, final)
}

// handlePublish implements POST /projects/{name}/publish: it clones the
// latest successful Development deployment's already-uploaded artifact
// into a new Production deployment and fans it out again. ReviewLoop's
// Success transition outdates prior Production deployments and reassigns
// the project's prod_domain once every worker confirms.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	proj, user, err := s.loadOwnedProject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	src, err := s.repo.GetLatestDeployment(r.Context(), proj.ID, types.DeployTypeDevelopment)
	if err != nil {
		writeError(w, err)
		return
	}
	if src.DeployStatus != types.DeployStatusSuccess {
		writeError(w, apierr.Conflict("no successful development deployment to publish"))
		return
	}

	settings := s.loadDomainSettings(r)
	d := &types.Deployment{
		OwnerID:      user.ID,
		OwnerUUID:    user.UUID,
		ProjectID:    proj.ID,
		ProjectUUID:  proj.UUID,
		DeployType:   types.DeployTypeProduction,
		Domain:       buildDomain(proj.Name, types.DeployTypeProduction, settings),
		Spec:         src.Spec,
		StoragePath:  src.StoragePath,
		StorageMD5:   src.StorageMD5,
		DeployStatus: types.DeployStatusDeploying,
		Status:       types.DeploymentStatusActive,
	}
	if err := s.repo.CreateDeployment(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}
	if err := s.repo.SetDeploymentStorage(r.Context(), d.ID, src.StoragePath, src.StorageMD5); err != nil {
		writeError(w, err)
		return
	}

	if err := s.fsm.Fanout(r.Context(), d.ID); err != nil {
		s.logger.Error().Err(err).Int64("deployment_id", d.ID).Msg("publish fanout failed")
	}

	final, err := s.repo.GetDeployment(r.Context(), d.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, final)
}
