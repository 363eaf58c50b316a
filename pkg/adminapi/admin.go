package adminapi

import (
	"net/http"

	"github.com/cuemby/landctl/pkg/types"
)

// handleListUsers is the (ADDED) GET /admin/users?page&size endpoint,
// grounded on original_source/binary/center/src/restapi/admin.rs.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, size := pageParams(r)
	users, total, err := s.repo.ListUsers(r.Context(), page, size)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data  []*types.User `json:"data"`
		Total int           `json:"total"`
		Page  int           `json:"page"`
		Size  int           `json:"size"`
	}{Data: users, Total: total, Page: page, Size: size})
}

// handleListWorkers is the (ADDED) GET /admin/workers endpoint, grounded on
// original_source/crates/core/src/workerinfo/mod.rs. It is a read-only
// projection over Repository.FindWorkers; it adds no new state.
func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.repo.FindWorkers(r.Context(), nil)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*types.Worker `json:"data"`
	}{Data: workers})
}
