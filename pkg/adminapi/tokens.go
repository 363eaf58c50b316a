package adminapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cuemby/landctl/pkg/apierr"
	"github.com/cuemby/landctl/pkg/types"
)

type issueTokenRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, apierr.Validation(err.Error()))
		return
	}

	tok, err := s.tokens.Issue(r.Context(), user.ID, req.Name, types.TokenUsageCmdline)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) handleExpireToken(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, apierr.Validation("invalid token id"))
		return
	}
	if err := s.tokens.Expire(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
