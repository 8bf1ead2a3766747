package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"shopee-dash/internal/auth"
	"shopee-dash/internal/dashboard"
	"shopee-dash/internal/registry"
	"shopee-dash/internal/repo"
	"shopee-dash/internal/shopee"
)

const maxRequestBody = 64 << 10

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type addAccountRequest struct {
	Cookie string `json:"cookie" validate:"required"`
	Note   string `json:"note" validate:"required"`
}

type accountResponse struct {
	Account    repo.Account        `json:"account"`
	Resolution shopee.ResolvedName `json:"resolution"`
	View       registry.View       `json:"view"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := s.validate.Struct(dest); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return strings.Join(fields, ", ") + " required"
	}
	return "invalid request"
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Gate == nil {
		writeError(w, http.StatusServiceUnavailable, "login is not configured")
		return
	}
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, user, err := s.deps.Gate.Login(req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrMissingUsername):
		writeError(w, http.StatusBadRequest, "username required")
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.requestLogger(r).Warn("login rejected", "username", auth.NormalizeUsername(req.Username))
		writeError(w, http.StatusUnauthorized, "invalid password")
	case err != nil:
		s.requestLogger(r).Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
	default:
		writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: user})
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Accounts.View())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Accounts.Refresh(r.Context()); err != nil {
		if errors.Is(err, registry.ErrBusy) {
			s.writeRegistryError(w, r, err)
			return
		}
		s.requestLogger(r).Warn("refresh degraded", "error", err)
	}
	writeJSON(w, http.StatusOK, s.deps.Accounts.View())
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	note := strings.TrimSpace(req.Note)
	if strings.TrimSpace(req.Cookie) == "" || note == "" {
		writeError(w, http.StatusBadRequest, "cookie, note required")
		return
	}

	account, res, err := s.deps.Accounts.AddAccount(r.Context(), strings.TrimSpace(req.Cookie), note)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Resolution: res, View: s.deps.Accounts.View()})
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Accounts.RemoveAccount(r.Context(), id); err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Accounts.View())
}

func (s *Server) handleReverify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	account, res, err := s.deps.Accounts.Reverify(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{Account: account, Resolution: res, View: s.deps.Accounts.View()})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.BuildLive(s.deps.Accounts.View().Accounts))
}

func (s *Server) handleAffiliate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dashboard.BuildAffiliate(s.deps.Accounts.View().Accounts))
}

func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, registry.ErrBusy):
		writeError(w, http.StatusConflict, "another operation is in progress")
	case errors.Is(err, registry.ErrIdentityKey):
		writeError(w, http.StatusUnprocessableEntity, "SPC_U not found in cookie")
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, repo.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "account store is not configured")
	case errors.Is(err, registry.ErrMutation):
		s.requestLogger(r).Error("account mutation failed", "error", err)
		writeError(w, http.StatusBadGateway, "account store rejected the change")
	default:
		s.requestLogger(r).Error("account operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
