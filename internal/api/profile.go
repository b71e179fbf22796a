package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/store"
)

type profileRequest struct {
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Crush  string `json:"crush"`
}

func (s *Server) createProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	if deadline := s.schedule.RegistrationClosesAt; !deadline.IsZero() && !s.now().Before(deadline) {
		writeError(w, http.StatusForbidden, "registration_closed")
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	gender, err := models.ParseGender(strings.ToLower(strings.TrimSpace(req.Gender)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_gender")
		return
	}

	err = s.store.CreateProfile(r.Context(), models.User{
		ID:     userID,
		Name:   req.Name,
		Gender: gender,
		Crush:  strings.TrimSpace(req.Crush),
	})
	switch {
	case errors.Is(err, store.ErrProfileExists):
		writeError(w, http.StatusConflict, "profile_exists")
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "account_not_found")
		return
	case err != nil:
		s.logger.Error("creating profile", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "profile_error")
		return
	}

	u, err := s.store.GetUser(r.Context(), userID)
	if err != nil {
		s.logger.Error("loading new profile", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// me is the dashboard: the caller's profile with questionnaire and match state.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	u, err := s.store.GetUser(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	}
	if err != nil {
		s.logger.Error("loading profile", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, u)
}
