package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/matcher"
	"github.com/promnight/prom-match/internal/store"
)

// matchView is what a user learns about their counterpart.
type matchView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type matchResponse struct {
	Status  string     `json:"status"`
	Match   *matchView `json:"match,omitempty"`
	Score   *int       `json:"score,omitempty"`
	OpensAt *time.Time `json:"opens_at,omitempty"`
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	if opens := s.schedule.MatchingOpensAt; !opens.IsZero() && s.now().Before(opens) {
		writeJSON(w, http.StatusOK, matchResponse{Status: "waiting", OpensAt: &opens})
		return
	}

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
	// Matched users keep seeing their match even if the flag was never set.
	if !u.QuestionsAnswered && !u.IsMatched() {
		writeError(w, http.StatusForbidden, "questionnaire_incomplete")
		return
	}

	res, err := s.matcher.FindBestMatch(r.Context(), userID)
	switch {
	case errors.Is(err, matcher.ErrConflict):
		writeError(w, http.StatusConflict, "match_conflict")
		return
	case errors.Is(err, matcher.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found")
		return
	case err != nil:
		s.logger.Error("finding match", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "match_error")
		return
	}

	resp := matchResponse{Status: string(res.Outcome)}
	if res.Match != nil {
		resp.Match = &matchView{ID: res.Match.ID, Name: res.Match.Name}
	}
	if res.Outcome == matcher.OutcomeMatched {
		score := res.Score
		resp.Score = &score
	}
	writeJSON(w, http.StatusOK, resp)
}

// matchFeed streams match.found events to the caller over a websocket.
func (s *Server) matchFeed(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "feed_unavailable")
		return
	}
	s.hub.Serve(w, r, userID)
}
