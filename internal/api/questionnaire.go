package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/questionnaire"
	"github.com/promnight/prom-match/internal/store"
)

func (s *Server) listQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, questionnaire.Catalog)
}

type submitRequest struct {
	Answers []struct {
		QuestionNumber int    `json:"question_number"`
		Answer         string `json:"answer"`
	} `json:"answers"`
}

func (s *Server) submitQuestionnaire(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req submitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answers := make([]models.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, models.Answer{UserID: userID, QuestionNumber: a.QuestionNumber, Value: a.Answer})
	}

	err := s.questionnaire.Submit(r.Context(), userID, answers)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"questions_answered": true})
	case errors.Is(err, questionnaire.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, "invalid_question")
	case errors.Is(err, questionnaire.ErrInvalidOption):
		writeError(w, http.StatusBadRequest, "invalid_option")
	case errors.Is(err, questionnaire.ErrDuplicateAnswer):
		writeError(w, http.StatusBadRequest, "duplicate_answer")
	case errors.Is(err, questionnaire.ErrIncomplete):
		writeError(w, http.StatusBadRequest, "questionnaire_incomplete")
	case errors.Is(err, questionnaire.ErrAlreadyAnswered):
		writeError(w, http.StatusConflict, "already_answered")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "profile_not_found")
	default:
		s.logger.Error("submitting questionnaire", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "questionnaire_error")
	}
}

func (s *Server) questionnaireStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	done, err := s.questionnaire.HasAnswered(r.Context(), userID)
	if err != nil {
		s.logger.Error("questionnaire status", zap.Int("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"questions_answered": done})
}
