package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/promnight/prom-match/internal/store"
)

type contextKey string

const userIDKey contextKey = "userID"

func userIDFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(userIDKey).(int)
	return id, ok
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *credentials) normalize() bool {
	c.Email = strings.TrimSpace(c.Email)
	c.Password = strings.TrimSpace(c.Password)
	return c.Email != "" && c.Password != ""
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.normalize() {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("hashing password", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "hash_error")
		return
	}

	id, err := s.store.CreateAccount(r.Context(), req.Email, string(hash))
	if errors.Is(err, store.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "email_exists")
		return
	}
	if err != nil {
		s.logger.Error("creating account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "register_error")
		return
	}

	token, err := s.issueToken(id)
	if err != nil {
		s.logger.Error("signing token", zap.Int("user_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token_generation_error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"token": token, "id": id})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.normalize() {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	acct, err := s.store.GetAccountByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	if err != nil {
		s.logger.Error("loading account", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := s.issueToken(acct.ID)
	if err != nil {
		s.logger.Error("signing token", zap.Int("user_id", acct.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token_generation_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "id": acct.ID})
}

func (s *Server) issueToken(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     s.now().Add(s.tokenTTL).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}

func (s *Server) parseToken(tokenStr string) (int, bool) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return 0, false
	}

	// MapClaims decodes numbers as float64.
	fv, ok := claims["user_id"].(float64)
	if !ok {
		return 0, false
	}
	return int(fv), true
}

// userIDFromRequest reads the bearer token, falling back to the token query parameter.
func (s *Server) userIDFromRequest(r *http.Request) (int, bool) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return s.parseToken(strings.TrimPrefix(auth, "Bearer "))
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return s.parseToken(q)
	}
	return 0, false
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID, ok := s.parseToken(strings.TrimPrefix(auth, "Bearer "))
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}
