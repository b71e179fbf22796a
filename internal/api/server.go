// Package api is the HTTP surface: accounts, profile, questionnaire, matching and the
// websocket feed of match notifications.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/events"
	"github.com/promnight/prom-match/internal/matcher"
	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/questionnaire"
	"github.com/promnight/prom-match/internal/ratelimit"
)

// Store is the account and profile persistence the handlers use directly.
type Store interface {
	Ping(ctx context.Context) error
	CreateAccount(ctx context.Context, email, passwordHash string) (int, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateProfile(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id int) (*models.User, error)
}

// Matcher runs the matching routine for one user.
type Matcher interface {
	FindBestMatch(ctx context.Context, userID int) (matcher.Result, error)
}

// Schedule gates profile setup and matching. Zero instants disable the gate.
type Schedule struct {
	RegistrationClosesAt time.Time
	MatchingOpensAt      time.Time
}

type Options struct {
	Store          Store
	Matcher        Matcher
	Questionnaire  *questionnaire.Service
	Hub            *events.Hub
	Limiter        *ratelimit.Limiter
	JWTSecret      []byte
	TokenTTL       time.Duration
	Schedule       Schedule
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Server struct {
	store         Store
	matcher       Matcher
	questionnaire *questionnaire.Service
	hub           *events.Hub
	limiter       *ratelimit.Limiter
	jwtSecret     []byte
	tokenTTL      time.Duration
	schedule      Schedule
	origins       []string
	logger        *zap.Logger
	now           func() time.Time
}

// New builds a Server. A nil Limiter disables rate limiting.
func New(o Options) *Server {
	if o.TokenTTL <= 0 {
		o.TokenTTL = 24 * time.Hour
	}
	return &Server{
		store:         o.Store,
		matcher:       o.Matcher,
		questionnaire: o.Questionnaire,
		hub:           o.Hub,
		limiter:       o.Limiter,
		jwtSecret:     o.JWTSecret,
		tokenTTL:      o.TokenTTL,
		schedule:      o.Schedule,
		origins:       o.AllowedOrigins,
		logger:        o.Logger.Named("http"),
		now:           time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)
	r.Post("/register", s.register)
	r.Post("/login", s.login)
	r.Get("/questions", s.listQuestions)

	// Browsers cannot set headers on websocket upgrades, so this route also takes ?token=.
	r.Get("/ws/match", s.matchFeed)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.me)
		r.Post("/me/profile", s.createProfile)
		r.Post("/questionnaire", s.submitQuestionnaire)
		r.Get("/questionnaire/status", s.questionnaireStatus)
		r.With(s.rateLimit).Post("/match", s.match)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
