package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/api"
	"github.com/promnight/prom-match/internal/config"
	"github.com/promnight/prom-match/internal/events"
	"github.com/promnight/prom-match/internal/matcher"
	"github.com/promnight/prom-match/internal/questionnaire"
	"github.com/promnight/prom-match/internal/ratelimit"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", true, "apply the schema before serving (postgres only)")
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or set JWT_SECRET)")
	}

	s, pg, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if pg != nil && serveMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return err
		}
	}

	hub := events.NewHub(log, func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(cfg.HTTP.AllowedOrigins, origin)
	})
	notifier := events.Multi{hub}
	if cfg.AMQP.URL != "" {
		pub, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		notifier = append(notifier, pub)
		log.Info("publishing match events", zap.String("exchange", cfg.AMQP.Exchange))
	} else {
		notifier = append(notifier, events.LogNotifier{Logger: log})
	}

	var limiter *ratelimit.Limiter
	if cfg.Redis.URL != "" {
		rdb, err := ratelimit.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		limiter = ratelimit.New(rdb, app+":match", cfg.Redis.MatchRateLimit, cfg.Redis.RateWindow)
	}

	deadline, _ := cfg.Schedule.RegistrationDeadline()
	opens, _ := cfg.Schedule.MatchingStart()

	srv := api.New(api.Options{
		Store: s,
		Matcher: matcher.New(s, log,
			matcher.WithMaxAttempts(cfg.Matcher.MaxAttempts),
			matcher.WithZeroScore(cfg.Matcher.AllowZeroScore),
			matcher.WithNotifier(notifier),
		),
		Questionnaire:  questionnaire.NewService(s, log),
		Hub:            hub,
		Limiter:        limiter,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		TokenTTL:       cfg.Auth.TokenTTL,
		Schedule:       api.Schedule{RegistrationClosesAt: deadline, MatchingOpensAt: opens},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting the prom-match api", zap.String("addr", cfg.HTTP.Addr), zap.String("version", version))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
