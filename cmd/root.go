package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/config"
	"github.com/promnight/prom-match/internal/logger"
	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/store"
)

const (
	app = "prom-match"
)

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "prom-match pairs students for prom night based on their questionnaire answers",
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.SetDefaults(viper.GetViper())
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is prom-match.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("driver", "", "store driver: postgres or memory")

	_ = viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("driver"))
}

// initConfig reads the optional dotenv and config files. A missing default config file is fine.
func initConfig() {
	if err := config.LoadDotEnv(envFile); err != nil {
		cobra.CheckErr(fmt.Errorf("loading %s: %w", envFile, err))
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			cobra.CheckErr(fmt.Errorf("reading config: %w", err))
		}
	}
}

// setup loads the configuration and builds the logger every command starts with.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("creating a logger: %w", err)
	}
	return cfg, log, nil
}

// appStore is everything the commands need from a User Store.
type appStore interface {
	Ping(ctx context.Context) error
	CreateAccount(ctx context.Context, email, passwordHash string) (int, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
	CreateProfile(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id int) (*models.User, error)
	GetUserWithAnswers(ctx context.Context, id int) (*models.User, error)
	ListUnmatchedUsersByGender(ctx context.Context, gender models.Gender) ([]models.User, error)
	SetMutualMatch(ctx context.Context, a, b int) error
	SaveAnswer(ctx context.Context, a models.Answer) error
	MarkQuestionsAnswered(ctx context.Context, userID int) error
	SubmitAnswers(ctx context.Context, userID int, answers []models.Answer) error
}

// openStore returns the configured store and a func releasing it. Postgres stores are
// returned as well so callers can migrate; it is nil for the memory driver.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (appStore, *store.Postgres, func(), error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn("using the in-memory store; data is lost on exit")
		return store.NewMemory(), nil, func() {}, nil
	}

	db, err := store.Open(ctx, cfg.Database.URL, log)
	if err != nil {
		return nil, nil, nil, err
	}
	pg := store.NewPostgres(db, log)
	return pg, pg, func() { _ = db.Close() }, nil
}
