package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	envPrefix = "PROM_MATCH"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Matcher  MatcherConfig  `mapstructure:"matcher"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type MatcherConfig struct {
	// MaxAttempts bounds the rescans after a lost race on the mutual-match write.
	MaxAttempts    int  `mapstructure:"max_attempts"`
	AllowZeroScore bool `mapstructure:"allow_zero_score"`
}

// ScheduleConfig holds RFC 3339 timestamps. Empty means "no restriction".
type ScheduleConfig struct {
	RegistrationClosesAt string `mapstructure:"registration_closes_at"`
	MatchingOpensAt      string `mapstructure:"matching_opens_at"`
}

type RedisConfig struct {
	URL            string        `mapstructure:"url"`
	MatchRateLimit int           `mapstructure:"match_rate_limit"`
	RateWindow     time.Duration `mapstructure:"rate_window"`
}

type AMQPConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// SetDefaults registers default values and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("matcher.max_attempts", 3)
	v.SetDefault("matcher.allow_zero_score", false)
	// Empty defaults register the keys so Unmarshal picks up PROM_MATCH_SCHEDULE_*.
	v.SetDefault("schedule.registration_closes_at", "")
	v.SetDefault("schedule.matching_opens_at", "")
	v.SetDefault("redis.match_rate_limit", 10)
	v.SetDefault("redis.rate_window", time.Minute)
	v.SetDefault("amqp.exchange", "match_events")
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Conventional names used by the container setup.
	_ = v.BindEnv("database.url", envPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("auth.jwt_secret", envPrefix+"_AUTH_JWT_SECRET", "JWT_SECRET")
	_ = v.BindEnv("redis.url", envPrefix+"_REDIS_URL", "REDIS_URL")
	_ = v.BindEnv("amqp.url", envPrefix+"_AMQP_URL", "AMQP_URL")
}

// LoadDotEnv reads .env into the process environment when the file exists.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver (or set DATABASE_URL)")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Matcher.MaxAttempts < 1 {
		return fmt.Errorf("matcher.max_attempts must be at least 1, got %d", c.Matcher.MaxAttempts)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if _, err := c.Schedule.RegistrationDeadline(); err != nil {
		return err
	}
	if _, err := c.Schedule.MatchingStart(); err != nil {
		return err
	}
	return nil
}

// RegistrationDeadline is the instant profile setup closes. Zero means never.
func (s ScheduleConfig) RegistrationDeadline() (time.Time, error) {
	return parseInstant("schedule.registration_closes_at", s.RegistrationClosesAt)
}

// MatchingStart is the instant matching opens. Zero means immediately.
func (s ScheduleConfig) MatchingStart() (time.Time, error) {
	return parseInstant("schedule.matching_opens_at", s.MatchingOpensAt)
}

func parseInstant(key, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", key, err)
	}
	return t, nil
}
