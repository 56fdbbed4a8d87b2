package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MCA"

type Config struct {
	// Server
	Port     int
	Env      string
	LogLevel string

	// Database. Empty runs with in-memory collaborators.
	DatabaseURL string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// CORS
	CORSAllowedOrigins []string

	// Sessions
	SessionMaxAge time.Duration
	SweepInterval time.Duration

	// Matchmaking
	MatchCandidateWindow int
	DefaultDeckSize      int

	// Inbound websocket flood control, per user
	WSMessageBurst int64
	WSMessageRate  int64
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("jwt secret is required in production")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("session max age must be positive: %s", c.SessionMaxAge)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive: %s", c.SweepInterval)
	}
	if c.MatchCandidateWindow < 1 {
		return fmt.Errorf("match candidate window must be at least 1: %d", c.MatchCandidateWindow)
	}
	if c.DefaultDeckSize < 1 {
		return fmt.Errorf("default deck size must be at least 1: %d", c.DefaultDeckSize)
	}
	if c.WSMessageBurst < 1 || c.WSMessageRate < 1 {
		return errors.New("websocket message burst and rate must be at least 1")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// BindFlags registers every setting on fs and fills unset flags from the
// environment. MCA_<NAME> wins over a bare <NAME>; an explicit flag wins over
// both. A .env file in the working directory is loaded first when present.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: MCA_PORT)")
	fs.StringVar(&cfg.Env, "env", "development", "runtime environment; production enables release mode and JSON logs (env: MCA_ENV)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn or error (env: MCA_LOG_LEVEL)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN; empty uses in-memory storage (env: MCA_DATABASE_URL)")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "HMAC secret for access tokens (env: MCA_JWT_SECRET)")
	fs.DurationVar(&cfg.JWTExpiration, "jwt-expiration", 24*time.Hour, "access token lifetime (env: MCA_JWT_EXPIRATION)")
	fs.StringSliceVar(&cfg.CORSAllowedOrigins, "cors-allowed-origins", []string{"http://localhost:3000", "http://localhost:5173"}, "allowed browser origins (env: MCA_CORS_ALLOWED_ORIGINS)")
	fs.DurationVar(&cfg.SessionMaxAge, "session-max-age", 4*time.Hour, "inactivity before a match is swept (env: MCA_SESSION_MAX_AGE)")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", 5*time.Minute, "period of the stale session sweep (env: MCA_SWEEP_INTERVAL)")
	fs.IntVar(&cfg.MatchCandidateWindow, "match-candidate-window", 10, "pool members considered per random pairing (env: MCA_MATCH_CANDIDATE_WINDOW)")
	fs.IntVar(&cfg.DefaultDeckSize, "default-deck-size", 10, "cases per deck when startGame omits a count (env: MCA_DEFAULT_DECK_SIZE)")
	fs.Int64Var(&cfg.WSMessageBurst, "ws-message-burst", 20, "inbound websocket messages allowed in a burst (env: MCA_WS_MESSAGE_BURST)")
	fs.Int64Var(&cfg.WSMessageRate, "ws-message-rate", 10, "inbound websocket messages refilled per second (env: MCA_WS_MESSAGE_RATE)")

	fs.VisitAll(func(f *pflag.Flag) {
		bare := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name, envPrefix+"_"+bare, bare)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

