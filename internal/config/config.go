package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration for the duel server.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"codequest-duel"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres Postgres
	Redis    Redis
	Security Security
	Duel     Duel
}

// Postgres captures connection info for the question store. Leaving PG_HOST
// empty disables Postgres and falls back to the built-in question bank.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:""`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:""`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:""`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Enabled reports whether a Postgres question store is configured.
func (p Postgres) Enabled() bool {
	return p.Host != ""
}

// Redis holds the XP sink configuration. Leaving REDIS_ADDR empty disables
// XP recording.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Enabled reports whether an XP sink is configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Security stores secrets for signing and auth.
type Security struct {
	JWTSecret string `env:"JWT_SECRET,notEmpty"`
}

// Duel groups gameplay timing and scoring knobs.
type Duel struct {
	QuestionCount    int           `env:"DUEL_QUESTION_COUNT" envDefault:"5"`
	PointsPerCorrect int           `env:"DUEL_POINTS_PER_CORRECT" envDefault:"100"`
	Countdown        time.Duration `env:"DUEL_COUNTDOWN" envDefault:"3s"`
	RevealDelay      time.Duration `env:"DUEL_REVEAL_DELAY" envDefault:"2s"`
	WaitingTimeout   time.Duration `env:"DUEL_WAITING_TIMEOUT" envDefault:"5s"`
	DisconnectGrace  time.Duration `env:"DUEL_DISCONNECT_GRACE" envDefault:"15s"`
	InviteTTL        time.Duration `env:"DUEL_INVITE_TTL" envDefault:"60s"`
	StaleTimeout     time.Duration `env:"DUEL_STALE_TIMEOUT" envDefault:"30s"`
	FinishedGrace    time.Duration `env:"DUEL_FINISHED_GRACE" envDefault:"10s"`
	SweepInterval    time.Duration `env:"DUEL_SWEEP_INTERVAL" envDefault:"5s"`
	BotAccuracy      float64       `env:"DUEL_BOT_ACCURACY" envDefault:"0.7"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
