package main

import (
	"log/slog"
	"time"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT"`
	Postgres        string        `env:"PG_DSN"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"APP_SHUTDOWN_TIMEOUT" default:"10s"`

	// Economy tunables, set per deployment rather than baked in.
	ReactionCooldown time.Duration `env:"REACTION_COOLDOWN" default:"30s"`
	GraceWindowDays  int           `env:"GRACE_WINDOW_DAYS" default:"3"`
	RewardActionCap  int64         `env:"REWARD_ACTION_CAP" default:"100"`

	// Cron spec for the advisory streak sweep, e.g. "@every 10m".
	SweepSchedule string `env:"STREAK_SWEEP_SCHEDULE" default:"@hourly"`
}
