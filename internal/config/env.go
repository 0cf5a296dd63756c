package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// EnvConfig holds daemon settings sourced from the environment. A .env file
// in the working directory is loaded first if present; explicit environment
// variables win.
type EnvConfig struct {
	Port           string        `env:"LAC1_PORT" envDefault:"/dev/ttyS0"`
	Baud           int           `env:"LAC1_BAUD" envDefault:"19200"`
	ReadTimeout    time.Duration `env:"LAC1_READ_TIMEOUT" envDefault:"10ms"`
	Listen         string        `env:"LAC1_LISTEN" envDefault:":8080"`
	DBPath         string        `env:"LAC1_DB" envDefault:"stagebench.db"`
	StageProfile   string        `env:"LAC1_STAGE_PROFILE" envDefault:""`
	AllowHomeMacro bool          `env:"LAC1_ALLOW_HOME_MACRO" envDefault:"false"`
	Dev            bool          `env:"LAC1_DEV" envDefault:"false"`
}

// LoadEnv parses the environment (plus an optional .env file) into an
// EnvConfig.
func LoadEnv() (*EnvConfig, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &EnvConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment config: %w", err)
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("invalid LAC1_BAUD %d: must be positive", cfg.Baud)
	}
	return cfg, nil
}
