// Package config loads seqgen settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting. Command-line flags are
// applied on top by the caller.
type Config struct {
	Output   string `env:"SEQGEN_OUTPUT" envDefault:"random_sequence.txt"`
	Encoding string `env:"SEQGEN_ENCODING" envDefault:"text"`

	Entropy        string        `env:"SEQGEN_ENTROPY" envDefault:"os"`
	Generator      string        `env:"SEQGEN_PRNG" envDefault:"pcg"`
	HTTPSources    []string      `env:"SEQGEN_HTTP_SOURCES" envSeparator:","`
	EntropyTimeout time.Duration `env:"SEQGEN_ENTROPY_TIMEOUT" envDefault:"3s"`

	LedgerDriver string `env:"SEQGEN_LEDGER_DRIVER" envDefault:"json"`
	LedgerPath   string `env:"SEQGEN_LEDGER_PATH" envDefault:"store.json"`

	Addr      string            `env:"SEQGEN_ADDR" envDefault:":4040"`
	OutputDir string            `env:"SEQGEN_OUTPUT_DIR" envDefault:"sequences"`
	MaxUpload datasize.ByteSize `env:"SEQGEN_MAX_UPLOAD" envDefault:"32MB"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the configuration from the current environment.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.MaxUpload == 0 {
		return Config{}, fmt.Errorf("SEQGEN_MAX_UPLOAD must be positive")
	}
	return cfg, nil
}
