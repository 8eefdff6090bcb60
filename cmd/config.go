package main

import (
	"batepapo/errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

const (
	storageMemory = "memory"
	storageBadger = "badger"
)

type Config struct {
	Host              string        `env:"HOST,default=localhost"`
	Port              int           `env:"PORT,default=8080"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL,default=15s"`
	InactivityTimeout time.Duration `env:"INACTIVITY_TIMEOUT,default=10s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`
	Storage           string        `env:"STORAGE,default=memory"`
	BadgerFilepath    string        `env:"BADGER_FILEPATH"`
	CensoredWords     string        `env:"CENSORED_WORDS"`
	CharReplacement   string        `env:"CHARACTER_REPLACEMENT,default=*"`
	RateLimitRPS      float64       `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST,default=10"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks what tags cannot express.
func (c Config) Validate() error {
	if c.SweepInterval <= 0 || c.InactivityTimeout <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL and INACTIVITY_TIMEOUT must be positive")
	}
	switch c.Storage {
	case storageMemory:
	case storageBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required when STORAGE=%s", storageBadger)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", storageMemory, storageBadger, c.Storage)
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

// Words splits CENSORED_WORDS on commas, dropping blanks.
func (c Config) Words() []string {
	words := lo.Map(strings.Split(c.CensoredWords, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(words)
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w: CHARACTER_REPLACEMENT got %q", errors.ErrInvalidReplacement, str)
	}
	return r[0], nil
}
