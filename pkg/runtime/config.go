package runtime

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"

	"github.com/thomasrohde/morph/pkg/evaluator"
	"github.com/thomasrohde/morph/pkg/types"
)

// Config holds settings read from the environment.
type Config struct {
	// DefaultNumber is the type of integer literals nothing else constrains.
	DefaultNumber types.Primitive
	Trace         bool
	// Pretty forces human readable diagnostics even when stderr is not a
	// terminal.
	Pretty  bool
	History string
	// MaxCalls and TimeMs limit evaluation; zero means unlimited.
	MaxCalls int64
	TimeMs   int64
}

// LoadConfig reads MORPH_DEFAULT_NUMBER, MORPH_TRACE, MORPH_PRETTY,
// MORPH_HISTORY, MORPH_MAX_CALLS and MORPH_TIME_MS.
func LoadConfig() (Config, error) {
	// env caches the environment; reread it so later changes are seen.
	env.Load()
	cfg := Config{
		Trace:   env.Bool("MORPH_TRACE"),
		Pretty:  env.Bool("MORPH_PRETTY"),
		History: env.Str("MORPH_HISTORY", filepath.Join(env.HomeDir(), ".morph_history")),
	}
	if env.Has("MORPH_MAX_CALLS") {
		if cfg.MaxCalls = env.Int64("MORPH_MAX_CALLS", 0); cfg.MaxCalls <= 0 {
			return Config{}, errors.New("MORPH_MAX_CALLS must be a positive integer")
		}
	}
	if env.Has("MORPH_TIME_MS") {
		if cfg.TimeMs = env.Int64("MORPH_TIME_MS", 0); cfg.TimeMs <= 0 {
			return Config{}, errors.New("MORPH_TIME_MS must be a positive integer")
		}
	}
	name := env.Str("MORPH_DEFAULT_NUMBER", "int32")
	p, ok := types.ParsePrimitive(name)
	if !ok || !p.IsNumber() {
		return Config{}, errors.Errorf("MORPH_DEFAULT_NUMBER: %q is not a number type", name)
	}
	cfg.DefaultNumber = p
	return cfg, nil
}

// Options turns the configuration into runtime options.
func (c Config) Options() []Option {
	opts := []Option{WithDefaultNumberType(c.DefaultNumber)}
	if c.MaxCalls > 0 || c.TimeMs > 0 {
		var b evaluator.Budget
		if c.MaxCalls > 0 {
			b.MaxCalls = &c.MaxCalls
		}
		if c.TimeMs > 0 {
			b.TimeMs = &c.TimeMs
		}
		opts = append(opts, WithBudget(b))
	}
	return opts
}
