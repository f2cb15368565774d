// Package config holds the runtime knobs of a training run and binds them
// to command-line flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Backend selects the compute device the tensor engine runs on.
type Backend string

// Supported backends.
const (
	BackendCPU Backend = "cpu"
	BackendGPU Backend = "gpu"
)

// ParseBackend maps a flag value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendCPU, BackendGPU:
		return b, nil
	default:
		return "", fmt.Errorf("%w: unknown backend %q (want cpu or gpu)", ErrInvalidConfig, s)
	}
}

// Config captures the runtime knobs for a training run.
type Config struct {
	Points    int     // Dataset size (--PTS)
	Hidden    int     // Hidden width h (--HIDDEN)
	Rate      float64 // SGD learning rate (--RATE)
	Backend   Backend // cpu or gpu (--BACKEND)
	Dataset   string  // Dataset generator name (--DATASET)
	Plot      string  // Accepted for compatibility, unused (--PLOT)
	Epochs    int     // Number of epochs (--EPOCHS)
	BatchSize int     // Mini-batch size (--BATCH)
	EvalEvery int     // Evaluate and log every N epochs (--EVAL_EVERY)
	Seed      uint64  // PRNG seed, 0 = time based (--SEED)
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		Points:    50,
		Hidden:    10,
		Rate:      0.05,
		Backend:   BackendCPU,
		Dataset:   "simple",
		Plot:      "false",
		Epochs:    1,
		BatchSize: 10,
		EvalEvery: 10,
	}
}

// RegisterFlags binds c's fields to fs, using the current values as defaults.
//
// The returned function must be called after fs.Parse to apply values that
// need conversion (the backend name).
func (c *Config) RegisterFlags(fs *flag.FlagSet) func() error {
	fs.IntVar(&c.Points, "PTS", c.Points, "number of points")
	fs.IntVar(&c.Hidden, "HIDDEN", c.Hidden, "number of hiddens")
	fs.Float64Var(&c.Rate, "RATE", c.Rate, "learning rate")
	backend := fs.String("BACKEND", string(c.Backend), "backend mode (cpu or gpu)")
	fs.StringVar(&c.Dataset, "DATASET", c.Dataset, "dataset")
	fs.StringVar(&c.Plot, "PLOT", c.Plot, "unused")
	fs.IntVar(&c.Epochs, "EPOCHS", c.Epochs, "number of training epochs")
	fs.IntVar(&c.BatchSize, "BATCH", c.BatchSize, "mini-batch size")
	fs.IntVar(&c.EvalEvery, "EVAL_EVERY", c.EvalEvery, "evaluate and log every N epochs")
	fs.Uint64Var(&c.Seed, "SEED", c.Seed, "random seed (0 = time based)")

	return func() error {
		b, err := ParseBackend(*backend)
		if err != nil {
			return err
		}
		c.Backend = b
		return nil
	}
}

// Validate verifies the config is runnable.
func (c Config) Validate() error {
	var errs []error
	if c.Points < 0 {
		errs = append(errs, fmt.Errorf("%w: PTS must be >= 0, got %d", ErrInvalidConfig, c.Points))
	}
	if c.Hidden < 1 {
		errs = append(errs, fmt.Errorf("%w: HIDDEN must be >= 1, got %d", ErrInvalidConfig, c.Hidden))
	}
	if !(c.Rate > 0) {
		errs = append(errs, fmt.Errorf("%w: RATE must be > 0, got %g", ErrInvalidConfig, c.Rate))
	}
	if _, err := ParseBackend(string(c.Backend)); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Dataset) == "" {
		errs = append(errs, fmt.Errorf("%w: DATASET must not be empty", ErrInvalidConfig))
	}
	if c.Epochs < 0 {
		errs = append(errs, fmt.Errorf("%w: EPOCHS must be >= 0, got %d", ErrInvalidConfig, c.Epochs))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("%w: BATCH must be >= 1, got %d", ErrInvalidConfig, c.BatchSize))
	}
	if c.EvalEvery < 1 {
		errs = append(errs, fmt.Errorf("%w: EVAL_EVERY must be >= 1, got %d", ErrInvalidConfig, c.EvalEvery))
	}
	return errors.Join(errs...)
}
