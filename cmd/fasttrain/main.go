// Command fasttrain trains a small feed-forward classifier on a toy 2-D dataset.
//
// Usage:
//
//	fasttrain --PTS 50 --HIDDEN 10 --RATE 0.05 --BACKEND cpu --DATASET simple
//
// Per-batch forward/backward timings and one line per evaluated epoch are
// printed to stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"golang.org/x/exp/rand"

	"github.com/born-ml/fasttrain/internal/config"
	"github.com/born-ml/fasttrain/internal/datasets"
	"github.com/born-ml/fasttrain/internal/train"
)

// ErrBackendUnavailable is returned when the requested compute backend
// cannot be opened on this machine.
var ErrBackendUnavailable = errors.New("backend unavailable")

func main() {
	cfg, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatalf("fasttrain: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.Fatalf("fasttrain: %v", err)
	}
}

// parseFlags builds a validated Config from the command-line arguments.
// Usage and parse errors are written to stderr.
func parseFlags(args []string, stderr io.Writer) (config.Config, error) {
	cfg := config.Default()
	fs := flag.NewFlagSet("fasttrain", flag.ContinueOnError)
	fs.SetOutput(stderr)
	finish := cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if err := finish(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// run generates the dataset and trains on the configured backend.
func run(ctx context.Context, cfg config.Config, out io.Writer) error {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)

	data, err := datasets.Generate(cfg.Dataset, cfg.Points, src)
	if err != nil {
		return err
	}

	switch cfg.Backend {
	case config.BackendGPU:
		return trainGPU(ctx, cfg, data, src, out)
	default:
		return trainOn(ctx, autodiff.New(cpu.New()), cfg, data, src, out)
	}
}

// trainOn runs the training loop on an autodiff-wrapped backend.
func trainOn[B tensor.Backend](
	ctx context.Context,
	backend *autodiff.Backend[B],
	cfg config.Config,
	data *datasets.Graph,
	src rand.Source,
	out io.Writer,
) error {
	trainer, err := train.New(backend, train.Options{
		Hidden:       cfg.Hidden,
		LearningRate: cfg.Rate,
		MaxEpochs:    cfg.Epochs,
		BatchSize:    cfg.BatchSize,
		EvalEvery:    cfg.EvalEvery,
		Source:       src,
		Out:          out,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "backend %s dataset %s points %d hidden %d parameters %d\n",
		backend.Name(), data.Name, data.N(), cfg.Hidden, trainer.Model().NumParameters())

	_, err = trainer.Train(ctx, data)
	return err
}
