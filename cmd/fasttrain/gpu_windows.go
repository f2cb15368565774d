//go:build windows

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/webgpu"
	"golang.org/x/exp/rand"

	"github.com/born-ml/fasttrain/internal/config"
	"github.com/born-ml/fasttrain/internal/datasets"
)

func trainGPU(ctx context.Context, cfg config.Config, data *datasets.Graph, src rand.Source, out io.Writer) error {
	if !webgpu.IsAvailable() {
		return fmt.Errorf("%w: WebGPU adapter not found", ErrBackendUnavailable)
	}

	gpu, err := webgpu.New()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer gpu.Release()

	return trainOn(ctx, autodiff.New(gpu), cfg, data, src, out)
}
