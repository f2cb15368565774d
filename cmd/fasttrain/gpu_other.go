//go:build !windows

package main

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/exp/rand"

	"github.com/born-ml/fasttrain/internal/config"
	"github.com/born-ml/fasttrain/internal/datasets"
)

func trainGPU(_ context.Context, _ config.Config, _ *datasets.Graph, _ rand.Source, _ io.Writer) error {
	return fmt.Errorf("%w: the WebGPU backend is only built on windows", ErrBackendUnavailable)
}
