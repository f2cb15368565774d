package main

import (
	"bytes"
	"context"
	"flag"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/fasttrain/internal/config"
	"github.com/born-ml/fasttrain/internal/datasets"
)

func TestRun_DefaultsOnCPU(t *testing.T) {
	cfg := config.Default()
	cfg.Hidden = 2
	cfg.Seed = 1

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, &out))

	text := out.String()
	assert.Contains(t, text, "dataset simple points 50 hidden 2")
	assert.Equal(t, 5, strings.Count(text, "forward cost:"))
	assert.Equal(t, 1, strings.Count(text, "Epoch 0 loss "))
	assert.Contains(t, text, "correct ")
}

func TestRun_UnknownDataset(t *testing.T) {
	cfg := config.Default()
	cfg.Dataset = "moons"
	cfg.Seed = 1

	err := run(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, datasets.ErrUnknownDataset)
}

func TestRun_GPUUnavailableOffWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("WebGPU availability depends on the host adapter")
	}

	cfg := config.Default()
	cfg.Backend = config.BackendGPU
	cfg.Seed = 1

	err := run(context.Background(), cfg, &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestParseFlags(t *testing.T) {
	cfg, err := parseFlags([]string{"--PTS", "20", "--HIDDEN", "4", "--DATASET", "xor"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Points)
	assert.Equal(t, 4, cfg.Hidden)
	assert.Equal(t, "xor", cfg.Dataset)
	assert.Equal(t, config.BackendCPU, cfg.Backend)
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad int", []string{"--PTS", "many"}},
		{"unknown flag", []string{"--LAYERS", "3"}},
		{"unknown backend", []string{"--BACKEND", "tpu"}},
		{"invalid value", []string{"--HIDDEN", "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			_, err := parseFlags(tt.args, &stderr)
			assert.Error(t, err)
		})
	}

	_, err := parseFlags([]string{"-h"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, flag.ErrHelp)
}
