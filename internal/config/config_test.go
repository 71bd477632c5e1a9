package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseArgs(extra ...string) []string {
	args := []string{
		"--workdir", "/tmp/work",
		"--storage-root", "store",
		"--movie-id", "movie-1",
		"--blueprint", "blueprint.json",
		"--inputs", "inputs.json",
	}
	return append(args, extra...)
}

func TestLoad_ResolvesRelativePathsUnderWorkDir(t *testing.T) {
	cfg, err := Load(baseArgs())
	require.NoError(t, err)
	require.Equal(t, "/tmp/work/store", cfg.Storage.Root)
	require.Equal(t, "/tmp/work/blueprint.json", cfg.BlueprintPath)
	require.Equal(t, ModeSimulated, cfg.Mode)
	require.Equal(t, FailFast, cfg.FailureMode)
	require.Equal(t, 1, cfg.Concurrency)
}

func TestLoad_RejectsRelativeWorkDir(t *testing.T) {
	_, err := Load([]string{"--workdir", "relative", "--storage-root", "s", "--movie-id", "m", "--blueprint", "b.json", "--inputs", "i.json"})
	require.Error(t, err)
}

func TestLoad_LiveModeRequiresAnAPIKey(t *testing.T) {
	_, err := Load(baseArgs("--mode", "live"))
	require.Error(t, err)

	cfg, err := Load(baseArgs("--mode", "live", "--anthropic-api-key", "sk-test"))
	require.NoError(t, err)
	require.Equal(t, ModeLive, cfg.Mode)
}

func TestLoad_InvalidConcurrencyRejected(t *testing.T) {
	_, err := Load(baseArgs("--concurrency", "0"))
	require.Error(t, err)
}

func TestLoad_ReRunFromBeyondUpToLayerRejected(t *testing.T) {
	_, err := Load(baseArgs("--up-to-layer", "1", "--re-run-from", "2"))
	require.Error(t, err)
}
