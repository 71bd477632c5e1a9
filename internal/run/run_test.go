package run

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"weavecore/internal/clock"
	"weavecore/internal/config"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExecute_SingleProducerSimulatedRunSucceeds(t *testing.T) {
	dir := t.TempDir()

	blueprintPath := filepath.Join(dir, "blueprint.json")
	writeFile(t, blueprintPath, `{
		"meta": {"id": "bp1", "name": "Test", "kind": "blueprint"},
		"inputs": [],
		"producers": [
			{"alias": "Greeter", "producerRef": "TextProducer"}
		],
		"connections": []
	}`)

	inputsPath := filepath.Join(dir, "inputs.json")
	writeFile(t, inputsPath, `{}`)

	cfg, err := config.Load([]string{
		"--workdir", dir,
		"--storage-root", "store",
		"--movie-id", "movie-1",
		"--blueprint", blueprintPath,
		"--inputs", inputsPath,
		"--mode", "simulated",
	})
	require.NoError(t, err)

	res, err := Execute(context.Background(), cfg, clock.Fixed{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	require.Equal(t, "succeeded", res.Summary.Status)
	require.Equal(t, 1, res.Summary.Succeeded)

	planData, err := os.ReadFile(res.PlanPath)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(planData, &decoded))

	_, statErr := os.Stat(res.LogPath)
	require.NoError(t, statErr)
}

func TestExecute_DryRunSkipsExecution(t *testing.T) {
	dir := t.TempDir()

	blueprintPath := filepath.Join(dir, "blueprint.json")
	writeFile(t, blueprintPath, `{
		"meta": {"id": "bp1", "name": "Test", "kind": "blueprint"},
		"inputs": [],
		"producers": [{"alias": "Greeter", "producerRef": "TextProducer"}],
		"connections": []
	}`)
	inputsPath := filepath.Join(dir, "inputs.json")
	writeFile(t, inputsPath, `{}`)

	cfg, err := config.Load([]string{
		"--workdir", dir,
		"--storage-root", "store",
		"--movie-id", "movie-1",
		"--blueprint", blueprintPath,
		"--inputs", inputsPath,
		"--mode", "simulated",
		"--dry-run",
	})
	require.NoError(t, err)

	res, err := Execute(context.Background(), cfg, clock.Fixed{At: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)})
	require.NoError(t, err)
	require.Nil(t, res.Summary)
	require.Equal(t, 1, res.JobCount)
}
