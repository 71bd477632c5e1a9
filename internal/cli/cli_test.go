package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRun_MissingWorkdirReturnsConfigExitCode(t *testing.T) {
	res, err := Run(context.Background(), []string{"--movie-id", "m"})
	require.Error(t, err)
	require.Equal(t, ExitConfigError, res.ExitCode)
}

func TestRun_SimulatedBlueprintSucceeds(t *testing.T) {
	dir := t.TempDir()
	blueprintPath := filepath.Join(dir, "blueprint.json")
	require.NoError(t, os.WriteFile(blueprintPath, []byte(`{
		"meta": {"id": "bp1", "name": "Test", "kind": "blueprint"},
		"inputs": [],
		"producers": [{"alias": "Greeter", "producerRef": "TextProducer"}],
		"connections": []
	}`), 0o644))
	inputsPath := filepath.Join(dir, "inputs.json")
	require.NoError(t, os.WriteFile(inputsPath, []byte(`{}`), 0o644))

	res, err := Run(context.Background(), []string{
		"--workdir", dir,
		"--storage-root", "store",
		"--movie-id", "movie-1",
		"--blueprint", blueprintPath,
		"--inputs", inputsPath,
		"--mode", "simulated",
	})
	require.NoError(t, err)
	require.Equal(t, ExitSuccess, res.ExitCode)
	require.NotNil(t, res.Run)
	require.NotNil(t, res.Run.Summary)
}
