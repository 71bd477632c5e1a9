package promptoverride

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	ov, ok, err := Load(t.TempDir(), "DocProducer")
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, ov.Prompt)
}

func TestLoad_ParsesPromptAndOptionalModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DocProducer.toml"), []byte(`
prompt = "write a scene about a quiet harbor"
model = "claude-3-5-sonnet-latest"
`), 0o644))

	ov, ok, err := Load(dir, "DocProducer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "write a scene about a quiet harbor", ov.Prompt)
	require.Equal(t, "claude-3-5-sonnet-latest", ov.Model)
}

func TestLoad_EmptyPromptIsAnError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "DocProducer.toml"), []byte(`model = "x"`), 0o644))
	_, _, err := Load(dir, "DocProducer")
	require.Error(t, err)
}
