package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/blueprint"
)

func TestLoad_EmptyRootYieldsUsableCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	p := blueprint.Producer{Alias: "X", ProducerRef: "Whatever"}
	require.NoError(t, c.ApplyDefaults(&p))
	require.Equal(t, "", p.Provider)
}

func TestApplyDefaults_FillsOnlyZeroValuedFields(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.yaml"), []byte(`
producerRef: ImageProducer
provider: anthropic
model: claude-3-5-sonnet-latest
outputSchema:
  type: object
  properties:
    Image: {type: string}
`), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)

	p := blueprint.Producer{Alias: "Shot1", ProducerRef: "ImageProducer", Provider: "openai"}
	require.NoError(t, c.ApplyDefaults(&p))
	require.Equal(t, "openai", p.Provider) // explicit override preserved
	require.Equal(t, "claude-3-5-sonnet-latest", p.Model)
	require.NotEmpty(t, p.OutputSchema)
}
