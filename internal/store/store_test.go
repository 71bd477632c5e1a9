package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/artifact"
	"weavecore/internal/ids"
)

func TestPutBlob_Idempotent(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "library", "movie-1")
	require.NoError(t, err)

	data := []byte(`{"hello":"world"}`)
	ref1, err := s.PutBlob(data, "application/json")
	require.NoError(t, err)
	ref2, err := s.PutBlob(data, "application/json")
	require.NoError(t, err)

	require.Equal(t, ref1, ref2)

	got, err := s.GetBlob(ref1)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestGetBlob_NotFound(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "library", "movie-1")
	require.NoError(t, err)

	_, err = s.GetBlob(artifact.BlobRef{Hash: "deadbeef", MimeType: "application/json"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveManifest_OptimisticConcurrency(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "library", "movie-1")
	require.NoError(t, err)

	m1 := &Manifest{Artefacts: map[ids.ID]ManifestArtifactEntry{}, Inputs: map[string]json.RawMessage{}}
	hash1, err := s.SaveManifest(m1, "")
	require.NoError(t, err)
	require.NotEmpty(t, hash1)

	m2 := &Manifest{Artefacts: map[ids.ID]ManifestArtifactEntry{
		ids.NewArtifact("DocProducer", "Title"): {Status: StatusSucceeded, Revision: "r1"},
	}, Inputs: map[string]json.RawMessage{}}

	// Wrong previousHash must be refused.
	_, err = s.SaveManifest(m2, "stale-hash")
	require.Error(t, err)

	hash2, err := s.SaveManifest(m2, hash1)
	require.NoError(t, err)
	require.NotEqual(t, hash1, hash2)

	loaded, err := s.LoadManifest()
	require.NoError(t, err)
	require.Equal(t, hash2, loaded.ManifestHash)
	require.Len(t, loaded.Artefacts, 1)
}

func TestAppendAndStreamArtefactEvents_OrderedOldestFirst(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "library", "movie-1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendArtefactEvent(ArtifactEvent{
			ArtefactID: ids.NewArtifact("DocProducer", "Title"),
			Status:     StatusSucceeded,
			CreatedAt:  "2026-01-0" + string(rune('1'+i)) + "T00:00:00Z",
		}))
	}

	iter, closeFn, err := s.StreamArtefacts()
	require.NoError(t, err)
	defer closeFn()

	var seen []string
	for {
		e, ok, err := iter()
		require.NoError(t, err)
		if !ok {
			break
		}
		seen = append(seen, e.CreatedAt)
	}
	require.Len(t, seen, 3)
	require.True(t, seen[0] < seen[1] && seen[1] < seen[2])
}
