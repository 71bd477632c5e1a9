package simulated

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/executor"
	"weavecore/internal/ids"
	"weavecore/internal/store"
)

func TestInvoke_DeterministicAcrossCalls(t *testing.T) {
	h := New()
	imageID := ids.NewArtifact("ShotProducer", "Image")
	req := executor.ProduceRequest{
		JobID:    ids.NewProducer("ShotProducer"),
		Produces: []ids.ID{imageID},
	}

	res1, err := h.Invoke(context.Background(), req)
	require.NoError(t, err)
	res2, err := h.Invoke(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, res1.Artefacts, 1)
	require.Equal(t, store.StatusSucceeded, res1.Artefacts[0].Status)
	require.Equal(t, "image/png", res1.Artefacts[0].Blob.MimeType)
	require.Equal(t, res1.Artefacts[0].Blob.Data, res2.Artefacts[0].Blob.Data)
}

func TestInvoke_NonMediaLeafProducesJSON(t *testing.T) {
	h := New()
	scoreID := ids.NewArtifact("RankProducer", "Score")
	req := executor.ProduceRequest{
		JobID:    ids.NewProducer("RankProducer"),
		Produces: []ids.ID{scoreID},
	}

	res, err := h.Invoke(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "application/json", res.Artefacts[0].Blob.MimeType)
}
