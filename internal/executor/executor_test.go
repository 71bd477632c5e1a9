package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/artifact"
	"weavecore/internal/blueprint"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
	"weavecore/internal/planner"
	"weavecore/internal/store"
)

// fakeStore is a minimal in-memory store.Store, grounded on the teacher's
// in-memory test doubles for its dag/executor tests: enough surface to drive
// Executor.Run without touching a filesystem.
type fakeStore struct {
	blobs          map[string][]byte
	artefactEvents []store.ArtifactEvent
	inputEvents    []store.InputEvent
	savedManifest  *store.Manifest
	savedPrevHash  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: map[string][]byte{}}
}

func (s *fakeStore) PutBlob(data []byte, mimeType string) (artifact.BlobRef, error) {
	ref := artifact.NewBlobRef(data, mimeType)
	s.blobs[ref.Hash] = data
	return ref, nil
}

func (s *fakeStore) GetBlob(ref artifact.BlobRef) ([]byte, error) {
	data, ok := s.blobs[ref.Hash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return data, nil
}

func (s *fakeStore) AppendInputEvent(e store.InputEvent) error {
	s.inputEvents = append(s.inputEvents, e)
	return nil
}

func (s *fakeStore) AppendArtefactEvent(e store.ArtifactEvent) error {
	s.artefactEvents = append(s.artefactEvents, e)
	return nil
}

func (s *fakeStore) StreamInputs() (func() (store.InputEvent, bool, error), func() error, error) {
	i := 0
	iter := func() (store.InputEvent, bool, error) {
		if i >= len(s.inputEvents) {
			return store.InputEvent{}, false, nil
		}
		e := s.inputEvents[i]
		i++
		return e, true, nil
	}
	return iter, func() error { return nil }, nil
}

func (s *fakeStore) StreamArtefacts() (func() (store.ArtifactEvent, bool, error), func() error, error) {
	i := 0
	iter := func() (store.ArtifactEvent, bool, error) {
		if i >= len(s.artefactEvents) {
			return store.ArtifactEvent{}, false, nil
		}
		e := s.artefactEvents[i]
		i++
		return e, true, nil
	}
	return iter, func() error { return nil }, nil
}

func (s *fakeStore) LoadManifest() (*store.Manifest, error) {
	return s.savedManifest, nil
}

func (s *fakeStore) SaveManifest(next *store.Manifest, previousHash string) (string, error) {
	next.PreviousHash = previousHash
	next.ManifestHash = next.ComputeHash()
	s.savedManifest = next
	s.savedPrevHash = previousHash
	return next.ManifestHash, nil
}

// echoHandler returns one succeeded artefact per requested Produces entry,
// failing the first failFirstN invocations with a retryable provider error.
type echoHandler struct {
	failFirstN int
	calls      int
}

func (h *echoHandler) WarmStart(ctx context.Context) error { return nil }

func (h *echoHandler) Invoke(ctx context.Context, req ProduceRequest) (ProduceResult, error) {
	h.calls++
	if h.calls <= h.failFirstN {
		return ProduceResult{}, &orcherr.ProviderError{Code: "RateLimited", Message: "slow down", Retryable: true, RetryAfterMs: 1}
	}
	var arts []ProducedArtifact
	for _, p := range req.Produces {
		arts = append(arts, ProducedArtifact{
			ArtefactID: p,
			Status:     store.StatusSucceeded,
			Blob:       &ProducedBlob{Data: []byte("ok:" + string(p)), MimeType: "text/plain"},
		})
	}
	return ProduceResult{Status: "succeeded", Artefacts: arts}, nil
}

func singleJobPlan(jobID, produceID ids.ID) *planner.Plan {
	job := planner.Job{
		JobID:         jobID,
		ProducerAlias: "DocProducer",
		Provider:      "simulated",
		Produces:      []ids.ID{produceID},
		Context:       planner.JobContext{InputBindings: map[string]ids.ID{}},
	}
	return &planner.Plan{Layers: []planner.Layer{{job}}, TargetRevision: "rev-1"}
}

func TestRun_SingleJob_Succeeds(t *testing.T) {
	st := newFakeStore()
	produceID := ids.NewArtifact("DocProducer", "Segments")
	plan := singleJobPlan(ids.NewProducer("DocProducer"), produceID)

	handler := &echoHandler{}
	ex := New(st, &store.Manifest{}, inputsSnapshotJSON{}, map[string]ProducerHandler{"simulated": handler}, 2, FailFast, nil)

	summary, err := ex.Run(context.Background(), plan, "rev-1")
	require.NoError(t, err)
	require.Equal(t, "succeeded", summary.Status)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, store.StatusSucceeded, ex.manifest.Artefacts[produceID].Status)
	require.NotEmpty(t, summary.ManifestHash)
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	st := newFakeStore()
	produceID := ids.NewArtifact("DocProducer", "Segments")
	plan := singleJobPlan(ids.NewProducer("DocProducer"), produceID)

	handler := &echoHandler{failFirstN: 2}
	ex := New(st, &store.Manifest{}, inputsSnapshotJSON{}, map[string]ProducerHandler{"simulated": handler}, 1, FailFast, nil)

	summary, err := ex.Run(context.Background(), plan, "rev-1")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 3, handler.calls)
}

func TestRun_ConditionUnmet_SkipsJob(t *testing.T) {
	st := newFakeStore()
	produceID := ids.NewArtifact("ImageProducer", "Out")
	job := planner.Job{
		JobID:         ids.NewProducer("ImageProducer"),
		ProducerAlias: "ImageProducer",
		Provider:      "simulated",
		Produces:      []ids.ID{produceID},
		Context: planner.JobContext{
			InputBindings: map[string]ids.ID{},
			InputConditions: map[string]blueprint.Condition{
				"_producer": {ArtifactPath: "Artifact:DocProducer.Flag", Op: blueprint.OpEquals, Literal: "yes"},
			},
		},
	}
	plan := &planner.Plan{Layers: []planner.Layer{{job}}, TargetRevision: "rev-1"}

	handler := &echoHandler{}
	ex := New(st, &store.Manifest{}, inputsSnapshotJSON{}, map[string]ProducerHandler{"simulated": handler}, 1, FailFast, nil)

	summary, err := ex.Run(context.Background(), plan, "rev-1")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Equal(t, 0, handler.calls)
	require.Equal(t, store.StatusSkipped, ex.manifest.Artefacts[produceID].Status)
}
