// Package executor implements the Executor (§4.4): layer-by-layer execution
// of a Plan under bounded concurrency, with cancellation and retry/backoff,
// producing ArtefactEvents and an updated Manifest. Grounded on the
// teacher's internal/dag/executor.go RunParallel (depth-staged dispatch,
// worker pool, single mutex guarding shared state), generalized from a flat
// task-depth schedule to the planner's explicit Plan.Layers barrier
// structure and from process exit codes to ProducerHandler outcomes.
package executor

import (
	"context"
	"encoding/json"

	"weavecore/internal/artifact"
	"weavecore/internal/ids"
	"weavecore/internal/planner"
	"weavecore/internal/store"
)

// FailureMode controls whether a layer's failures halt subsequent layers
// (§9 Configuration, §4.4 scheduling model).
type FailureMode string

const (
	FailFast   FailureMode = "fail-fast"
	BestEffort FailureMode = "best-effort"
)

// ProduceRequest is the ProducerHandler's input contract (§6.4).
type ProduceRequest struct {
	JobID      ids.ID              `json:"jobId"`
	Provider   string              `json:"provider"`
	Model      string              `json:"model"`
	Revision   string              `json:"revision"`
	LayerIndex int                 `json:"layerIndex"`
	Attempt    int                 `json:"attempt"`
	Inputs     []ids.ID            `json:"inputs"`
	Produces   []ids.ID            `json:"produces"`
	Context    planner.JobContext  `json:"context"`

	// ResolvedInputs carries the already-materialized value per input name,
	// keyed the same way as Context.InputBindings/FanIn (§4.4 step 3).
	ResolvedInputs map[string]artifact.Value `json:"-"`
}

// ProducedBlob is the raw bytes a handler returns for one succeeded
// artefact, persisted via putBlob by the executor (§4.4 step 5).
type ProducedBlob struct {
	Data     []byte
	MimeType string
}

// ProducedArtifact is one entry of a ProduceResult (§6.4).
type ProducedArtifact struct {
	ArtefactID  ids.ID
	Status      store.ArtifactStatus
	Blob        *ProducedBlob
	Diagnostics string
}

// ProduceResult is the ProducerHandler's output contract (§6.4).
type ProduceResult struct {
	Status      string
	Artefacts   []ProducedArtifact
	Diagnostics string
}

// ProducerHandler is the uniform boundary between the executor and a model
// provider (§4.5, §6.4): warmStart validates credentials idempotently;
// Invoke may block on remote I/O.
type ProducerHandler interface {
	WarmStart(ctx context.Context) error
	Invoke(ctx context.Context, req ProduceRequest) (ProduceResult, error)
}

// JobOutcome records one job's terminal status for the BuildSummary.
type JobOutcome struct {
	JobID    ids.ID                `json:"jobId"`
	Status   store.ArtifactStatus  `json:"status"`
	Reason   string                `json:"reason,omitempty"`
	Attempts int                   `json:"attempts"`
}

// BuildSummary is the Executor's terminal output contract (§4.4 Termination).
type BuildSummary struct {
	Status       string        `json:"status"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Jobs         []JobOutcome  `json:"jobs"`
	ManifestHash string        `json:"manifestHash"`
}

// inputsSnapshotJSON is the resolved-at-plan-time blueprint input values, by
// declared input name, used to answer Input:<path>[k] bindings that never
// round-trip through the artifact store (§3 EventLog, InputEvents).
type inputsSnapshotJSON = map[string]json.RawMessage
