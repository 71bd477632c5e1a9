// Package planner implements the Planner (§4.3): turning
// (ProducerGraph, Inputs, PriorManifest, PlannerOptions) into a layered Plan.
// Grounded on the teacher's internal/dag topological/layering machinery
// (via internal/dagutil) and on the sibling incremental-planning package
// (other_examples' internal/incremental/plan.go, whose
// invalidation-then-decision shape grounds dirtyset.go), generalized from a
// single flat task DAG with a binary Execute/ReuseCache decision to a
// layered job DAG with a three-way succeeded/failed/skipped lifecycle driven
// by conditions as well as cache presence.
package planner

import (
	"encoding/json"

	"weavecore/internal/blueprint"
	"weavecore/internal/ids"
)

// FanIn records, for one consumer input bound from multiple fan-out
// producers, the inferred grouping (§4.3.5).
type FanIn struct {
	GroupBy string       `json:"groupBy"`
	OrderBy string       `json:"orderBy,omitempty"`
	Members []FanInMember `json:"members"`
}

// FanInMember is one source contributing to a fan-in input.
type FanInMember struct {
	ID    ids.ID `json:"id"`
	Group string `json:"group"`
	// Conditional is true when this member's inclusion at runtime depends
	// on an inputCondition (§4.3.5).
	Conditional bool `json:"conditional"`
}

// JobContext carries everything a job needs beyond its inputs/produces
// lists (§3 Job entity, §6.3 Job schema).
type JobContext struct {
	InputBindings   map[string]ids.ID          `json:"inputBindings"`
	InputConditions map[string]blueprint.Condition `json:"inputConditions,omitempty"`
	FanIn           map[string]FanIn            `json:"fanIn,omitempty"`
	SDKMapping      []blueprint.SDKMapping      `json:"sdkMapping,omitempty"`
	SchemaInput     json.RawMessage             `json:"schemaInput,omitempty"`
	SchemaOutput    json.RawMessage             `json:"schemaOutput,omitempty"`
	Extras          map[string]json.RawMessage  `json:"extras,omitempty"`
}

// Job is a concrete instantiation of a producer under a specific dimension
// index vector, immutable once sealed into a plan (§3 Job entity).
type Job struct {
	JobID          ids.ID   `json:"jobId"`
	ProducerAlias  string   `json:"producer"`
	DimensionIndex []int    `json:"dimensionIndex,omitempty"`
	LayerIndex     int      `json:"layerIndex"`
	Provider       string   `json:"provider,omitempty"`
	Model          string   `json:"model,omitempty"`

	Inputs   []ids.ID `json:"inputs"`
	Produces []ids.ID `json:"produces"`
	Context  JobContext `json:"context"`

	// InputsHash is the stable digest used for dirty-set comparison
	// (§4.3.7 step 1).
	InputsHash string `json:"inputsHash"`
}

// Layer is one barrier's worth of jobs (§3 Plan entity): every job's
// dependencies terminate strictly earlier.
type Layer []Job

// Plan is the planner's output contract (§4.3.8, §6.3): layers of jobs, the
// target revision, and the set of pending artefacts. The next manifest
// skeleton is not part of Plan; the planner returns it separately.
type Plan struct {
	Layers         []Layer            `json:"layers"`
	TargetRevision string             `json:"targetRevision"`
	PendingArtefacts []ids.ID         `json:"pendingArtefacts"`
}

// Options restricts or redirects planning (§4.3.7 trailing options).
type Options struct {
	// UpToLayer drops all jobs whose layer > UpToLayer, when non-nil.
	UpToLayer *int
	// ReRunFrom marks all jobs at layer >= ReRunFrom dirty regardless of hash, when non-nil.
	ReRunFrom *int
	// ArtifactID restricts the dirty set to the transitive downstream of this artifact, when non-nil.
	ArtifactID *ids.ID
}

// AllJobs flattens every layer in layer order, preserving the deterministic
// intra-layer tie-break (alias ascending, then lexicographic dimension
// vector — enforced at construction time by identity.go).
func (p *Plan) AllJobs() []Job {
	var out []Job
	for _, l := range p.Layers {
		out = append(out, l...)
	}
	return out
}
