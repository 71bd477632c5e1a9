package planner

import (
	"encoding/json"
	"sort"

	"weavecore/internal/blueprint"
	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/store"
)

// Plan turns a compiled ProducerGraph plus resolved inputs and the prior
// manifest into a layered Plan and the next manifest skeleton (§4.3, §4.3.8).
// card supplies loop cardinalities the same way graphbuild.Build receives
// leaf-decomposition cardinalities — resolved by the caller from materialized
// inputs/prior artifacts, not inferred here.
func Plan(
	bp *blueprint.BlueprintTree,
	g *graphbuild.ProducerGraph,
	card Cardinalities,
	inputsSnapshot map[string]json.RawMessage,
	selections []store.ProducerSelection,
	prior *store.Manifest,
	overrideArtifact *ids.ID,
	opts Options,
	revision string,
) (*planResult, error) {
	jobs, err := ExpandJobs(g, card)
	if err != nil {
		return nil, err
	}

	selByAlias := make(map[string]store.ProducerSelection, len(selections))
	for _, s := range selections {
		selByAlias[s.Alias] = s
	}
	for i := range jobs {
		if sel, ok := selByAlias[jobs[i].ProducerAlias]; ok {
			jobs[i].Provider = sel.Provider
			jobs[i].Model = sel.Model
		}
		jobs[i].InputsHash = computeInputsHash(jobs[i])
	}

	jobGraph := BuildJobGraph(jobs)
	stringLayers, err := jobGraph.Layers()
	if err != nil {
		return nil, err
	}
	layerOf := make(map[ids.ID]int, len(jobs))
	for i := range jobs {
		l := stringLayers[string(jobs[i].JobID)]
		jobs[i].LayerIndex = l
		layerOf[jobs[i].JobID] = l
	}

	dirty := ComputeDirty(jobs, layerOf, jobGraph, prior, overrideArtifact, opts)

	byLayer := map[int][]Job{}
	maxLayer := -1
	var pending []ids.ID
	for _, job := range jobs {
		if !dirty[job.JobID] {
			continue
		}
		if opts.UpToLayer != nil && job.LayerIndex > *opts.UpToLayer {
			continue
		}
		byLayer[job.LayerIndex] = append(byLayer[job.LayerIndex], job)
		pending = append(pending, job.Produces...)
		if job.LayerIndex > maxLayer {
			maxLayer = job.LayerIndex
		}
	}

	var layers []Layer
	for l := 0; l <= maxLayer; l++ {
		jobsAtLayer := byLayer[l]
		sortJobsCanonical(jobsAtLayer)
		layers = append(layers, Layer(jobsAtLayer))
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	plan := &Plan{Layers: layers, TargetRevision: revision, PendingArtefacts: pending}
	nextManifest := BuildManifestSkeleton(prior, selections, inputsSnapshot)

	return &planResult{Plan: plan, NextManifest: nextManifest, AllJobs: jobs}, nil
}

// planResult bundles the planner's full output contract: the filtered Plan
// handed to the executor, the manifest skeleton it will atomically commit
// into, and the complete (undirtied-included) job set for diagnostics and
// for the next run's dirty-set comparison.
type planResult struct {
	Plan         *Plan
	NextManifest *store.Manifest
	AllJobs      []Job
}

// BuildManifestSkeleton seeds the next manifest from the prior one: carries
// forward every existing artefact entry (the executor overwrites only the
// ones its jobs touch), the new producer/model selections, the input
// snapshot, and the hash chain token (§4.3.8, §6.2).
func BuildManifestSkeleton(prior *store.Manifest, selections []store.ProducerSelection, inputsSnapshot map[string]json.RawMessage) *store.Manifest {
	m := &store.Manifest{
		Producers: selections,
		Inputs:    inputsSnapshot,
		Artefacts: map[ids.ID]store.ManifestArtifactEntry{},
	}
	if prior != nil {
		m.PreviousHash = prior.ManifestHash
		for k, v := range prior.Artefacts {
			m.Artefacts[k] = v
		}
	}
	return m
}
