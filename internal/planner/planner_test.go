package planner

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/blueprint"
	"weavecore/internal/graphbuild"
	"weavecore/internal/ids"
	"weavecore/internal/store"
)

func linearChainBlueprint() *blueprint.BlueprintTree {
	docSchema := json.RawMessage(`{"type":"object","properties":{"Segments":{"type":"array","items":{"type":"string"}}}}`)
	imgSchema := json.RawMessage(`{"type":"string"}`)

	return &blueprint.BlueprintTree{
		Meta: blueprint.Meta{ID: "bp1", Kind: "blueprint"},
		Producers: []blueprint.Producer{
			{Alias: "DocProducer", ProducerRef: "DocProducer", OutputSchema: docSchema},
			{Alias: "ImageProducer", ProducerRef: "ImageProducer", OutputSchema: imgSchema,
				Loops: []blueprint.LoopHint{{Over: "DocProducer.Segments", Name: "segment"}}},
		},
		Connections: []blueprint.Connection{
			{ConsumerAlias: "ImageProducer", InputName: "Prompt", SourceProducerAlias: "DocProducer", SourceOutputPath: "Segments", Loop: &blueprint.LoopHint{Name: "segment"}, HasElementIndex: false},
		},
	}
}

func TestExpandJobs_LinearChain(t *testing.T) {
	bp := linearChainBlueprint()
	g, err := graphbuild.Build(bp, map[string]map[string]int{"DocProducer": {"Segments": 3}})
	require.NoError(t, err)

	jobs, err := ExpandJobs(g, Cardinalities{"DocProducer.Segments": 3})
	require.NoError(t, err)
	require.Len(t, jobs, 4) // DocProducer + 3 ImageProducer instances

	var imageJobs int
	for _, j := range jobs {
		if j.ProducerAlias == "ImageProducer" {
			imageJobs++
			require.Len(t, j.DimensionIndex, 1)
		}
	}
	require.Equal(t, 3, imageJobs)
}

func TestPlan_ReplanAfterSuccess_IsEmpty(t *testing.T) {
	bp := linearChainBlueprint()
	g, err := graphbuild.Build(bp, map[string]map[string]int{"DocProducer": {"Segments": 3}})
	require.NoError(t, err)

	card := Cardinalities{"DocProducer.Segments": 3}
	result, err := Plan(bp, g, card, map[string]json.RawMessage{}, nil, nil, nil, Options{}, "rev-1")
	require.NoError(t, err)
	require.True(t, len(result.Plan.Layers) > 0)

	prior := &store.Manifest{Artefacts: map[ids.ID]store.ManifestArtifactEntry{}}
	for _, job := range result.AllJobs {
		for _, p := range job.Produces {
			prior.Artefacts[p] = store.ManifestArtifactEntry{InputsHash: job.InputsHash, Status: store.StatusSucceeded}
		}
	}

	result2, err := Plan(bp, g, card, map[string]json.RawMessage{}, nil, prior, nil, Options{}, "rev-2")
	require.NoError(t, err)
	require.Len(t, result2.Plan.Layers, 0)
}

func TestExpandJobs_LoopedConditionVariesPerDimensionIndex(t *testing.T) {
	bp := linearChainBlueprint()
	for i := range bp.Producers {
		if bp.Producers[i].Alias == "ImageProducer" {
			bp.Producers[i].Condition = &blueprint.Condition{
				ArtifactPath: "Artifact:DocProducer.Segments",
				Op:           blueprint.OpNotEmpty,
				Loop:         &blueprint.LoopHint{Name: "segment"},
			}
		}
	}

	g, err := graphbuild.Build(bp, map[string]map[string]int{"DocProducer": {"Segments": 3}})
	require.NoError(t, err)

	jobs, err := ExpandJobs(g, Cardinalities{"DocProducer.Segments": 3})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, j := range jobs {
		if j.ProducerAlias != "ImageProducer" {
			continue
		}
		cond := j.Context.InputConditions["_producer"]
		seen[cond.ArtifactPath] = true
	}
	require.Equal(t, map[string]bool{
		"Artifact:DocProducer.Segments[0]": true,
		"Artifact:DocProducer.Segments[1]": true,
		"Artifact:DocProducer.Segments[2]": true,
	}, seen)
}

func TestPlan_OverrideLeaf_DirtiesOnlyConsumers(t *testing.T) {
	bp := linearChainBlueprint()
	g, err := graphbuild.Build(bp, map[string]map[string]int{"DocProducer": {"Segments": 3}})
	require.NoError(t, err)

	card := Cardinalities{"DocProducer.Segments": 3}
	result, err := Plan(bp, g, card, map[string]json.RawMessage{}, nil, nil, nil, Options{}, "rev-1")
	require.NoError(t, err)

	prior := &store.Manifest{Artefacts: map[ids.ID]store.ManifestArtifactEntry{}}
	for _, job := range result.AllJobs {
		for _, p := range job.Produces {
			prior.Artefacts[p] = store.ManifestArtifactEntry{InputsHash: job.InputsHash, Status: store.StatusSucceeded}
		}
	}

	override := ids.NewArtifact("DocProducer", "Segments[1]")
	result2, err := Plan(bp, g, card, map[string]json.RawMessage{}, nil, prior, &override, Options{}, "rev-3")
	require.NoError(t, err)

	all := result2.Plan.AllJobs()
	require.Len(t, all, 1)
	require.Equal(t, "ImageProducer", all[0].ProducerAlias)
	require.Equal(t, []int{1}, all[0].DimensionIndex)
}
