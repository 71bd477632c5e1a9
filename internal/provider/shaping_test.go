package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"weavecore/internal/artifact"
	"weavecore/internal/blueprint"
	"weavecore/internal/schema"
)

func TestShapePayload_RenameAndTransform(t *testing.T) {
	inputs := map[string]artifact.Value{
		"DurationSeconds": artifact.Scalar(json.RawMessage(`8`)),
		"Prompt":          artifact.String("a quiet harbor at dawn"),
	}
	mappings := []blueprint.SDKMapping{
		{InputName: "DurationSeconds", RenameTo: "frames", Transform: "durationToFrames", TransformArg: json.RawMessage(`30`)},
	}

	payload, err := ShapePayload(inputs, mappings, nil)
	require.NoError(t, err)
	require.Equal(t, 240, payload["frames"])
	require.Equal(t, "a quiet harbor at dawn", payload["Prompt"])
}

func TestShapePayload_GatedMappingSkippedWhenUnmet(t *testing.T) {
	inputs := map[string]artifact.Value{
		"Mode":  artifact.String("fast"),
		"Voice": artifact.String("alloy"),
	}
	mappings := []blueprint.SDKMapping{
		{InputName: "Voice", RenameTo: "voice_id", Gate: &blueprint.Condition{ArtifactPath: "Mode", Op: blueprint.OpEquals, Literal: "quality"}},
	}

	payload, err := ShapePayload(inputs, mappings, nil)
	require.NoError(t, err)
	require.NotContains(t, payload, "voice_id")
	require.NotContains(t, payload, "Voice")
}

func TestShapePayload_ExpandSpreadsObjectKeys(t *testing.T) {
	inputs := map[string]artifact.Value{
		"Extra": {
			Kind: artifact.KindJSONObject,
			Object: map[string]artifact.Value{
				"seed":  artifact.Scalar(json.RawMessage(`42`)),
				"style": artifact.String("cinematic"),
			},
		},
	}
	mappings := []blueprint.SDKMapping{
		{InputName: "Extra", Expand: true},
	}

	payload, err := ShapePayload(inputs, mappings, nil)
	require.NoError(t, err)
	require.Equal(t, "cinematic", payload["style"])
	require.EqualValues(t, 42, payload["seed"])
	require.NotContains(t, payload, "Extra")
}

func TestShapePayload_FirstOfPullsHeadOfArray(t *testing.T) {
	inputs := map[string]artifact.Value{
		"Candidates": {
			Kind:  artifact.KindJSONArray,
			Array: []artifact.Value{artifact.String("first"), artifact.String("second")},
		},
	}
	mappings := []blueprint.SDKMapping{
		{InputName: "Candidates", RenameTo: "choice", Transform: "firstOf"},
	}

	payload, err := ShapePayload(inputs, mappings, nil)
	require.NoError(t, err)
	require.Equal(t, "first", payload["choice"])
}

func TestShapePayload_SnapsNumericInputToNearestEnum(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {
			"duration": {"type": "string", "enum": ["4s", "8s", "16s"]}
		}
	}`)
	compiled, err := schema.Compile(raw)
	require.NoError(t, err)

	inputs := map[string]artifact.Value{
		"DurationSeconds": artifact.Scalar(json.RawMessage(`10`)),
	}
	mappings := []blueprint.SDKMapping{
		{InputName: "DurationSeconds", RenameTo: "duration"},
	}

	payload, err := ShapePayload(inputs, mappings, compiled)
	require.NoError(t, err)
	require.Equal(t, "8s", payload["duration"])
}

func TestResolveElementAccess_OutOfRangeIsUserError(t *testing.T) {
	arr := artifact.Value{Kind: artifact.KindJSONArray, Array: []artifact.Value{artifact.String("a")}}
	_, err := ResolveElementAccess(arr, 5)
	require.Error(t, err)
}
