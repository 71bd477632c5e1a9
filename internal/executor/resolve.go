package executor

import (
	"context"
	"encoding/json"
	"strings"

	"weavecore/internal/artifact"
	"weavecore/internal/ids"
	"weavecore/internal/planner"
	"weavecore/internal/provider"
	"weavecore/internal/store"
)

// resolveValue materializes the value behind a canonical ID against the
// manifest-under-construction (for Artifact IDs) or the sealed input
// snapshot (for Input IDs) (§4.4 step 2, §4.3.4 condition evaluation).
// ok is false when the ID names an artifact that was never produced (e.g. a
// skipped upstream job) — callers treat that as "not yet available" rather
// than an error.
func (e *Executor) resolveValue(ctx context.Context, id ids.ID) (artifact.Value, bool, error) {
	switch id.Kind() {
	case ids.KindInput:
		return e.resolveInputValue(id)
	case ids.KindArtifact:
		return e.resolveArtifactValue(id)
	default:
		return artifact.Value{}, false, nil
	}
}

func (e *Executor) resolveInputValue(id ids.ID) (artifact.Value, bool, error) {
	name := id.ProducerAlias()
	raw, ok := e.inputsSnapshot[name]
	if !ok {
		return artifact.Value{}, false, nil
	}
	val := decodeJSONValue(raw)
	dims, err := id.DimensionVector()
	if err != nil {
		return artifact.Value{}, false, err
	}
	if len(dims) == 0 {
		return val, true, nil
	}
	for _, k := range dims {
		next, err := provider.ResolveElementAccess(val, k)
		if err != nil {
			return artifact.Value{}, false, err
		}
		val = next
	}
	return val, true, nil
}

func (e *Executor) resolveArtifactValue(id ids.ID) (artifact.Value, bool, error) {
	e.mu.Lock()
	entry, ok := e.manifest.Artefacts[id]
	e.mu.Unlock()
	if !ok || entry.Status != store.StatusSucceeded || entry.Blob == nil {
		return artifact.Value{}, false, nil
	}
	data, err := e.Store.GetBlob(*entry.Blob)
	if err != nil {
		return artifact.Value{}, false, err
	}
	return decodeBlob(data, entry.Blob.MimeType), true, nil
}

func decodeBlob(data []byte, mimeType string) artifact.Value {
	switch {
	case mimeType == "application/json":
		return decodeJSONValue(data)
	case strings.HasPrefix(mimeType, "text/"):
		return artifact.String(string(data))
	default:
		return artifact.Raw(data)
	}
}

// decodeJSONValue decodes a raw JSON document into the tagged Value union,
// handling the shapes condition and payload-shaping logic actually inspect:
// arrays (for element access), plain scalars, and opaque objects left as a
// scalar token (deep object decomposition is unnecessary — producers address
// nested structure by leaf artefactId, never by walking a resolved object).
func decodeJSONValue(raw json.RawMessage) artifact.Value {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		vals := make([]artifact.Value, len(arr))
		for i, e := range arr {
			vals[i] = decodeJSONValue(e)
		}
		return artifact.Value{Kind: artifact.KindJSONArray, Array: vals}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return artifact.String(s)
	}
	return artifact.Scalar(raw)
}

// buildFanInSequence lazily resolves a fan-in input's members in their
// already-group-sorted order, silently skipping members whose source was
// never produced (a conditional source that was itself skipped) (§4.3.5,
// §9 "lazy FanInSequence" design note).
func (e *Executor) buildFanInSequence(ctx context.Context, members []planner.FanInMember) artifact.FanInSequence {
	idx := 0
	return func() (artifact.Value, bool, error) {
		for idx < len(members) {
			m := members[idx]
			idx++
			v, ok, err := e.resolveValue(ctx, m.ID)
			if err != nil {
				return artifact.Value{}, false, err
			}
			if !ok {
				continue
			}
			return v, true, nil
		}
		return artifact.Value{}, false, nil
	}
}
