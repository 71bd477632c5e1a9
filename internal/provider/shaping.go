// Package provider implements the Provider Interface (§4.5): the uniform
// ProducerHandler boundary the executor calls, a reusable payload-shaping
// helper, and schema-driven input validation shared by every concrete
// handler. Grounded on the teacher's internal/core domain-model packages for
// doc density and error style, and on the pack's goa-ai model/anthropic and
// model/openai adapters for how a shaped request maps onto a provider SDK.
package provider

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"weavecore/internal/artifact"
	"weavecore/internal/blueprint"
	"weavecore/internal/orcherr"
	"weavecore/internal/schema"
)

// ShapePayload turns resolved job inputs into a provider-facing JSON object
// per (resolvedInputs, sdkMapping, inputSchema) (§4.5). Inputs not named by
// any mapping pass through under their own name, JSON-encoded by Value kind.
// A mapped field whose transform yields a number is snapped to the nearest
// value in the input schema's declared enum for that field, when one exists
// (§4.5, §8 scenario 6: 10 -> "8s"). A schema-required field absent from
// resolvedInputs is filled from the schema's declared default when present,
// otherwise reported as a UserInputError.
func ShapePayload(resolvedInputs map[string]artifact.Value, mappings []blueprint.SDKMapping, inputSchema *schema.Compiled) (map[string]interface{}, error) {
	payload := make(map[string]interface{})
	mapped := make(map[string]bool, len(mappings))

	for _, m := range mappings {
		mapped[m.InputName] = true
		ok, err := gateSatisfied(m.Gate, resolvedInputs)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		val, present := resolvedInputs[m.InputName]
		if !present {
			continue
		}

		shaped, err := applyTransform(m, val, resolvedInputs)
		if err != nil {
			return nil, err
		}

		field := m.InputName
		if m.RenameTo != "" {
			field = m.RenameTo
		}

		if inputSchema != nil {
			if n, ok := numericOf(shaped); ok {
				if snapped, err := inputSchema.NearestEnum(field, n); err == nil {
					shaped = snapped
				}
			}
		}

		if m.Expand {
			obj, ok := shaped.(map[string]interface{})
			if !ok {
				return nil, &orcherr.UserInputError{Code: "ExpandNonObject", Message: fmt.Sprintf("mapping for %q declares expand but resolved to a non-object value", m.InputName)}
			}
			for k, v := range obj {
				payload[k] = v
			}
			continue
		}
		payload[field] = shaped
	}

	for name, val := range resolvedInputs {
		if mapped[name] {
			continue
		}
		payload[name] = valueToJSON(val)
	}

	if inputSchema != nil {
		if err := fillSchemaDefaults(payload, inputSchema); err != nil {
			return nil, err
		}
	}

	return payload, nil
}

// gateSatisfied evaluates an SDKMapping's Gate against already-resolved
// inputs (not upstream artifacts, since payload shaping runs after input
// resolution but before any artifact exists for this job).
func gateSatisfied(gate *blueprint.Condition, resolvedInputs map[string]artifact.Value) (bool, error) {
	if gate == nil {
		return true, nil
	}
	if !gate.IsLeaf() {
		if len(gate.Any) > 0 {
			for _, sub := range gate.Any {
				ok, err := gateSatisfied(&sub, resolvedInputs)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		for _, sub := range gate.All {
			ok, err := gateSatisfied(&sub, resolvedInputs)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	val, ok := resolvedInputs[gate.ArtifactPath]
	if !ok {
		return false, nil
	}
	switch gate.Op {
	case blueprint.OpEquals:
		s, err := stringOf(val)
		if err != nil {
			return false, err
		}
		return s == gate.Literal, nil
	case blueprint.OpNotEmpty:
		return !artifact.IsEmpty(val), nil
	case blueprint.OpEmpty:
		return artifact.IsEmpty(val), nil
	default:
		return false, fmt.Errorf("provider: unknown gate op %q", gate.Op)
	}
}

// applyTransform runs one of the fixed value transforms named by the
// mapping, or passes the value through unshaped when Transform is empty.
func applyTransform(m blueprint.SDKMapping, val artifact.Value, all map[string]artifact.Value) (interface{}, error) {
	switch m.Transform {
	case "":
		if len(m.Combine) > 0 {
			return combineValues(m, val, all)
		}
		return valueToJSON(val), nil
	case "intToString":
		n, err := intOf(val)
		if err != nil {
			return nil, err
		}
		return strconv.Itoa(n), nil
	case "intToSecondsString":
		n, err := intOf(val)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%ds", n), nil
	case "durationToFrames":
		seconds, err := floatOf(val)
		if err != nil {
			return nil, err
		}
		var fps float64 = 24
		if len(m.TransformArg) > 0 {
			if err := json.Unmarshal(m.TransformArg, &fps); err != nil {
				return nil, fmt.Errorf("provider: durationToFrames transformArg: %w", err)
			}
		}
		return int(seconds * fps), nil
	case "invert":
		b, err := artifact.AsBool(val)
		if err != nil {
			return nil, err
		}
		return !b, nil
	case "firstOf":
		if val.Kind != artifact.KindJSONArray || len(val.Array) == 0 {
			return nil, &orcherr.UserInputError{Code: "FirstOfEmpty", Message: fmt.Sprintf("mapping for %q applies firstOf to an empty or non-array value", m.InputName)}
		}
		return valueToJSON(val.Array[0]), nil
	default:
		return nil, fmt.Errorf("provider: unknown transform %q", m.Transform)
	}
}

// combineValues builds a composite payload value from this mapping's input
// plus its declared Combine siblings, keyed by input name (§4.5 `combine`).
func combineValues(m blueprint.SDKMapping, val artifact.Value, all map[string]artifact.Value) (interface{}, error) {
	combined := map[string]interface{}{m.InputName: valueToJSON(val)}
	for _, name := range m.Combine {
		if v, ok := all[name]; ok {
			combined[name] = valueToJSON(v)
		}
	}
	return combined, nil
}

// numericOf reports whether a shaped payload value is a number, for the
// enum-snapping check — shaped can be any of ShapePayload's JSON-ish output
// types (float64, int, json.Number) depending on which transform produced it.
func numericOf(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func valueToJSON(v artifact.Value) interface{} {
	switch v.Kind {
	case artifact.KindString:
		return v.Str
	case artifact.KindBytes:
		return v.Bytes
	case artifact.KindJSONScalar:
		var out interface{}
		if err := json.Unmarshal(v.Scalar, &out); err == nil {
			return out
		}
		return string(v.Scalar)
	case artifact.KindJSONArray:
		arr := make([]interface{}, len(v.Array))
		for i, e := range v.Array {
			arr[i] = valueToJSON(e)
		}
		return arr
	case artifact.KindJSONObject:
		obj := make(map[string]interface{}, len(v.Object))
		for k, e := range v.Object {
			obj[k] = valueToJSON(e)
		}
		return obj
	default:
		return nil
	}
}

func intOf(v artifact.Value) (int, error) {
	f, err := floatOf(v)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func floatOf(v artifact.Value) (float64, error) {
	switch v.Kind {
	case artifact.KindJSONScalar:
		var f float64
		if err := json.Unmarshal(v.Scalar, &f); err != nil {
			return 0, fmt.Errorf("provider: cannot coerce %s to number: %w", v.Scalar, err)
		}
		return f, nil
	case artifact.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("provider: cannot coerce %q to number: %w", v.Str, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("provider: value kind %q is not numeric", v.Kind)
	}
}

func stringOf(v artifact.Value) (string, error) {
	switch v.Kind {
	case artifact.KindString:
		return v.Str, nil
	case artifact.KindJSONScalar:
		return string(v.Scalar), nil
	default:
		return "", fmt.Errorf("provider: value kind %q cannot compare with equals", v.Kind)
	}
}

// fillSchemaDefaults writes the declared default of any top-level schema
// property missing from payload into payload, so a defaulted field is sent
// explicitly rather than left out. It then validates payload against the
// schema; a required field still missing is reported as a UserInputError.
// Top-level property names come from EnumerateLeaves, the same walk the
// Graph Builder uses to decompose output schemas.
func fillSchemaDefaults(payload map[string]interface{}, inputSchema *schema.Compiled) error {
	leaves, err := inputSchema.EnumerateLeaves(nil)
	if err != nil {
		return fmt.Errorf("provider: enumerating input schema fields: %w", err)
	}
	for _, leaf := range leaves {
		name := topLevelField(leaf.Path)
		if name == "" {
			continue
		}
		if _, present := payload[name]; present {
			continue
		}
		if def, ok := inputSchema.Default(name); ok {
			var v interface{}
			if err := json.Unmarshal(def, &v); err == nil {
				payload[name] = v
			}
		}
	}
	if err := inputSchema.Validate(payload); err != nil {
		return &orcherr.UserInputError{Code: "MissingRequiredInput", Message: err.Error(), Cause: err}
	}
	return nil
}

// topLevelField returns the first path segment of a dotted/indexed leaf
// path, e.g. "Segments[0].Text" -> "Segments".
func topLevelField(path string) string {
	if path == "" {
		return ""
	}
	if i := strings.IndexAny(path, ".["); i >= 0 {
		return path[:i]
	}
	return path
}

// ResolveElementAccess descends an indexed canonical ID suffix ("Foo[2]")
// against an already-resolved array value, per §4.5's indexed-ID rule.
// Out-of-bounds is a user error, not a plan error, since it is only
// detectable once the array's length is known at resolution time.
func ResolveElementAccess(v artifact.Value, k int) (artifact.Value, error) {
	if v.Kind != artifact.KindJSONArray {
		return artifact.Value{}, &orcherr.UserInputError{Code: "NotAnArray", Message: fmt.Sprintf("cannot index non-array value at [%d]", k)}
	}
	if k < 0 || k >= len(v.Array) {
		return artifact.Value{}, &orcherr.UserInputError{Code: "IndexOutOfRange", Message: fmt.Sprintf("index [%d] out of range for array of length %d", k, len(v.Array))}
	}
	return v.Array[k], nil
}
