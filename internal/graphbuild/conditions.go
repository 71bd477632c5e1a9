package graphbuild

import (
	"fmt"

	"weavecore/internal/artifact"
	"weavecore/internal/blueprint"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
)

// Resolver looks up an already-materialized artifact value by canonical ID,
// used while evaluating conditions against the manifest-under-construction
// (§4.3.4, §4.4 step 1).
type Resolver func(id ids.ID) (artifact.Value, bool, error)

// EvaluateCondition evaluates the condition grammar (`when ... is <literal>`,
// `any`/`all`, `equals`/`notEmpty`/`empty`) against already-materialized
// upstream artifacts. `any`/`all` short-circuit (§4.3.4).
func EvaluateCondition(c *blueprint.Condition, resolve Resolver) (bool, error) {
	if c == nil {
		return true, nil
	}
	if !c.IsLeaf() {
		if len(c.Any) > 0 {
			for _, sub := range c.Any {
				ok, err := EvaluateCondition(&sub, resolve)
				if err != nil {
					return false, err
				}
				if ok {
					return true, nil
				}
			}
			return false, nil
		}
		for _, sub := range c.All {
			ok, err := EvaluateCondition(&sub, resolve)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	artID := ids.ID(c.ArtifactPath)
	val, ok, err := resolve(artID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, &orcherr.PlanError{Code: "UnknownConditionArtifact", Message: fmt.Sprintf("condition references unknown upstream artifact %q", c.ArtifactPath), OffendingID: c.ArtifactPath}
	}

	switch c.Op {
	case blueprint.OpEquals:
		b, err := artifactAsString(val)
		if err != nil {
			return false, err
		}
		return b == c.Literal, nil
	case blueprint.OpNotEmpty:
		return !artifact.IsEmpty(val), nil
	case blueprint.OpEmpty:
		return artifact.IsEmpty(val), nil
	default:
		return false, fmt.Errorf("graphbuild: unknown condition op %q", c.Op)
	}
}

func artifactAsString(v artifact.Value) (string, error) {
	switch v.Kind {
	case artifact.KindString:
		return v.Str, nil
	case artifact.KindJSONScalar:
		return string(v.Scalar), nil
	default:
		return "", fmt.Errorf("graphbuild: cannot compare value kind %q with equals", v.Kind)
	}
}
