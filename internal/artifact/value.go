// Package artifact defines the tagged-variant artifact value representation
// and the content-addressed blob reference, grounded on the teacher's
// length-prefixed hashing idiom (internal/core/hasher.go) generalized from a
// fixed task-hash shape to an open JSON value union.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the ArtifactValue union.
type ValueKind string

const (
	KindString     ValueKind = "string"
	KindBytes      ValueKind = "bytes"
	KindJSONScalar ValueKind = "jsonScalar"
	KindJSONObject ValueKind = "jsonObject"
	KindJSONArray  ValueKind = "jsonArray"
	KindFanIn      ValueKind = "fanIn"
)

// Value is the tagged union every artifact leaf and blob takes in memory.
// Exactly one of the typed fields is populated, selected by Kind.
type Value struct {
	Kind ValueKind

	Str    string
	Bytes  []byte
	Scalar json.RawMessage
	Object map[string]Value
	Array  []Value

	// FanIn is a lazy, restartable, finite sequence of resolved values,
	// assembled by the planner's fan-in inference. It is never itself
	// persisted; it exists only transiently while an executor job resolves
	// a fan-in input.
	FanIn FanInSequence
}

// FanInSequence yields grouped fan-in members in deterministic order. Next
// returns (Value{}, false, nil) once exhausted.
type FanInSequence func() (v Value, ok bool, err error)

// Collect drains a FanInSequence into a slice; used by tests and by handlers
// that need the whole sequence materialized.
func (f FanInSequence) Collect() ([]Value, error) {
	var out []Value
	if f == nil {
		return out, nil
	}
	for {
		v, ok, err := f()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// String builds a KindString value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Raw builds a KindBytes value.
func Raw(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// Scalar builds a KindJSONScalar value from an already-encoded JSON token.
func Scalar(raw json.RawMessage) Value { return Value{Kind: KindJSONScalar, Scalar: raw} }

// BlobRef is a content-addressed reference to immutable blob bytes.
type BlobRef struct {
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// ComputeHash returns the hex SHA-256 digest of the blob bytes; the same
// digest identifies the same bytes for any two callers (the store's
// putBlob-idempotence invariant rests on this).
func ComputeHash(bytes []byte) string {
	sum := sha256.Sum256(bytes)
	return hex.EncodeToString(sum[:])
}

// NewBlobRef computes a BlobRef for the given bytes and mime type.
func NewBlobRef(bytes []byte, mimeType string) BlobRef {
	return BlobRef{Hash: ComputeHash(bytes), Size: int64(len(bytes)), MimeType: mimeType}
}

// ExtFromMime maps a mime type to a storage file extension; unknown types
// fall back to ".bin" so putBlob always has a concrete path.
func ExtFromMime(mimeType string) string {
	switch mimeType {
	case "application/json":
		return ".json"
	case "text/plain":
		return ".txt"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "video/mp4":
		return ".mp4"
	default:
		return ".bin"
	}
}

// AsBool coerces a stored value to bool for condition evaluation; it accepts
// a native JSON bool, or the strings "true"/"false" persisted via KindString
// (the planner's condition grammar documents this coercion explicitly).
func AsBool(v Value) (bool, error) {
	switch v.Kind {
	case KindString:
		switch v.Str {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return false, fmt.Errorf("artifact: cannot coerce string %q to bool", v.Str)
		}
	case KindJSONScalar:
		var b bool
		if err := json.Unmarshal(v.Scalar, &b); err != nil {
			return false, fmt.Errorf("artifact: cannot coerce scalar %s to bool: %w", v.Scalar, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("artifact: value kind %q is not bool-coercible", v.Kind)
	}
}

// IsEmpty reports whether v represents an empty value for the `empty`/
// `notEmpty` condition predicates: empty string, empty array/object, zero
// bytes, or JSON null.
func IsEmpty(v Value) bool {
	switch v.Kind {
	case KindString:
		return v.Str == ""
	case KindBytes:
		return len(v.Bytes) == 0
	case KindJSONArray:
		return len(v.Array) == 0
	case KindJSONObject:
		return len(v.Object) == 0
	case KindJSONScalar:
		return len(v.Scalar) == 0 || string(v.Scalar) == "null"
	default:
		return true
	}
}
