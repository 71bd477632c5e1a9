// Package hashutil centralizes the length-prefixed SHA-256 hashing idiom used
// throughout the orchestrator for content hashes, graph hashes, job inputs
// hashes and manifest hashes. Grounded on the teacher's
// internal/core/hasher.go and internal/dag/taskdef_hash.go, which both hash a
// fixed, ordered sequence of length-prefixed fields; this package
// generalizes that to an open Writer so every hashed shape in the codebase
// shares one implementation instead of reimplementing the length-prefix
// framing per call site.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Writer accumulates length-prefixed fields into a running SHA-256 digest.
// Every public Write* method is deterministic and order-sensitive: callers
// must write fields in a fixed, documented order (and pre-sort any
// unordered collection) for the resulting digest to be reproducible.
type Writer struct {
	h [32]byte
	started bool
	inner   interface {
		Write(p []byte) (int, error)
	}
}

// New creates a Writer.
func New() *Writer {
	return &Writer{inner: sha256.New()}
}

func (w *Writer) writeField(data []byte) {
	length := uint64(len(data))
	lengthBytes := [8]byte{
		byte(length >> 56), byte(length >> 48), byte(length >> 40), byte(length >> 32),
		byte(length >> 24), byte(length >> 16), byte(length >> 8), byte(length),
	}
	w.inner.Write(lengthBytes[:])
	w.inner.Write(data)
}

// WriteBytes writes one length-prefixed opaque field.
func (w *Writer) WriteBytes(b []byte) *Writer {
	w.writeField(b)
	return w
}

// WriteString writes one length-prefixed string field.
func (w *Writer) WriteString(s string) *Writer {
	w.writeField([]byte(s))
	return w
}

// WriteStrings writes a sorted, length-prefixed list of strings: a count
// field followed by one field per (sorted) entry. Use for sets whose
// identity must not depend on insertion order (e.g. declared inputs).
func (w *Writer) WriteStrings(ss []string) *Writer {
	sorted := make([]string, len(ss))
	copy(sorted, ss)
	sort.Strings(sorted)
	w.writeField([]byte{byte(len(sorted))})
	for _, s := range sorted {
		w.writeField([]byte(s))
	}
	return w
}

// WriteStringMap writes a map sorted by key, as alternating key/value
// length-prefixed fields preceded by a count field.
func (w *Writer) WriteStringMap(m map[string]string) *Writer {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.writeField([]byte{byte(len(keys))})
	for _, k := range keys {
		w.writeField([]byte(k))
		w.writeField([]byte(m[k]))
	}
	return w
}

// WriteCount writes a raw count field, for collections whose entries are
// written individually by the caller in an already-deterministic order
// (e.g. pre-sorted structs).
func (w *Writer) WriteCount(n int) *Writer {
	w.writeField([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	return w
}

// Sum returns the raw digest bytes computed so far.
func (w *Writer) Sum() []byte {
	return w.inner.(interface{ Sum([]byte) []byte }).Sum(nil)
}

// Hex returns the hex-encoded digest computed so far.
func (w *Writer) Hex() string {
	return hex.EncodeToString(w.Sum())
}
