// Package ids implements the canonical identifier grammar shared by every
// component: inputs, artifacts and producers/jobs are each a kind-prefixed,
// bytewise-comparable string.
package ids

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the three canonical ID families.
type Kind string

const (
	KindInput    Kind = "Input"
	KindArtifact Kind = "Artifact"
	KindProducer Kind = "Producer"
)

// ID is a canonicalized, kind-prefixed identifier.
//
// Canonical form:
//
//	Input:<path>
//	Artifact:<Producer>.<OutputPath>
//	Producer:<Alias>[i0][i1]...
//
// IDs compare bytewise once canonicalized; this package never mutates an ID
// after construction.
type ID string

// Segment is one path element of an OutputPath: a field name, an ordinal
// index, or a named dimension index.
type Segment struct {
	Field string // non-empty for a field access ("", for index-only segments)
	Index int    // valid when HasIndex is true
	HasIndex bool
	DimName string // set for named-dimension indices, e.g. [dim=n]
}

func (s Segment) String() string {
	var b strings.Builder
	b.WriteString(s.Field)
	if s.HasIndex {
		if s.DimName != "" {
			fmt.Fprintf(&b, "[%s=%d]", s.DimName, s.Index)
		} else {
			fmt.Fprintf(&b, "[%d]", s.Index)
		}
	}
	return b.String()
}

// NewInput builds a canonical Input ID, e.g. NewInput("CelebrityThenImages", Segment{HasIndex:true,Index:2}).
func NewInput(path string, segs ...Segment) ID {
	return ID(KindInput.String() + ":" + joinPath(path, segs))
}

// NewArtifact builds a canonical Artifact ID from a producer alias and an
// output path, e.g. NewArtifact("DocProducer", "Segments", Segment{HasIndex:true,Index:0}, "ImagePrompts", Segment{HasIndex:true,Index:1}).
func NewArtifact(producerAlias string, pathParts ...interface{}) ID {
	var b strings.Builder
	b.WriteString(producerAlias)
	for _, p := range pathParts {
		switch v := p.(type) {
		case string:
			if v == "" {
				continue
			}
			b.WriteByte('.')
			b.WriteString(v)
		case Segment:
			b.WriteString(v.String())
		}
	}
	return ID(KindArtifact.String() + ":" + b.String())
}

// NewProducer builds a canonical Producer/job ID from an alias and a
// dimension index vector (nil or empty for a non-looped producer).
func NewProducer(alias string, dims ...int) ID {
	var b strings.Builder
	b.WriteString(alias)
	for _, d := range dims {
		fmt.Fprintf(&b, "[%d]", d)
	}
	return ID(KindProducer.String() + ":" + b.String())
}

func joinPath(path string, segs []Segment) string {
	var b strings.Builder
	b.WriteString(path)
	for _, s := range segs {
		b.WriteString(s.String())
	}
	return b.String()
}

func (k Kind) String() string { return string(k) }

// Kind returns the ID's kind prefix, or "" if the ID is malformed.
func (id ID) Kind() Kind {
	i := strings.IndexByte(string(id), ':')
	if i < 0 {
		return ""
	}
	return Kind(id[:i])
}

// Body returns everything after the kind prefix and its colon.
func (id ID) Body() string {
	i := strings.IndexByte(string(id), ':')
	if i < 0 {
		return string(id)
	}
	return string(id[i+1:])
}

// Valid reports whether the ID has a recognized kind and non-empty body.
func (id ID) Valid() bool {
	switch id.Kind() {
	case KindInput, KindArtifact, KindProducer:
		return id.Body() != ""
	default:
		return false
	}
}

// ProducerAlias returns the bare producer alias for an Artifact or Producer ID
// (the portion before the first '.' or '[').
func (id ID) ProducerAlias() string {
	body := id.Body()
	if id.Kind() == KindArtifact {
		if i := strings.IndexByte(body, '.'); i >= 0 {
			body = body[:i]
		}
	}
	if i := strings.IndexByte(body, '['); i >= 0 {
		body = body[:i]
	}
	return body
}

// DimensionVector parses the trailing [i0][i1]... suffix of a Producer ID.
func (id ID) DimensionVector() ([]int, error) {
	body := string(id.Body())
	i := strings.IndexByte(body, '[')
	if i < 0 {
		return nil, nil
	}
	rest := body[i:]
	var dims []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return nil, fmt.Errorf("ids: malformed dimension vector in %q", id)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, fmt.Errorf("ids: unterminated index in %q", id)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return nil, fmt.Errorf("ids: non-numeric index in %q: %w", id, err)
		}
		dims = append(dims, n)
		rest = rest[end+1:]
	}
	return dims, nil
}

// Index returns the array element access `id[k]`, used for element-wise
// bindings over Input and Artifact IDs.
func Index(id ID, k int) ID {
	return ID(fmt.Sprintf("%s[%d]", id, k))
}

// Less provides the canonical bytewise ordering used throughout planning and
// layering for deterministic tie-breaking.
func Less(a, b ID) bool { return a < b }
