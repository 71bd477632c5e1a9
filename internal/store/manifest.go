package store

import (
	"bytes"
	"encoding/json"
	"sort"

	"weavecore/internal/artifact"
	"weavecore/internal/hashutil"
	"weavecore/internal/ids"
)

// ArtifactStatus is the terminal status recorded for one artifact on job
// completion (§3 Artifact entity).
type ArtifactStatus string

const (
	StatusSucceeded ArtifactStatus = "succeeded"
	StatusFailed    ArtifactStatus = "failed"
	StatusSkipped   ArtifactStatus = "skipped"
)

// ArtifactEvent is one append-only record in the ArtefactEvents stream: the
// outcome of producing a single artefactId within one job completion.
type ArtifactEvent struct {
	ArtefactID ids.ID          `json:"artefactId"`
	Revision   string          `json:"revision"`
	InputsHash string          `json:"inputsHash"`
	Status     ArtifactStatus  `json:"status"`
	ProducedBy ids.ID          `json:"producedBy"`
	CreatedAt  string          `json:"createdAt"`
	Blob       *artifact.BlobRef `json:"blob,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// InputEvent is one append-only record in the InputEvents stream: a user
// input resolved at plan time, or a synthetic artifact-replacement override
// injected for surgical re-execution (§4.3.7 step 5).
type InputEvent struct {
	InputID   ids.ID `json:"inputId"`
	Value     json.RawMessage `json:"value,omitempty"`
	Blob      *artifact.BlobRef `json:"blob,omitempty"`
	Override  bool   `json:"override,omitempty"`
	CreatedAt string `json:"createdAt"`
}

// ManifestArtifactEntry is the materialized last-write-wins view of one
// artefactId's latest ArtifactEvent, as persisted in the manifest.
type ManifestArtifactEntry struct {
	Revision   string            `json:"revision"`
	InputsHash string            `json:"inputsHash"`
	Status     ArtifactStatus    `json:"status"`
	ProducedBy ids.ID            `json:"producedBy"`
	CreatedAt  string            `json:"createdAt"`
	Blob       *artifact.BlobRef `json:"blob,omitempty"`
}

// Manifest is the mapping artefactId -> latest ArtifactEvent for one movie,
// plus the input snapshot and producer/model selections used to produce it
// (§3 Manifest, §6.2).
type Manifest struct {
	ManifestHash string `json:"manifestHash"`
	PreviousHash string `json:"previousHash,omitempty"`

	Producers []ProducerSelection `json:"producers"`
	Inputs    map[string]json.RawMessage `json:"inputs"`

	Artefacts map[ids.ID]ManifestArtifactEntry `json:"artefacts"`
}

// ProducerSelection records the provider/model bound to one producer alias
// for this manifest's revision.
type ProducerSelection struct {
	Alias    string `json:"alias"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// ApplyEvent updates the manifest's materialized view with a newer
// ArtifactEvent (last-write-wins per artefactId), per §3 EventLog.
func (m *Manifest) ApplyEvent(e ArtifactEvent) {
	if m.Artefacts == nil {
		m.Artefacts = make(map[ids.ID]ManifestArtifactEntry)
	}
	m.Artefacts[e.ArtefactID] = ManifestArtifactEntry{
		Revision:   e.Revision,
		InputsHash: e.InputsHash,
		Status:     e.Status,
		ProducedBy: e.ProducedBy,
		CreatedAt:  e.CreatedAt,
		Blob:       e.Blob,
	}
}

// ComputeHash returns the manifest's monotonic content hash, chaining
// through PreviousHash so history is verifiable (§3, §4.1 invariants).
// Grounded on the teacher's length-prefixed hashing idiom
// (internal/core/hasher.go), generalized from a fixed task shape to a sorted
// artefactId -> entry map plus producer selections and input snapshot.
func (m *Manifest) ComputeHash() string {
	w := hashutil.New()
	w.WriteString(m.PreviousHash)

	sel := make([]ProducerSelection, len(m.Producers))
	copy(sel, m.Producers)
	sort.Slice(sel, func(i, j int) bool { return sel[i].Alias < sel[j].Alias })
	w.WriteCount(len(sel))
	for _, s := range sel {
		w.WriteString(s.Alias).WriteString(s.Provider).WriteString(s.Model)
	}

	inputKeys := make([]string, 0, len(m.Inputs))
	for k := range m.Inputs {
		inputKeys = append(inputKeys, k)
	}
	sort.Strings(inputKeys)
	w.WriteCount(len(inputKeys))
	for _, k := range inputKeys {
		w.WriteString(k).WriteBytes(canonicalizeJSON(m.Inputs[k]))
	}

	artIDs := make([]ids.ID, 0, len(m.Artefacts))
	for id := range m.Artefacts {
		artIDs = append(artIDs, id)
	}
	sort.Slice(artIDs, func(i, j int) bool { return artIDs[i] < artIDs[j] })
	w.WriteCount(len(artIDs))
	for _, id := range artIDs {
		entry := m.Artefacts[id]
		w.WriteString(string(id)).
			WriteString(entry.Revision).
			WriteString(entry.InputsHash).
			WriteString(string(entry.Status)).
			WriteString(string(entry.ProducedBy))
		if entry.Blob != nil {
			w.WriteString(entry.Blob.Hash)
		} else {
			w.WriteString("")
		}
	}
	return w.Hex()
}

// canonicalizeJSON re-marshals a RawMessage with sorted object keys so the
// manifest hash is independent of the original field order a caller supplied.
func canonicalizeJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	var buf bytes.Buffer
	encodeCanonical(&buf, v)
	return buf.Bytes()
}

func encodeCanonical(buf *bytes.Buffer, v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			buf.Write(kb)
			buf.WriteByte(':')
			encodeCanonical(buf, t[k])
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeCanonical(buf, e)
		}
		buf.WriteByte(']')
	default:
		b, _ := json.Marshal(t)
		buf.Write(b)
	}
}
