// Package store implements the Artifact Store (§4.1): the single source of
// truth for content-addressed blobs, the manifest, and the two append-only
// event logs. Grounded on the teacher's internal/core/cache.go (atomic
// temp-dir-then-rename commit, writeFileAtomic helper) and
// internal/recovery/state/store.go (durable per-run directory layout),
// generalized from a single cache entry per task hash to a full movie
// directory tree (§6.1).
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"weavecore/internal/artifact"
	"weavecore/internal/ids"
	"weavecore/internal/orcherr"
)

// ErrNotFound is returned by GetBlob when the referenced blob is absent.
var ErrNotFound = fmt.Errorf("store: not found")

// Store is the Artifact Store's operation contract (§4.1).
type Store interface {
	PutBlob(bytes []byte, mimeType string) (artifact.BlobRef, error)
	GetBlob(ref artifact.BlobRef) ([]byte, error)

	AppendInputEvent(e InputEvent) error
	AppendArtefactEvent(e ArtifactEvent) error

	StreamInputs() (iter func() (InputEvent, bool, error), closeFn func() error, err error)
	StreamArtefacts() (iter func() (ArtifactEvent, bool, error), closeFn func() error, err error)

	LoadManifest() (*Manifest, error)
	SaveManifest(next *Manifest, previousHash string) (newHash string, err error)
}

// FileStore implements Store under <root>/<basePath>/<movieId>/ per §6.1.
type FileStore struct {
	movieDir string

	mu sync.Mutex // serializes manifest read-modify-write within this process
}

// NewFileStore creates (if absent) the movie's directory tree and discards
// any abandoned temp files left by a prior crash, per §4.1 failure recovery.
func NewFileStore(storageRoot, basePath, movieID string) (*FileStore, error) {
	movieDir := filepath.Join(storageRoot, basePath, movieID)
	dirs := []string{"blobs", "manifests", "manifests/history", "events", "runs", "logs", "prompts"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(movieDir, d), 0o755); err != nil {
			return nil, fmt.Errorf("store: creating %s: %w", d, err)
		}
	}
	fs := &FileStore{movieDir: movieDir}
	if err := fs.discardAbandonedTemps(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *FileStore) discardAbandonedTemps() error {
	return filepath.Walk(s.movieDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".tmp" || containsTmpMarker(info.Name()) {
			_ = os.Remove(path)
		}
		return nil
	})
}

func containsTmpMarker(name string) bool {
	for i := 0; i+4 <= len(name); i++ {
		if name[i:i+4] == ".tmp" {
			return true
		}
	}
	return false
}

// PutBlob stores bytes at blobs/<hh>/<hash>.<ext>; idempotent, per §4.1.
func (s *FileStore) PutBlob(data []byte, mimeType string) (artifact.BlobRef, error) {
	ref := artifact.NewBlobRef(data, mimeType)
	path := s.blobPath(ref)
	if _, err := os.Stat(path); err == nil {
		return ref, nil // idempotent: already stored
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return artifact.BlobRef{}, &orcherr.StorageError{Code: "BlobDirCreate", Message: err.Error(), Transient: true, Cause: err}
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return artifact.BlobRef{}, &orcherr.StorageError{Code: "BlobWrite", Message: err.Error(), Transient: true, Cause: err}
	}
	return ref, nil
}

// GetBlob reads blob bytes by reference.
func (s *FileStore) GetBlob(ref artifact.BlobRef) ([]byte, error) {
	data, err := os.ReadFile(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, &orcherr.StorageError{Code: "BlobRead", Message: err.Error(), Transient: true, Cause: err}
	}
	return data, nil
}

func (s *FileStore) blobPath(ref artifact.BlobRef) string {
	hh := ref.Hash
	if len(hh) >= 2 {
		hh = ref.Hash[:2]
	}
	return filepath.Join(s.movieDir, "blobs", hh, ref.Hash+artifact.ExtFromMime(ref.MimeType))
}

// AppendInputEvent appends one record to events/inputs.jsonl.
func (s *FileStore) AppendInputEvent(e InputEvent) error {
	if e.CreatedAt == "" {
		return fmt.Errorf("store: InputEvent.CreatedAt is required (caller must stamp time)")
	}
	return appendJSONLRecord(filepath.Join(s.movieDir, "events", "inputs.jsonl"), e)
}

// AppendArtefactEvent appends one record to events/artefacts.jsonl.
func (s *FileStore) AppendArtefactEvent(e ArtifactEvent) error {
	if e.CreatedAt == "" {
		return fmt.Errorf("store: ArtifactEvent.CreatedAt is required (caller must stamp time)")
	}
	return appendJSONLRecord(filepath.Join(s.movieDir, "events", "artefacts.jsonl"), e)
}

// appendJSONLRecord appends one JSON record terminated by a newline. A
// single os.OpenFile in append mode plus a whole-record Write relies on the
// filesystem's guarantee that a write smaller than PIPE_BUF-equivalent
// block size lands atomically at EOF, matching §4.1's "small enough to rely
// on the filesystem's single-write atomicity" note.
func appendJSONLRecord(path string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	b = append(b, '\n')

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &orcherr.StorageError{Code: "EventLogOpen", Message: err.Error(), Transient: true, Cause: err}
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return &orcherr.StorageError{Code: "EventLogWrite", Message: err.Error(), Transient: true, Cause: err}
	}
	return f.Sync()
}

// StreamInputs iterates events/inputs.jsonl oldest first.
func (s *FileStore) StreamInputs() (func() (InputEvent, bool, error), func() error, error) {
	f, scanner, err := openJSONLScanner(filepath.Join(s.movieDir, "events", "inputs.jsonl"))
	if err != nil {
		return nil, nil, err
	}
	iter := func() (InputEvent, bool, error) {
		if !scanner.Scan() {
			return InputEvent{}, false, scanner.Err()
		}
		var e InputEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return InputEvent{}, false, fmt.Errorf("store: parsing input event: %w", err)
		}
		return e, true, nil
	}
	return iter, f.Close, nil
}

// StreamArtefacts iterates events/artefacts.jsonl oldest first.
func (s *FileStore) StreamArtefacts() (func() (ArtifactEvent, bool, error), func() error, error) {
	f, scanner, err := openJSONLScanner(filepath.Join(s.movieDir, "events", "artefacts.jsonl"))
	if err != nil {
		return nil, nil, err
	}
	iter := func() (ArtifactEvent, bool, error) {
		if !scanner.Scan() {
			return ArtifactEvent{}, false, scanner.Err()
		}
		var e ArtifactEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return ArtifactEvent{}, false, fmt.Errorf("store: parsing artefact event: %w", err)
		}
		return e, true, nil
	}
	return iter, f.Close, nil
}

func openJSONLScanner(path string) (*os.File, *bufio.Scanner, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			f, err = os.Create(path)
			if err != nil {
				return nil, nil, &orcherr.StorageError{Code: "EventLogCreate", Message: err.Error(), Cause: err}
			}
		} else {
			return nil, nil, &orcherr.StorageError{Code: "EventLogOpen", Message: err.Error(), Cause: err}
		}
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return f, sc, nil
}

// LoadManifest reads manifests/current.json, returning an empty manifest
// (ManifestHash == "") if none has been persisted yet.
func (s *FileStore) LoadManifest() (*Manifest, error) {
	path := filepath.Join(s.movieDir, "manifests", "current.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Artefacts: map[ids.ID]ManifestArtifactEntry{}, Inputs: map[string]json.RawMessage{}}, nil
		}
		return nil, &orcherr.StorageError{Code: "ManifestRead", Message: err.Error(), Transient: true, Cause: err}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &orcherr.StorageError{Code: "ManifestParse", Message: err.Error(), Cause: err}
	}
	return &m, nil
}

// SaveManifest writes manifests/current.json, refusing if previousHash
// doesn't match the currently-persisted manifest (optimistic concurrency,
// §4.1). The outgoing manifest's previous copy is preserved under
// manifests/history/<n>.json before being overwritten.
func (s *FileStore) SaveManifest(next *Manifest, previousHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.LoadManifest()
	if err != nil {
		return "", err
	}
	if current.ManifestHash != previousHash {
		return "", &orcherr.StorageError{
			Code: "Conflict", Conflict: true,
			Message: fmt.Sprintf("manifest previousHash mismatch: have %q, want %q", current.ManifestHash, previousHash),
		}
	}

	next.PreviousHash = previousHash
	next.ManifestHash = next.ComputeHash()

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return "", fmt.Errorf("store: marshal manifest: %w", err)
	}

	manifestsDir := filepath.Join(s.movieDir, "manifests")
	path := filepath.Join(manifestsDir, "current.json")

	if current.ManifestHash != "" {
		histPath := filepath.Join(manifestsDir, "history", historyName(current))
		if err := writeFileAtomic(histPath, mustMarshal(current), 0o644); err != nil {
			return "", &orcherr.StorageError{Code: "ManifestHistoryWrite", Message: err.Error(), Transient: true, Cause: err}
		}
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return "", &orcherr.StorageError{Code: "ManifestWrite", Message: err.Error(), Transient: true, Cause: err}
	}
	return next.ManifestHash, nil
}

func historyName(m *Manifest) string {
	return fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), m.ManifestHash)
}

func mustMarshal(v interface{}) []byte {
	b, _ := json.MarshalIndent(v, "", "  ")
	return b
}

// writeFileAtomic writes data into a sibling temp file then renames it into
// place, matching the teacher's internal/core/cache.go writeFileAtomic.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync()
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

