package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"weavecore/internal/artifact"
)

func ttlDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// RedisBlobCache is a read-through cache in front of a Store's blob
// operations, for deployments that share one blob store across many
// orchestrator processes and want a hot-blob cache (goa-ai wires
// redis/go-redis/v9 the same way for its memory/registry features). It
// decorates rather than replaces a Store: misses fall through to Inner and
// populate the cache; PutBlob always writes through to Inner first so the
// durable store remains the source of truth.
type RedisBlobCache struct {
	Inner  Store
	Client *redis.Client
	// TTLSeconds bounds how long a hot blob stays cached; 0 means no expiry.
	TTLSeconds int
}

// NewRedisBlobCache wraps an existing Store with a Redis-backed hot cache.
func NewRedisBlobCache(inner Store, client *redis.Client, ttlSeconds int) *RedisBlobCache {
	return &RedisBlobCache{Inner: inner, Client: client, TTLSeconds: ttlSeconds}
}

func (r *RedisBlobCache) PutBlob(bytes []byte, mimeType string) (artifact.BlobRef, error) {
	ref, err := r.Inner.PutBlob(bytes, mimeType)
	if err != nil {
		return ref, err
	}
	r.cacheSet(ref, bytes)
	return ref, nil
}

func (r *RedisBlobCache) GetBlob(ref artifact.BlobRef) ([]byte, error) {
	if b, ok := r.cacheGet(ref); ok {
		return b, nil
	}
	b, err := r.Inner.GetBlob(ref)
	if err != nil {
		return nil, err
	}
	r.cacheSet(ref, b)
	return b, nil
}

func (r *RedisBlobCache) cacheKey(ref artifact.BlobRef) string {
	return fmt.Sprintf("weavecore:blob:%s", ref.Hash)
}

func (r *RedisBlobCache) cacheSet(ref artifact.BlobRef, data []byte) {
	if r.Client == nil {
		return
	}
	ctx := context.Background()
	ttl := ttlDuration(r.TTLSeconds)
	_ = r.Client.Set(ctx, r.cacheKey(ref), data, ttl).Err()
}

func (r *RedisBlobCache) cacheGet(ref artifact.BlobRef) ([]byte, bool) {
	if r.Client == nil {
		return nil, false
	}
	ctx := context.Background()
	b, err := r.Client.Get(ctx, r.cacheKey(ref)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *RedisBlobCache) AppendInputEvent(e InputEvent) error    { return r.Inner.AppendInputEvent(e) }
func (r *RedisBlobCache) AppendArtefactEvent(e ArtifactEvent) error {
	return r.Inner.AppendArtefactEvent(e)
}
func (r *RedisBlobCache) StreamInputs() (func() (InputEvent, bool, error), func() error, error) {
	return r.Inner.StreamInputs()
}
func (r *RedisBlobCache) StreamArtefacts() (func() (ArtifactEvent, bool, error), func() error, error) {
	return r.Inner.StreamArtefacts()
}
func (r *RedisBlobCache) LoadManifest() (*Manifest, error) { return r.Inner.LoadManifest() }
func (r *RedisBlobCache) SaveManifest(next *Manifest, previousHash string) (string, error) {
	return r.Inner.SaveManifest(next, previousHash)
}
