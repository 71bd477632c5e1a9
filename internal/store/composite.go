package store

import "context"

// ManifestBackend is an alternate manifest persistence backend (e.g.
// MongoManifestStore) that a CompositeStore delegates manifest operations
// to, while blobs and event logs still go through the embedded Store.
type ManifestBackend interface {
	Load(ctx context.Context) (*Manifest, error)
	Save(ctx context.Context, next *Manifest, previousHash string) (string, error)
}

// CompositeStore pairs a base Store (blobs, event logs) with a
// ManifestBackend for deployments that want the manifest queryable outside
// the filesystem (§9's pluggable-backend design note) without reimplementing
// blob/event handling.
type CompositeStore struct {
	Store
	Manifest ManifestBackend
}

func (c *CompositeStore) LoadManifest() (*Manifest, error) {
	return c.Manifest.Load(context.Background())
}

func (c *CompositeStore) SaveManifest(next *Manifest, previousHash string) (string, error) {
	return c.Manifest.Save(context.Background(), next, previousHash)
}
