package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"weavecore/internal/orcherr"
)

// MongoManifestStore is an alternate manifest persistence backend for
// deployments that want the manifest queryable outside the filesystem
// (mirrors goa-ai's registry/store/mongo pattern). It expresses the same
// previousHash optimistic-concurrency check (§4.1) as a conditional
// replace-or-insert filtered on the prior hash.
type MongoManifestStore struct {
	Collection *mongo.Collection
	MovieID    string
}

// NewMongoManifestStore wires a manifest collection for one movie.
func NewMongoManifestStore(coll *mongo.Collection, movieID string) *MongoManifestStore {
	return &MongoManifestStore{Collection: coll, MovieID: movieID}
}

type mongoManifestDoc struct {
	MovieID  string   `bson:"movieId"`
	Manifest Manifest `bson:"manifest"`
}

// Load fetches the current manifest document for the movie.
func (m *MongoManifestStore) Load(ctx context.Context) (*Manifest, error) {
	var doc mongoManifestDoc
	err := m.Collection.FindOne(ctx, bson.M{"movieId": m.MovieID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, &orcherr.StorageError{Code: "MongoManifestLoad", Message: err.Error(), Transient: true, Cause: err}
	}
	return &doc.Manifest, nil
}

// Save performs a conditional replace keyed by (movieId, manifest.manifestHash == previousHash);
// a zero matched count means a concurrent writer won the race, surfaced as a
// storage Conflict (§4.1 optimistic concurrency).
func (m *MongoManifestStore) Save(ctx context.Context, next *Manifest, previousHash string) (string, error) {
	next.PreviousHash = previousHash
	next.ManifestHash = next.ComputeHash()

	filter := bson.M{"movieId": m.MovieID, "manifest.manifestHash": previousHash}
	update := bson.M{"$set": bson.M{"movieId": m.MovieID, "manifest": next}}

	if previousHash == "" {
		// First write for this movie: insert if absent, otherwise treat any
		// existing document as a conflict (someone else planted revision 0).
		insertOnly := bson.M{"$setOnInsert": bson.M{"manifest": next}}
		res, err := m.Collection.UpdateOne(ctx, bson.M{"movieId": m.MovieID}, insertOnly,
			mongoUpsertIfAbsent())
		if err != nil {
			return "", &orcherr.StorageError{Code: "MongoManifestSave", Message: err.Error(), Transient: true, Cause: err}
		}
		if res.MatchedCount > 0 || res.UpsertedCount == 0 {
			return "", &orcherr.StorageError{Code: "Conflict", Conflict: true, Message: "manifest already exists for movie"}
		}
		return next.ManifestHash, nil
	}

	res, err := m.Collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return "", &orcherr.StorageError{Code: "MongoManifestSave", Message: err.Error(), Transient: true, Cause: err}
	}
	if res.MatchedCount == 0 {
		return "", &orcherr.StorageError{Code: "Conflict", Conflict: true, Message: fmt.Sprintf("previousHash %q did not match", previousHash)}
	}
	return next.ManifestHash, nil
}

func mongoUpsertIfAbsent() *mongo.UpdateOptions {
	opts := mongo.UpdateOne()
	upsert := true
	opts.Upsert = &upsert
	return opts
}
