package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoIDField  = "_id"
	mongoPosField = "_pos"
)

// MongoBackend maps each collection onto a MongoDB collection of the same
// name. The record id is used as _id and _pos keeps the stored order.
type MongoBackend struct {
	db *mongo.Database
}

func NewMongoBackend(db *mongo.Database) (*MongoBackend, error) {
	if db == nil {
		return nil, fmt.Errorf("mongo database is required")
	}
	return &MongoBackend{db: db}, nil
}

func (b *MongoBackend) Load(ctx context.Context, collection string) ([]Document, error) {
	if err := validateCollectionName(collection); err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: mongoPosField, Value: 1}})
	cur, err := b.db.Collection(collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find %s: %v", ErrIO, collection, err)
	}
	defer cur.Close(ctx)

	out := make([]Document, 0)
	for cur.Next(ctx) {
		doc, err := documentFromBSON(cur.Current)
		if err != nil {
			return nil, fmt.Errorf("%w: decode %s: %v", ErrIO, collection, err)
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s: %v", ErrIO, collection, err)
	}
	return out, nil
}

// Save upserts every document by _id and only then removes the ones that
// are no longer present, so a failed write leaves the previous contents in
// place.
func (b *MongoBackend) Save(ctx context.Context, collection string, docs []Document) error {
	if err := validateCollectionName(collection); err != nil {
		return err
	}
	ids := make([]string, 0, len(docs))
	models := make([]mongo.WriteModel, 0, len(docs))
	for i, doc := range docs {
		d, err := documentToBSON(doc, i)
		if err != nil {
			return fmt.Errorf("%w: encode %s/%s: %v", ErrIO, collection, doc.ID(), err)
		}
		ids = append(ids, doc.ID())
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: mongoIDField, Value: doc.ID()}}).
			SetReplacement(d).
			SetUpsert(true))
	}

	coll := b.db.Collection(collection)
	if len(models) > 0 {
		if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true)); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", ErrIO, collection, err)
		}
	}
	stale := bson.D{{Key: mongoIDField, Value: bson.D{{Key: "$nin", Value: ids}}}}
	if _, err := coll.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("%w: prune %s: %v", ErrIO, collection, err)
	}
	return nil
}

func (b *MongoBackend) Ping(ctx context.Context) error {
	if err := b.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: ping mongo: %v", ErrIO, err)
	}
	return nil
}

func documentToBSON(doc Document, pos int) (bson.D, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var body bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &body); err != nil {
		return nil, err
	}
	out := make(bson.D, 0, len(body)+2)
	out = append(out, bson.E{Key: mongoIDField, Value: doc.ID()}, bson.E{Key: mongoPosField, Value: pos})
	for _, e := range body {
		if e.Key == mongoIDField || e.Key == mongoPosField {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func documentFromBSON(raw bson.Raw) (Document, error) {
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(ext, &doc); err != nil {
		return nil, err
	}
	delete(doc, mongoIDField)
	delete(doc, mongoPosField)
	return doc, nil
}
