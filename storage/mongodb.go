package storage

import (
	"context"
	"errors"
	"fmt"

	"docstore/core"
	"docstore/metrics"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Index error codes MongoDB reports when an equivalent index already
// exists. The bootstrapper treats these as success.
const (
	mongoIndexOptionsConflict  = 85
	mongoIndexKeySpecsConflict = 86
)

// MongoAdapter is the primary cloud backend. Documents are keyed by the
// application-level id field, not the driver's _id; a unique index on id
// is ensured per collection by the bootstrapper.
type MongoAdapter struct {
	uri         string
	database    string
	maxPoolSize uint64
	logger      *zap.SugaredLogger
	ids         *IDRegistry

	client *mongo.Client
	db     *mongo.Database
}

// NewMongoAdapter creates an adapter for the given connection URI and
// database. No connection is made until Connect.
func NewMongoAdapter(uri, database string, maxPoolSize uint64, ids *IDRegistry, logger *zap.SugaredLogger) *MongoAdapter {
	return &MongoAdapter{
		uri:         uri,
		database:    database,
		maxPoolSize: maxPoolSize,
		logger:      logger,
		ids:         ids,
	}
}

func (a *MongoAdapter) Name() core.Backend { return core.BackendPrimary }

// Connect dials MongoDB and verifies the connection with a ping. The
// driver honours ctx, so the timeout guard can abort the attempt natively.
func (a *MongoAdapter) Connect(ctx context.Context) error {
	clientOptions := options.Client().ApplyURI(a.uri).SetMaxPoolSize(a.maxPoolSize)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return &ConnectionError{Backend: core.BackendPrimary, Err: fmt.Errorf("failed to connect to MongoDB: %w", err)}
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return &ConnectionError{Backend: core.BackendPrimary, Err: fmt.Errorf("failed to ping MongoDB: %w", err)}
	}

	a.client = client
	a.db = client.Database(a.database)
	a.logger.Infow("Connected to MongoDB successfully", "database", a.database)
	return nil
}

func (a *MongoAdapter) Close(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	return a.client.Disconnect(ctx)
}

func (a *MongoAdapter) HealthCheck(ctx context.Context) error {
	if a.client == nil {
		return &ConnectionError{Backend: core.BackendPrimary, Err: errors.New("not connected")}
	}
	if err := a.client.Ping(ctx, nil); err != nil {
		return &ConnectionError{Backend: core.BackendPrimary, Err: err}
	}
	return nil
}

func (a *MongoAdapter) ReadAll(ctx context.Context, collection string) ([]core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "readAll").Inc()

	cursor, err := a.db.Collection(collection).Find(ctx, bson.M{})
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "readAll").Inc()
		return nil, fmt.Errorf("failed to find documents in %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]core.Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		docs = append(docs, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return docs, nil
}

// FindOne translates the predicate into a native filter; equality
// conjunctions map onto bson.M directly, so no in-memory fallback is
// needed here.
func (a *MongoAdapter) FindOne(ctx context.Context, collection string, predicate core.Predicate) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "findOne").Inc()

	var raw bson.M
	err := a.db.Collection(collection).FindOne(ctx, predicateFilter(predicate)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "findOne").Inc()
		return nil, fmt.Errorf("failed to find document in %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

func (a *MongoAdapter) InsertOne(ctx context.Context, collection string, doc core.Document) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "insertOne").Inc()

	stored := doc.Clone()
	if stored == nil {
		stored = core.Document{}
	}
	if _, err := assignID(a.ids, collection, stored); err != nil {
		return nil, err
	}

	if _, err := a.db.Collection(collection).InsertOne(ctx, bson.M(stored)); err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "insertOne").Inc()
		return nil, fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return stored, nil
}

func (a *MongoAdapter) UpdateOne(ctx context.Context, collection, id string, patch core.Document) (core.Document, error) {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "updateOne").Inc()

	set := bson.M{}
	for k, v := range patch {
		if k == core.IDField {
			continue
		}
		set[k] = v
	}
	if len(set) == 0 {
		// Nothing to merge; still verify existence.
		return a.FindOne(ctx, collection, core.Predicate{core.IDField: id})
	}

	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)
	var raw bson.M
	err := a.db.Collection(collection).
		FindOneAndUpdate(ctx, bson.M{core.IDField: id}, bson.M{"$set": set}, opts).
		Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "updateOne").Inc()
		return nil, fmt.Errorf("failed to update document %s in %s: %w", id, collection, err)
	}
	return fromBSON(raw), nil
}

func (a *MongoAdapter) DeleteOne(ctx context.Context, collection, id string) (bool, error) {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "deleteOne").Inc()

	result, err := a.db.Collection(collection).DeleteOne(ctx, bson.M{core.IDField: id})
	if err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "deleteOne").Inc()
		return false, fmt.Errorf("failed to delete document %s from %s: %w", id, collection, err)
	}
	return result.DeletedCount > 0, nil
}

// ReplaceAll clears the collection and inserts the replacement set. There
// is no cross-document transaction here; the operation is only used by
// migration tooling while regular traffic is paused.
func (a *MongoAdapter) ReplaceAll(ctx context.Context, collection string, docs []core.Document) error {
	metrics.Operations.WithLabelValues(string(core.BackendPrimary), "replaceAll").Inc()

	coll := a.db.Collection(collection)
	if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "replaceAll").Inc()
		return fmt.Errorf("failed to clear %s: %w", collection, err)
	}
	if len(docs) == 0 {
		return nil
	}
	batch := make([]interface{}, len(docs))
	for i, d := range docs {
		batch[i] = bson.M(d)
	}
	if _, err := coll.InsertMany(ctx, batch); err != nil {
		metrics.OperationErrors.WithLabelValues(string(core.BackendPrimary), "replaceAll").Inc()
		return fmt.Errorf("failed to repopulate %s: %w", collection, err)
	}
	return nil
}

// EnsureCollection registers the collection's id prefix and creates its
// indexes plus the implicit unique index on id. Duplicate-index responses
// count as success; other index errors are reported to the caller, which
// logs them as non-fatal warnings.
func (a *MongoAdapter) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if a.ids != nil {
		a.ids.Register(spec.Name, spec.IDPrefix)
	}

	indexes := append([]IndexSpec{{Fields: []string{core.IDField}, Unique: true}}, spec.Indexes...)
	coll := a.db.Collection(spec.Name)
	for _, idx := range indexes {
		keys := bson.D{}
		for _, f := range idx.Fields {
			keys = append(keys, bson.E{Key: f, Value: 1})
		}
		model := mongo.IndexModel{Keys: keys}
		if idx.Unique {
			model.Options = options.Index().SetUnique(true)
		}
		if _, err := coll.Indexes().CreateOne(ctx, model); err != nil {
			if isMongoDuplicateIndex(err) {
				continue
			}
			return fmt.Errorf("failed to create index %v on %s: %w", idx.Fields, spec.Name, err)
		}
	}
	return nil
}

// predicateFilter converts an equality predicate into a bson filter.
func predicateFilter(p core.Predicate) bson.M {
	filter := bson.M{}
	for k, v := range p {
		filter[k] = v
	}
	return filter
}

// fromBSON converts a decoded document, dropping the driver-assigned _id
// so round-trips compare equal.
func fromBSON(raw bson.M) core.Document {
	doc := make(core.Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		doc[k] = v
	}
	return doc
}

func isMongoDuplicateIndex(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == mongoIndexOptionsConflict || cmdErr.Code == mongoIndexKeySpecsConflict
	}
	return false
}
