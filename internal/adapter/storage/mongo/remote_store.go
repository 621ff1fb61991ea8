// Package mongo mirrors ledger records to MongoDB, one collection per
// record collection with the record ID as _id.
package mongo

import (
	"context"
	"fmt"
	"sort"
	"time"

	"offline-wallet/config"
	"offline-wallet/internal/core/domain"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	fieldID         = "_id"
	fieldServerTime = "server_time"
)

// collection is the slice of *mongo.Collection the store needs.
type collection interface {
	setFields(ctx context.Context, id string, set bson.M) error
	replace(ctx context.Context, id string, doc bson.M) error
	find(ctx context.Context, filter bson.M) ([]bson.M, error)
	createIndexes(ctx context.Context, fields []string) error
}

// RemoteStore implements ports.RemoteStore on MongoDB.
type RemoteStore struct {
	coll func(name string) collection
	log  zerolog.Logger
}

// NewRemoteStore creates a store over db.
func NewRemoteStore(db *mongo.Database, log zerolog.Logger) *RemoteStore {
	return &RemoteStore{
		coll: func(name string) collection { return driverCollection{c: db.Collection(name)} },
		log:  log,
	}
}

// Connect opens a client for cfg and verifies connectivity.
func Connect(ctx context.Context, cfg config.MongoConfig, log zerolog.Logger) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetTimeout(cfg.Timeout)
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	log.Info().Str("database", cfg.Database).Msg("MongoDB remote connected")
	return client, nil
}

// EnsureIndexes indexes the party fields each collection is queried by.
func (s *RemoteStore) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]string{
		domain.CollectionVouchers:     {domain.RemoteFieldSenderUID, domain.RemoteFieldRecipientUID},
		domain.CollectionTransactions: {domain.RemoteFieldOwnerUID},
	}
	for name, fields := range indexes {
		if err := s.coll(name).createIndexes(ctx, fields); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func (s *RemoteStore) Upsert(ctx context.Context, collection, id string, fields map[string]any, policy domain.MergePolicy) error {
	doc := bson.M{}
	for k, v := range fields {
		if k == fieldID || k == fieldServerTime {
			continue
		}
		doc[k] = v
	}

	var err error
	if policy == domain.Replace {
		doc[fieldServerTime] = time.Now().UTC()
		err = s.coll(collection).replace(ctx, id, doc)
	} else {
		err = s.coll(collection).setFields(ctx, id, doc)
	}
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *RemoteStore) Query(ctx context.Context, collection string, filter domain.RemoteFilter) ([]domain.RemoteRecord, error) {
	docs, err := s.coll(collection).find(ctx, buildFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	records := make([]domain.RemoteRecord, 0, len(docs))
	for _, doc := range docs {
		rec, ok := recordFromDoc(collection, doc)
		if !ok {
			s.log.Warn().Str("collection", collection).Interface("id", doc[fieldID]).Msg("Skipping remote document without string _id")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// buildFilter renders AnyOf as an $or, with keys in sorted order.
func buildFilter(filter domain.RemoteFilter) bson.M {
	if len(filter.AnyOf) == 0 {
		return bson.M{}
	}
	keys := make([]string, 0, len(filter.AnyOf))
	for k := range filter.AnyOf {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	or := make(bson.A, 0, len(keys))
	for _, k := range keys {
		or = append(or, bson.M{k: filter.AnyOf[k]})
	}
	return bson.M{"$or": or}
}

func recordFromDoc(collection string, doc bson.M) (domain.RemoteRecord, bool) {
	id, ok := doc[fieldID].(string)
	if !ok {
		return domain.RemoteRecord{}, false
	}

	rec := domain.RemoteRecord{Collection: collection, ID: id, Fields: make(map[string]any, len(doc))}
	for k, v := range doc {
		switch k {
		case fieldID:
		case fieldServerTime:
			switch t := v.(type) {
			case bson.DateTime:
				rec.ServerTime = t.Time().UTC()
			case time.Time:
				rec.ServerTime = t.UTC()
			}
		default:
			rec.Fields[k] = v
		}
	}
	return rec, true
}

// driverCollection adapts *mongo.Collection.
type driverCollection struct {
	c *mongo.Collection
}

func (d driverCollection) setFields(ctx context.Context, id string, set bson.M) error {
	update := bson.M{
		"$set":         set,
		"$currentDate": bson.M{fieldServerTime: true},
	}
	_, err := d.c.UpdateOne(ctx, bson.M{fieldID: id}, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (d driverCollection) replace(ctx context.Context, id string, doc bson.M) error {
	_, err := d.c.ReplaceOne(ctx, bson.M{fieldID: id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (d driverCollection) find(ctx context.Context, filter bson.M) ([]bson.M, error) {
	opts := options.Find().SetSort(bson.D{{Key: fieldServerTime, Value: 1}, {Key: fieldID, Value: 1}})
	cursor, err := d.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (d driverCollection) createIndexes(ctx context.Context, fields []string) error {
	models := make([]mongo.IndexModel, 0, len(fields)+1)
	for _, f := range fields {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
	}
	models = append(models, mongo.IndexModel{Keys: bson.D{{Key: fieldServerTime, Value: 1}}})
	_, err := d.c.Indexes().CreateMany(ctx, models)
	return err
}

// HealthCheck implements ports.HealthChecker for MongoDB.
type HealthCheck struct {
	client *mongo.Client
}

// NewHealthCheck creates a MongoDB health checker.
func NewHealthCheck(client *mongo.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return h.client.Ping(ctx, nil)
}

func (h *HealthCheck) Name() string {
	return "mongodb"
}
