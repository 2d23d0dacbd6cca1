// Package mongo provides a MongoDB-backed store driver. Nested payload
// predicates map directly onto dotted document paths; Propagate
// atomicity uses multi-document transactions, which require a replica
// set or sharded deployment.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/RuSwift/microledger/store"
)

// Collection name constants.
const (
	colRecords  = "ledger_records"
	colCounters = "ledger_counters"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store on a MongoDB database.
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	records  *mongo.Collection
	counters *mongo.Collection
}

// New creates a MongoDB store on the named database.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:   client,
		db:       db,
		records:  db.Collection(colRecords),
		counters: db.Collection(colCounters),
	}
}

// Migrate creates the record indexes.
func (s *Store) Migrate(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "storage_id", Value: 1}, {Key: "ledger_id", Value: 1}}},
		{Keys: bson.D{{Key: "ledger_id", Value: 1}}},
		{Keys: bson.D{{Key: "seq", Value: 1}}},
	}
	if _, err := s.records.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("store/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) Find(ctx context.Context, q store.Query) (int, []*store.Record, error) {
	return s.find(ctx, q)
}

func (s *Store) FindOne(ctx context.Context, q store.Query) (*store.Record, error) {
	return s.findOne(ctx, q)
}

// InTx runs fn inside one MongoDB transaction, aborting on error.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("store/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &mongoTx{s: s})
	})
	return err
}

// mongoTx issues writes with the session-bound context supplied by
// WithTransaction, so they join the surrounding transaction.
type mongoTx struct {
	s *Store
}

var _ store.Tx = (*mongoTx)(nil)

func (t *mongoTx) Find(ctx context.Context, q store.Query) (int, []*store.Record, error) {
	return t.s.find(ctx, q)
}

func (t *mongoTx) FindOne(ctx context.Context, q store.Query) (*store.Record, error) {
	return t.s.findOne(ctx, q)
}

func (t *mongoTx) Insert(ctx context.Context, rec *store.Record) error {
	if rec.UID == "" {
		rec.UID = store.NewUID()
	}
	seq, err := t.s.nextSeq(ctx)
	if err != nil {
		return err
	}
	rec.Seq = seq
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if _, err := t.s.records.InsertOne(ctx, toModel(rec)); err != nil {
		return fmt.Errorf("store/mongo: insert: %w", err)
	}
	return nil
}

func (t *mongoTx) Update(ctx context.Context, rec *store.Record) error {
	res, err := t.s.records.UpdateOne(ctx,
		bson.M{"_id": rec.UID},
		bson.M{"$set": bson.M{
			"tags":        rec.Tags,
			"signature":   rec.Signature,
			"payload":     bson.M(rec.Payload),
			"storage_ids": rec.StorageIDs,
			"updated_at":  time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("store/mongo: update: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *mongoTx) Upsert(ctx context.Context, q store.Query, rec *store.Record) error {
	existing, err := t.s.findOne(ctx, q)
	if errors.Is(err, store.ErrNotFound) {
		return t.Insert(ctx, rec)
	}
	if err != nil {
		return err
	}

	rec.UID = existing.UID
	return t.Update(ctx, rec)
}

// nextSeq allocates the next insertion-order number from the counters
// collection.
func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "records"},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().
			SetUpsert(true).
			SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("store/mongo: allocate seq: %w", err)
	}
	return counter.Value, nil
}

func buildFilter(q store.Query) (bson.M, error) {
	filter := bson.M{}
	if q.StorageID != "" {
		filter["storage_id"] = q.StorageID
	}
	if len(q.StorageIDs) > 0 {
		filter["storage_id"] = bson.M{"$in": q.StorageIDs}
	}
	if q.LedgerID != "" {
		filter["ledger_id"] = q.LedgerID
	}
	if q.Tag != "" {
		filter["tags"] = q.Tag
	}
	for _, cond := range q.Payload {
		if err := cond.Validate(); err != nil {
			return nil, err
		}
		path := "payload." + cond.Path
		if len(cond.Values) == 1 {
			filter[path] = cond.Values[0]
		} else {
			filter[path] = bson.M{"$in": cond.Values}
		}
	}
	return filter, nil
}

func (s *Store) find(ctx context.Context, q store.Query) (int, []*store.Record, error) {
	filter, err := buildFilter(q)
	if err != nil {
		return 0, nil, err
	}

	total, err := s.records.CountDocuments(ctx, filter)
	if err != nil {
		return 0, nil, fmt.Errorf("store/mongo: count: %w", err)
	}

	sort := 1
	if q.Sort == store.SortDesc {
		sort = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "seq", Value: sort}})
	if q.Limit > 0 {
		opts = opts.SetLimit(int64(q.Limit))
	}
	if q.Offset > 0 {
		opts = opts.SetSkip(int64(q.Offset))
	}

	cursor, err := s.records.Find(ctx, filter, opts)
	if err != nil {
		return 0, nil, fmt.Errorf("store/mongo: find: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*store.Record, 0)
	for cursor.Next(ctx) {
		var m recordModel
		if err := cursor.Decode(&m); err != nil {
			return 0, nil, fmt.Errorf("store/mongo: decode: %w", err)
		}
		records = append(records, fromModel(&m))
	}
	if err := cursor.Err(); err != nil {
		return 0, nil, fmt.Errorf("store/mongo: cursor: %w", err)
	}
	return int(total), records, nil
}

func (s *Store) findOne(ctx context.Context, q store.Query) (*store.Record, error) {
	q.Limit = 1
	q.Offset = 0
	_, records, err := s.find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return records[0], nil
}
