// Package mongostore implements the document store contract on MongoDB. The
// filter and update vocabulary maps one-to-one onto MongoDB query and update
// operators, so conditional writes are evaluated by the server.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lazypower/daybook/internal/docstore"
)

// Store is a MongoDB database handle.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	mu      sync.Mutex
	indexed map[string]bool
}

var _ docstore.Store = (*Store)(nil)

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{
		client:  client,
		db:      client.Database(database),
		indexed: make(map[string]bool),
	}, nil
}

// Collection returns the named collection. A unique index over key is created
// on first write.
func (s *Store) Collection(name string, key ...string) docstore.Collection {
	return &Collection{store: s, coll: s.db.Collection(name), key: key}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndex(ctx context.Context, c *Collection) error {
	if len(c.key) == 0 || (len(c.key) == 1 && c.key[0] == "_id") {
		return nil
	}
	name := c.coll.Name()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexed[name] {
		return nil
	}
	keys := bson.D{}
	for _, k := range c.key {
		keys = append(keys, bson.E{Key: k, Value: 1})
	}
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keys,
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create natural key index on %s: %w", name, err)
	}
	s.indexed[name] = true
	return nil
}

// Collection adapts a mongo.Collection to docstore.Collection.
type Collection struct {
	store *Store
	coll  *mongo.Collection
	key   []string
}

func (c *Collection) FindOne(ctx context.Context, f docstore.Filter, out any) error {
	err := c.coll.FindOne(ctx, Filter(f)).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("find one in %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *Collection) Find(ctx context.Context, f docstore.Filter, s docstore.Sort, out any) error {
	opts := options.Find()
	if len(s) > 0 {
		opts.SetSort(Sort(s))
	}
	cur, err := c.coll.Find(ctx, Filter(f), opts)
	if err != nil {
		return fmt.Errorf("find in %s: %w", c.coll.Name(), err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *Collection) UpdateOne(ctx context.Context, f docstore.Filter, u docstore.Update, o docstore.UpdateOptions) (docstore.UpdateResult, error) {
	var res docstore.UpdateResult
	if err := c.store.ensureIndex(ctx, c); err != nil {
		return res, err
	}

	opts := options.UpdateOne().SetUpsert(o.Upsert)
	if len(o.ArrayFilters) > 0 {
		opts.SetArrayFilters(ArrayFilters(o.ArrayFilters))
	}
	r, err := c.coll.UpdateOne(ctx, Filter(f), Update(u), opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return res, docstore.ErrConflict
		}
		return res, fmt.Errorf("update in %s: %w", c.coll.Name(), err)
	}
	res.Matched = r.MatchedCount
	res.Modified = r.ModifiedCount
	if r.UpsertedID != nil {
		res.UpsertedID = fmt.Sprint(r.UpsertedID)
	}
	return res, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc any) error {
	if err := c.store.ensureIndex(ctx, c); err != nil {
		return err
	}
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.ErrConflict
		}
		return fmt.Errorf("insert into %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *Collection) DeleteOne(ctx context.Context, f docstore.Filter) (int64, error) {
	r, err := c.coll.DeleteOne(ctx, Filter(f))
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", c.coll.Name(), err)
	}
	return r.DeletedCount, nil
}
