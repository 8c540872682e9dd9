package metrics

import (
	"context"
	"time"

	"github.com/lazypower/daybook/internal/docstore"
)

// InstrumentStore wraps s so that every collection operation is timed.
func InstrumentStore(s docstore.Store) docstore.Store {
	return &instrumentedStore{Store: s}
}

type instrumentedStore struct {
	docstore.Store
}

func (s *instrumentedStore) Collection(name string, key ...string) docstore.Collection {
	return &collection{next: s.Store.Collection(name, key...), name: name}
}

type collection struct {
	next docstore.Collection
	name string
}

func (c *collection) observe(ctx context.Context, op string) func() {
	start := time.Now()
	return func() { ObserveStoreLatency(ctx, op, c.name, start) }
}

func (c *collection) FindOne(ctx context.Context, f docstore.Filter, out any) error {
	defer c.observe(ctx, "find_one")()
	return c.next.FindOne(ctx, f, out)
}

func (c *collection) Find(ctx context.Context, f docstore.Filter, s docstore.Sort, out any) error {
	defer c.observe(ctx, "find")()
	return c.next.Find(ctx, f, s, out)
}

func (c *collection) UpdateOne(ctx context.Context, f docstore.Filter, u docstore.Update, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	defer c.observe(ctx, "update_one")()
	return c.next.UpdateOne(ctx, f, u, opts)
}

func (c *collection) InsertOne(ctx context.Context, doc any) error {
	defer c.observe(ctx, "insert_one")()
	return c.next.InsertOne(ctx, doc)
}

func (c *collection) DeleteOne(ctx context.Context, f docstore.Filter) (int64, error) {
	defer c.observe(ctx, "delete_one")()
	return c.next.DeleteOne(ctx, f)
}
