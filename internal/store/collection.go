package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/lazypower/daybook/internal/docstore"
)

// Collection is a named set of JSON documents in the documents table. Filters
// narrow the candidate rows by id, natural key or partition in SQL and are then
// evaluated in process; every write runs inside one transaction.
type Collection struct {
	db   *DB
	name string
	key  []string
}

// Collection returns the named collection. key lists the fields forming the
// unique natural key; the first one also partitions the rows.
func (db *DB) Collection(name string, key ...string) docstore.Collection {
	if len(key) == 0 {
		key = []string{"_id"}
	}
	return &Collection{db: db, name: name, key: key}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type row struct {
	id  string
	doc docstore.Document
}

func (c *Collection) FindOne(ctx context.Context, f docstore.Filter, out any) error {
	rows, err := c.load(ctx, c.db, f, false)
	if err != nil {
		return fmt.Errorf("find one in %s: %w", c.name, err)
	}
	if len(rows) == 0 {
		return docstore.ErrNotFound
	}
	return decode(rows[0].doc, out)
}

func (c *Collection) Find(ctx context.Context, f docstore.Filter, s docstore.Sort, out any) error {
	rows, err := c.load(ctx, c.db, f, false)
	if err != nil {
		return fmt.Errorf("find in %s: %w", c.name, err)
	}
	docs := make([]docstore.Document, len(rows))
	for i := range rows {
		docs[i] = rows[i].doc
	}
	docstore.SortDocuments(docs, s)
	return decode(docs, out)
}

func (c *Collection) UpdateOne(ctx context.Context, f docstore.Filter, u docstore.Update, opts docstore.UpdateOptions) (docstore.UpdateResult, error) {
	var res docstore.UpdateResult

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin update in %s: %w", c.name, err)
	}
	defer tx.Rollback()

	rows, err := c.load(ctx, tx, f, true)
	if err != nil {
		return res, fmt.Errorf("update in %s: %w", c.name, err)
	}

	if len(rows) > 0 {
		target := rows[0]
		before, err := json.Marshal(target.doc)
		if err != nil {
			return res, fmt.Errorf("encode %s/%s: %w", c.name, target.id, err)
		}
		if err := docstore.Apply(target.doc, u, opts, false); err != nil {
			return res, fmt.Errorf("apply update to %s/%s: %w", c.name, target.id, err)
		}
		res.Matched = 1
		after, err := json.Marshal(target.doc)
		if err != nil {
			return res, fmt.Errorf("encode %s/%s: %w", c.name, target.id, err)
		}
		if string(before) != string(after) {
			if err := c.write(ctx, tx, target.id, target.doc, after); err != nil {
				return res, err
			}
			res.Modified = 1
		}
		return res, commit(tx, c.name)
	}

	if !opts.Upsert {
		return res, commit(tx, c.name)
	}

	doc, err := docstore.Seed(f)
	if err != nil {
		return res, err
	}
	if err := docstore.Apply(doc, u, opts, true); err != nil {
		return res, fmt.Errorf("apply upsert to %s: %w", c.name, err)
	}
	id, err := c.insert(ctx, tx, doc)
	if err != nil {
		return res, err
	}
	res.UpsertedID = id
	return res, commit(tx, c.name)
}

func (c *Collection) InsertOne(ctx context.Context, v any) error {
	doc, err := docstore.ToDocument(v)
	if err != nil {
		return err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert in %s: %w", c.name, err)
	}
	defer tx.Rollback()

	if _, err := c.insert(ctx, tx, doc); err != nil {
		return err
	}
	return commit(tx, c.name)
}

func (c *Collection) DeleteOne(ctx context.Context, f docstore.Filter) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete in %s: %w", c.name, err)
	}
	defer tx.Rollback()

	rows, err := c.load(ctx, tx, f, true)
	if err != nil {
		return 0, fmt.Errorf("delete in %s: %w", c.name, err)
	}
	if len(rows) == 0 {
		return 0, commit(tx, c.name)
	}

	if _, err := tx.ExecContext(ctx, c.db.rebind(
		"DELETE FROM documents WHERE collection = ? AND id = ?"), c.name, rows[0].id); err != nil {
		return 0, fmt.Errorf("delete %s/%s: %w", c.name, rows[0].id, err)
	}
	return 1, commit(tx, c.name)
}

// load selects candidate rows in SQL and keeps those matching f.
func (c *Collection) load(ctx context.Context, q queryer, f docstore.Filter, forUpdate bool) ([]row, error) {
	where, args, err := c.narrow(f)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, body FROM documents WHERE " + where + " ORDER BY id"
	if forUpdate && c.db.dialect == dialectPostgres {
		query += " FOR UPDATE"
	}

	rs, err := q.QueryContext(ctx, c.db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		var id, body string
		if err := rs.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc docstore.Document
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		ok, err := docstore.Matches(doc, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row{id: id, doc: doc})
		}
	}
	return out, rs.Err()
}

// narrow picks the most selective indexed predicate the filter allows.
func (c *Collection) narrow(f docstore.Filter) (string, []any, error) {
	eq := make(map[string]any)
	for _, cond := range f {
		if cond.Op == docstore.OpEq {
			eq[cond.Path] = cond.Value
		}
	}

	if id, ok := eq["_id"].(string); ok {
		return "collection = ? AND id = ?", []any{c.name, id}, nil
	}

	values := make([]any, 0, len(c.key))
	for _, k := range c.key {
		v, ok := eq[k]
		if !ok {
			break
		}
		values = append(values, v)
	}
	if len(values) == len(c.key) {
		nk, err := keyString(values...)
		if err != nil {
			return "", nil, err
		}
		return "collection = ? AND natural_key = ?", []any{c.name, nk}, nil
	}
	if len(values) > 0 {
		p, err := keyString(values[0])
		if err != nil {
			return "", nil, err
		}
		return "collection = ? AND partition = ?", []any{c.name, p}, nil
	}
	return "collection = ?", []any{c.name}, nil
}

func (c *Collection) insert(ctx context.Context, tx *sql.Tx, doc docstore.Document) (string, error) {
	id, _ := doc["_id"].(string)
	if id == "" {
		id = uuid.NewString()
		doc["_id"] = id
	}
	nk, part, err := c.keys(doc)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode %s/%s: %w", c.name, id, err)
	}
	_, err = tx.ExecContext(ctx, c.db.rebind(`
		INSERT INTO documents (collection, id, natural_key, partition, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), c.name, id, nk, part, string(body), time.Now().UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return "", docstore.ErrConflict
		}
		return "", fmt.Errorf("insert %s/%s: %w", c.name, id, err)
	}
	return id, nil
}

func (c *Collection) write(ctx context.Context, tx *sql.Tx, id string, doc docstore.Document, body []byte) error {
	nk, part, err := c.keys(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, c.db.rebind(`
		UPDATE documents SET natural_key = ?, partition = ?, body = ?, updated_at = ?
		WHERE collection = ? AND id = ?
	`), nk, part, string(body), time.Now().UnixMilli(), c.name, id)
	if err != nil {
		if isUniqueViolation(err) {
			return docstore.ErrConflict
		}
		return fmt.Errorf("update %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *Collection) keys(doc docstore.Document) (naturalKey, partition string, err error) {
	values := make([]any, len(c.key))
	for i, k := range c.key {
		v, ok := docstore.Lookup(doc, k)
		if !ok {
			return "", "", fmt.Errorf("document in %s is missing key field %q", c.name, k)
		}
		values[i] = v
	}
	if naturalKey, err = keyString(values...); err != nil {
		return "", "", err
	}
	if partition, err = keyString(values[0]); err != nil {
		return "", "", err
	}
	return naturalKey, partition, nil
}

// keyString encodes normalized values so that filter values and stored
// values produce identical keys.
func keyString(values ...any) (string, error) {
	norm := make([]any, len(values))
	for i, v := range values {
		n, err := docstore.Normalize(v)
		if err != nil {
			return "", err
		}
		norm[i] = n
	}
	if len(norm) == 1 {
		b, err := json.Marshal(norm[0])
		return string(b), err
	}
	b, err := json.Marshal(norm)
	return string(b), err
}

func decode(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func commit(tx *sql.Tx, name string) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
