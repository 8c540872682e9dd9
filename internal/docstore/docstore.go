// Package docstore is the persistence boundary for day and user aggregates:
// a small document-store vocabulary (filters with guard predicates, field
// update operators, array filters, upsert) that every backend implements
// with the same semantics.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by FindOne when no document matches.
	ErrNotFound = errors.New("document not found")

	// ErrConflict is returned when a write would duplicate a natural key,
	// including an upsert whose filter failed on a guard for an existing document.
	ErrConflict = errors.New("document conflict")
)

// Op is a filter condition operator.
type Op int

const (
	OpEq Op = iota
	OpGte
	OpLt
	OpExists
	OpMissing
	OpElemMatch
	OpNoElemMatch
	OpLenLess
)

// Cond is one condition of a Filter.
type Cond struct {
	Path  string
	Op    Op
	Value any
	Match map[string]any
	N     int
}

// Filter is a conjunction of conditions.
type Filter []Cond

// Where builds a Filter from conditions.
func Where(conds ...Cond) Filter { return Filter(conds) }

// And returns a copy of f extended with more conditions.
func (f Filter) And(conds ...Cond) Filter {
	out := make(Filter, 0, len(f)+len(conds))
	out = append(out, f...)
	return append(out, conds...)
}

func Eq(path string, v any) Cond  { return Cond{Path: path, Op: OpEq, Value: v} }
func Gte(path string, v any) Cond { return Cond{Path: path, Op: OpGte, Value: v} }
func Lt(path string, v any) Cond  { return Cond{Path: path, Op: OpLt, Value: v} }
func Exists(path string) Cond     { return Cond{Path: path, Op: OpExists} }
func Missing(path string) Cond    { return Cond{Path: path, Op: OpMissing} }

// ElemMatch matches when some element of the array at path has all fields in match.
func ElemMatch(path string, match map[string]any) Cond {
	return Cond{Path: path, Op: OpElemMatch, Match: match}
}

// NoElemMatch matches when no element of the array at path has all fields in match.
func NoElemMatch(path string, match map[string]any) Cond {
	return Cond{Path: path, Op: OpNoElemMatch, Match: match}
}

// LenLess matches when the array at path has fewer than n elements. A missing
// array has length zero.
func LenLess(path string, n int) Cond {
	return Cond{Path: path, Op: OpLenLess, N: n}
}

// Update is a set of field-level operators applied atomically to one document.
// Paths are dotted; a "$[ident]" segment addresses the array elements selected
// by the ArrayFilter named ident.
type Update struct {
	Set         map[string]any
	Unset       []string
	Push        map[string]any
	Pull        map[string]map[string]any
	AddToSet    map[string][]any
	SetOnInsert map[string]any
}

// IsZero reports whether the update carries no operators.
func (u Update) IsZero() bool {
	return len(u.Set) == 0 && len(u.Unset) == 0 && len(u.Push) == 0 &&
		len(u.Pull) == 0 && len(u.AddToSet) == 0 && len(u.SetOnInsert) == 0
}

// ArrayFilter selects array elements for a "$[ident]" path segment.
type ArrayFilter struct {
	Ident string
	Match map[string]any
}

// UpdateOptions controls UpdateOne.
type UpdateOptions struct {
	Upsert       bool
	ArrayFilters []ArrayFilter
}

// UpdateResult reports what UpdateOne did.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

// SortField orders Find results by one path.
type SortField struct {
	Path string
	Desc bool
}

// Sort is an ordered list of sort keys.
type Sort []SortField

// Collection is the store contract consumed by the engines.
type Collection interface {
	// FindOne decodes the first matching document into out or returns ErrNotFound.
	FindOne(ctx context.Context, f Filter, out any) error
	// Find decodes all matching documents into out, which must point to a slice.
	Find(ctx context.Context, f Filter, s Sort, out any) error
	UpdateOne(ctx context.Context, f Filter, u Update, opts UpdateOptions) (UpdateResult, error)
	InsertOne(ctx context.Context, doc any) error
	// DeleteOne removes the first matching document and returns how many were removed.
	DeleteOne(ctx context.Context, f Filter) (int64, error)
}

// Store hands out named collections and owns the backend connection. The key
// fields of a collection form its natural key, which is unique.
type Store interface {
	Collection(name string, key ...string) Collection
	Ping(ctx context.Context) error
	Close() error
}
