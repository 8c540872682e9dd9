package mongostore

import (
	"sort"
	"strconv"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/lazypower/daybook/internal/docstore"
)

// Filter translates f into a MongoDB query. Conditions are combined under
// $and so that several conditions on one path never collide.
func Filter(f docstore.Filter) bson.D {
	if len(f) == 0 {
		return bson.D{}
	}
	clauses := make(bson.A, 0, len(f))
	for _, c := range f {
		clauses = append(clauses, cond(c))
	}
	return bson.D{{Key: "$and", Value: clauses}}
}

func cond(c docstore.Cond) bson.D {
	switch c.Op {
	case docstore.OpGte:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$gte", Value: c.Value}}}}
	case docstore.OpLt:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$lt", Value: c.Value}}}}
	case docstore.OpExists:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$exists", Value: true}}}}
	case docstore.OpMissing:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$exists", Value: false}}}}
	case docstore.OpElemMatch:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$elemMatch", Value: match(c.Match)}}}}
	case docstore.OpNoElemMatch:
		return bson.D{{Key: c.Path, Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$elemMatch", Value: match(c.Match)}}}}}}
	case docstore.OpLenLess:
		if c.N <= 0 {
			// Every document has an _id.
			return bson.D{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}
		}
		return bson.D{{Key: c.Path + "." + strconv.Itoa(c.N-1), Value: bson.D{{Key: "$exists", Value: false}}}}
	}
	return bson.D{{Key: c.Path, Value: c.Value}}
}

func match(m map[string]any) bson.D {
	out := make(bson.D, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, bson.E{Key: k, Value: m[k]})
	}
	return out
}

// Update translates u into MongoDB update operators.
func Update(u docstore.Update) bson.D {
	var out bson.D
	if len(u.SetOnInsert) > 0 {
		out = append(out, bson.E{Key: "$setOnInsert", Value: match(u.SetOnInsert)})
	}
	if len(u.Set) > 0 {
		out = append(out, bson.E{Key: "$set", Value: match(u.Set)})
	}
	if len(u.Unset) > 0 {
		unset := make(bson.D, 0, len(u.Unset))
		for _, p := range u.Unset {
			unset = append(unset, bson.E{Key: p, Value: ""})
		}
		out = append(out, bson.E{Key: "$unset", Value: unset})
	}
	if len(u.Push) > 0 {
		out = append(out, bson.E{Key: "$push", Value: match(u.Push)})
	}
	if len(u.Pull) > 0 {
		pull := make(bson.D, 0, len(u.Pull))
		for _, k := range sortedKeys(u.Pull) {
			pull = append(pull, bson.E{Key: k, Value: match(u.Pull[k])})
		}
		out = append(out, bson.E{Key: "$pull", Value: pull})
	}
	if len(u.AddToSet) > 0 {
		add := make(bson.D, 0, len(u.AddToSet))
		for _, k := range sortedKeys(u.AddToSet) {
			add = append(add, bson.E{Key: k, Value: bson.D{{Key: "$each", Value: bson.A(u.AddToSet[k])}}})
		}
		out = append(out, bson.E{Key: "$addToSet", Value: add})
	}
	return out
}

// ArrayFilters translates array filters into the driver's form, prefixing
// each matched field with its identifier.
func ArrayFilters(afs []docstore.ArrayFilter) []any {
	out := make([]any, 0, len(afs))
	for _, af := range afs {
		d := make(bson.D, 0, len(af.Match))
		for _, k := range sortedKeys(af.Match) {
			d = append(d, bson.E{Key: af.Ident + "." + k, Value: af.Match[k]})
		}
		out = append(out, d)
	}
	return out
}

// Sort translates s into a MongoDB sort document.
func Sort(s docstore.Sort) bson.D {
	out := make(bson.D, 0, len(s))
	for _, f := range s {
		dir := 1
		if f.Desc {
			dir = -1
		}
		out = append(out, bson.E{Key: f.Path, Value: dir})
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
