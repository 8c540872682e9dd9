package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Document is the generic JSON form used by in-process backends. Values are
// restricted to what encoding/json produces: map[string]any, []any, string,
// float64, bool and nil.
type Document = map[string]any

// Normalize converts v into its generic JSON form so that it compares equal
// to values decoded from stored documents.
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, string, float64, bool:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

// ToDocument converts a struct (or map) into a Document.
func ToDocument(v any) (Document, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	doc, ok := n.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be an object, got %T", v)
	}
	return doc, nil
}

// Lookup resolves a dotted path. Numeric segments index into arrays.
func Lookup(doc Document, path string) (any, bool) {
	var node any = doc
	for _, seg := range strings.Split(path, ".") {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(n) {
				return nil, false
			}
			node = n[i]
		default:
			return nil, false
		}
	}
	return node, true
}

// Matches evaluates f against doc.
func Matches(doc Document, f Filter) (bool, error) {
	for _, c := range f {
		ok, err := matchCond(doc, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchCond(doc Document, c Cond) (bool, error) {
	val, present := Lookup(doc, c.Path)
	switch c.Op {
	case OpEq:
		want, err := Normalize(c.Value)
		if err != nil {
			return false, err
		}
		return present && reflect.DeepEqual(val, want), nil
	case OpGte, OpLt:
		if !present {
			return false, nil
		}
		want, err := Normalize(c.Value)
		if err != nil {
			return false, err
		}
		cmp, ok := compare(val, want)
		if !ok {
			return false, nil
		}
		if c.Op == OpGte {
			return cmp >= 0, nil
		}
		return cmp < 0, nil
	case OpExists:
		return present, nil
	case OpMissing:
		return !present, nil
	case OpElemMatch, OpNoElemMatch:
		found, err := anyElemMatches(val, c.Match)
		if err != nil {
			return false, err
		}
		if c.Op == OpElemMatch {
			return found, nil
		}
		return !found, nil
	case OpLenLess:
		arr, _ := val.([]any)
		return len(arr) < c.N, nil
	}
	return false, fmt.Errorf("unknown filter op %d", c.Op)
}

func anyElemMatches(val any, match map[string]any) (bool, error) {
	arr, ok := val.([]any)
	if !ok {
		return false, nil
	}
	want, err := normalizeMatch(match)
	if err != nil {
		return false, err
	}
	for _, el := range arr {
		if elemMatches(el, want) {
			return true, nil
		}
	}
	return false, nil
}

func normalizeMatch(match map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(match))
	for k, v := range match {
		n, err := Normalize(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

func elemMatches(el any, want map[string]any) bool {
	m, ok := el.(map[string]any)
	if !ok {
		return false
	}
	for k, v := range want {
		got, present := Lookup(m, k)
		if !present || !reflect.DeepEqual(got, v) {
			return false
		}
	}
	return true
}

func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Seed builds the document an upsert starts from: the top-level equality
// conditions of the filter.
func Seed(f Filter) (Document, error) {
	doc := Document{}
	for _, c := range f {
		if c.Op != OpEq || strings.Contains(c.Path, ".") {
			continue
		}
		v, err := Normalize(c.Value)
		if err != nil {
			return nil, err
		}
		doc[c.Path] = v
	}
	return doc, nil
}

// Apply mutates doc with u. SetOnInsert fields are only written when inserting.
func Apply(doc Document, u Update, opts UpdateOptions, inserting bool) error {
	filters := make(map[string]map[string]any, len(opts.ArrayFilters))
	for _, af := range opts.ArrayFilters {
		m, err := normalizeMatch(af.Match)
		if err != nil {
			return err
		}
		filters[af.Ident] = m
	}

	if inserting {
		for _, path := range sortedKeys(u.SetOnInsert) {
			if err := setValue(doc, path, u.SetOnInsert[path], filters); err != nil {
				return err
			}
		}
	}
	for _, path := range sortedKeys(u.Set) {
		if err := setValue(doc, path, u.Set[path], filters); err != nil {
			return err
		}
	}
	for _, path := range u.Unset {
		if _, err := mutate(doc, split(path), filters, func(parent map[string]any, key string) error {
			delete(parent, key)
			return nil
		}); err != nil {
			return fmt.Errorf("unset %s: %w", path, err)
		}
	}
	for _, path := range sortedKeys(u.Push) {
		el, err := Normalize(u.Push[path])
		if err != nil {
			return err
		}
		if err := editArray(doc, path, filters, func(arr []any) []any {
			return append(arr, el)
		}); err != nil {
			return fmt.Errorf("push %s: %w", path, err)
		}
	}
	for _, path := range sortedKeys(u.Pull) {
		want, err := normalizeMatch(u.Pull[path])
		if err != nil {
			return err
		}
		if err := editArray(doc, path, filters, func(arr []any) []any {
			kept := arr[:0:0]
			for _, el := range arr {
				if !elemMatches(el, want) {
					kept = append(kept, el)
				}
			}
			return kept
		}); err != nil {
			return fmt.Errorf("pull %s: %w", path, err)
		}
	}
	for _, path := range sortedKeys(u.AddToSet) {
		values := make([]any, 0, len(u.AddToSet[path]))
		for _, v := range u.AddToSet[path] {
			n, err := Normalize(v)
			if err != nil {
				return err
			}
			values = append(values, n)
		}
		if err := editArray(doc, path, filters, func(arr []any) []any {
			for _, v := range values {
				if !containsValue(arr, v) {
					arr = append(arr, v)
				}
			}
			return arr
		}); err != nil {
			return fmt.Errorf("addToSet %s: %w", path, err)
		}
	}
	return nil
}

func setValue(doc Document, path string, value any, filters map[string]map[string]any) error {
	v, err := Normalize(value)
	if err != nil {
		return err
	}
	if _, err := mutate(doc, split(path), filters, func(parent map[string]any, key string) error {
		parent[key] = v
		return nil
	}); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func editArray(doc Document, path string, filters map[string]map[string]any, edit func([]any) []any) error {
	_, err := mutate(doc, split(path), filters, func(parent map[string]any, key string) error {
		cur, present := parent[key]
		var arr []any
		if present && cur != nil {
			a, ok := cur.([]any)
			if !ok {
				return fmt.Errorf("field %q is not an array", key)
			}
			arr = a
		}
		parent[key] = edit(arr)
		return nil
	})
	return err
}

// mutate walks segs, creating intermediate objects, and calls leaf on the
// object holding the final key. A "$[ident]" segment fans out over the
// elements selected by filters[ident].
func mutate(node any, segs []string, filters map[string]map[string]any, leaf func(map[string]any, string) error) (any, error) {
	seg := segs[0]
	if strings.HasPrefix(seg, "$[") && strings.HasSuffix(seg, "]") {
		arr, ok := node.([]any)
		if !ok {
			return node, fmt.Errorf("positional segment %s on non-array", seg)
		}
		if len(segs) == 1 {
			return node, fmt.Errorf("positional segment %s cannot be the last segment", seg)
		}
		ident := seg[2 : len(seg)-1]
		want, ok := filters[ident]
		if !ok {
			return node, fmt.Errorf("no array filter for identifier %q", ident)
		}
		for i, el := range arr {
			if !elemMatches(el, want) {
				continue
			}
			updated, err := mutate(el, segs[1:], filters, leaf)
			if err != nil {
				return node, err
			}
			arr[i] = updated
		}
		return arr, nil
	}

	if arr, ok := node.([]any); ok {
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(arr) {
			return node, fmt.Errorf("invalid array index %q", seg)
		}
		if len(segs) == 1 {
			return node, fmt.Errorf("cannot replace array element %q directly", seg)
		}
		updated, err := mutate(arr[i], segs[1:], filters, leaf)
		if err != nil {
			return node, err
		}
		arr[i] = updated
		return arr, nil
	}

	m, ok := node.(map[string]any)
	if !ok {
		if node != nil {
			return node, fmt.Errorf("cannot traverse %T at %q", node, seg)
		}
		m = map[string]any{}
	}
	if len(segs) == 1 {
		return m, leaf(m, seg)
	}
	updated, err := mutate(m[seg], segs[1:], filters, leaf)
	if err != nil {
		return m, err
	}
	m[seg] = updated
	return m, nil
}

func containsValue(arr []any, v any) bool {
	for _, el := range arr {
		if reflect.DeepEqual(el, v) {
			return true
		}
	}
	return false
}

// SortDocuments orders docs in place. Missing values sort first.
func SortDocuments(docs []Document, s Sort) {
	if len(s) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range s {
			a, aok := Lookup(docs[i], key.Path)
			b, bok := Lookup(docs[j], key.Path)
			var cmp int
			switch {
			case !aok && !bok:
				cmp = 0
			case !aok:
				cmp = -1
			case !bok:
				cmp = 1
			default:
				cmp, _ = compare(a, b)
			}
			if cmp == 0 {
				continue
			}
			if key.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func split(path string) []string { return strings.Split(path, ".") }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
