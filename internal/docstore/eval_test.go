package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDoc(t *testing.T) Document {
	t.Helper()
	doc, err := ToDocument(map[string]any{
		"_id":    "d1",
		"userId": "u1",
		"date":   time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		"entries": []map[string]any{
			{"id": "e1", "activity": "Running", "start": "07:00"},
			{"id": "e2", "activity": "Reading", "start": "21:00"},
		},
		"variables": []any{},
	})
	require.NoError(t, err)
	return doc
}

func TestMatchesConditions(t *testing.T) {
	doc := testDoc(t)

	tests := []struct {
		name string
		f    Filter
		want bool
	}{
		{"eq string", Where(Eq("userId", "u1")), true},
		{"eq mismatch", Where(Eq("userId", "u2")), false},
		{"eq time", Where(Eq("date", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))), true},
		{"gte time", Where(Gte("date", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))), true},
		{"lt time", Where(Lt("date", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))), false},
		{"exists", Where(Exists("entries")), true},
		{"missing note", Where(Missing("note")), true},
		{"missing present", Where(Missing("userId")), false},
		{"elem match", Where(ElemMatch("entries", map[string]any{"activity": "Running", "start": "07:00"})), true},
		{"elem match partial miss", Where(ElemMatch("entries", map[string]any{"activity": "Running", "start": "21:00"})), false},
		{"no elem match", Where(NoElemMatch("entries", map[string]any{"id": "e9"})), true},
		{"len less", Where(LenLess("entries", 3)), true},
		{"len less exact", Where(LenLess("entries", 2)), false},
		{"len less missing array", Where(LenLess("nothing", 1)), true},
		{"index path", Where(Eq("entries.1.id", "e2")), true},
		{"conjunction", Where(Eq("userId", "u1"), Missing("note"), LenLess("variables", 1)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Matches(doc, tt.f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyPositionalSet(t *testing.T) {
	doc := testDoc(t)

	err := Apply(doc, Update{
		Set: map[string]any{"entries.$[e].activity": "Cycling", "entries.$[e].end": "08:00"},
	}, UpdateOptions{ArrayFilters: []ArrayFilter{{Ident: "e", Match: map[string]any{"id": "e1"}}}}, false)
	require.NoError(t, err)

	v, ok := Lookup(doc, "entries.0.activity")
	require.True(t, ok)
	assert.Equal(t, "Cycling", v)
	v, _ = Lookup(doc, "entries.0.end")
	assert.Equal(t, "08:00", v)
	v, _ = Lookup(doc, "entries.1.activity")
	assert.Equal(t, "Reading", v, "unselected elements are untouched")
}

func TestApplyPushPullUnset(t *testing.T) {
	doc := testDoc(t)
	doc["note"] = "hello"

	err := Apply(doc, Update{
		Push:  map[string]any{"variables": map[string]any{"variable": "Weight", "value": "70"}},
		Pull:  map[string]map[string]any{"entries": {"id": "e2"}},
		Unset: []string{"note"},
	}, UpdateOptions{}, false)
	require.NoError(t, err)

	assert.Len(t, doc["entries"], 1)
	assert.Len(t, doc["variables"], 1)
	_, hasNote := doc["note"]
	assert.False(t, hasNote)
}

func TestApplyAddToSetIsIdempotent(t *testing.T) {
	doc := Document{"_id": "u1"}
	u := Update{AddToSet: map[string][]any{"names": {"Alice", "Bob"}}}

	require.NoError(t, Apply(doc, u, UpdateOptions{}, false))
	require.NoError(t, Apply(doc, u, UpdateOptions{}, false))

	assert.Equal(t, []any{"Alice", "Bob"}, doc["names"])
}

func TestApplySetOnInsertOnlyWhenInserting(t *testing.T) {
	u := Update{SetOnInsert: map[string]any{"variables": []any{}}, Push: map[string]any{"entries": map[string]any{"id": "x"}}}

	existing := Document{"_id": "d1", "entries": []any{}}
	require.NoError(t, Apply(existing, u, UpdateOptions{}, false))
	_, seeded := existing["variables"]
	assert.False(t, seeded)

	seed, err := Seed(Where(Eq("userId", "u1"), Eq("date", "2024-01-01"), NoElemMatch("entries", map[string]any{"id": "x"})))
	require.NoError(t, err)
	require.NoError(t, Apply(seed, u, UpdateOptions{}, true))
	assert.Equal(t, "u1", seed["userId"])
	assert.Equal(t, []any{}, seed["variables"])
	assert.Len(t, seed["entries"], 1)
}

func TestApplyNestedSetCreatesObjects(t *testing.T) {
	doc := Document{"_id": "u1"}
	require.NoError(t, Apply(doc, Update{Set: map[string]any{"colors.note": "#123456"}}, UpdateOptions{}, false))
	v, ok := Lookup(doc, "colors.note")
	require.True(t, ok)
	assert.Equal(t, "#123456", v)
}

func TestApplyPositionalWithoutFilter(t *testing.T) {
	doc := testDoc(t)
	err := Apply(doc, Update{Set: map[string]any{"entries.$[x].activity": "Nope"}}, UpdateOptions{}, false)
	assert.Error(t, err)
}

func TestSortDocuments(t *testing.T) {
	docs := []Document{
		{"date": "2024-03-09T00:00:00Z"},
		{"date": "2024-01-01T00:00:00Z"},
		{"date": "2024-02-15T00:00:00Z"},
	}
	SortDocuments(docs, Sort{{Path: "date"}})
	assert.Equal(t, "2024-01-01T00:00:00Z", docs[0]["date"])
	assert.Equal(t, "2024-03-09T00:00:00Z", docs[2]["date"])

	SortDocuments(docs, Sort{{Path: "date", Desc: true}})
	assert.Equal(t, "2024-03-09T00:00:00Z", docs[0]["date"])
}
