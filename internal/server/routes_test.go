package server

import (
	"net/http"
	"testing"

	"github.com/lazypower/daybook/internal/engine"
)

func TestActivityLifecycle(t *testing.T) {
	env := testServer(t)

	w := env.do(t, "POST", "/api/activity/new", "alice",
		`{"year":2024,"month":3,"day":9,"type":"activity","activity":"Running","description":"30min jog","start":"07:00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create: status = %d, body: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["outcome"] != "created" {
		t.Errorf("outcome = %v, want created", body["outcome"])
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatal("expected entry id in response")
	}
	day := body["day"].(map[string]any)
	entry := day["entries"].([]any)[0].(map[string]any)
	if entry["end"] != "07:30" {
		t.Errorf("end = %v, want 07:30", entry["end"])
	}

	// Same (activity, start) again.
	w = env.do(t, "POST", "/api/activity/new", "alice",
		`{"year":2024,"month":3,"day":9,"type":"activity","activity":"Running","description":"1h","start":"07:00"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate: status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	body = decodeBody(t, w)
	if body["message"] != engine.MsgActivityExists || body["code"] != "conflict" {
		t.Errorf("duplicate body = %v", body)
	}

	w = env.do(t, "PATCH", "/api/activity/edit", "alice",
		`{"year":2024,"month":3,"day":9,"type":"activity","id":"`+id+`","activity":"Running","description":"45min jog","start":"07:00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("edit: status = %d, body: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/activity/day?year=2024&month=3&day=9", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("day: status = %d, body: %s", w.Code, w.Body.String())
	}
	entry = decodeBody(t, w)["entries"].([]any)[0].(map[string]any)
	if entry["end"] != "07:45" {
		t.Errorf("edited end = %v, want 07:45", entry["end"])
	}

	w = env.do(t, "DELETE", "/api/activity/delete", "alice",
		`{"year":2024,"month":3,"day":9,"type":"activity","id":"`+id+`"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d, body: %s", w.Code, w.Body.String())
	}
	if outcome := decodeBody(t, w)["outcome"]; outcome != "deleted" {
		t.Errorf("outcome = %v, want deleted", outcome)
	}

	w = env.do(t, "GET", "/api/activity/day?year=2024&month=3&day=9", "alice", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("day after delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestVariableAndNoteRoutes(t *testing.T) {
	env := testServer(t)

	steps := []struct {
		method, body string
		want         int
	}{
		{"POST", `{"year":2024,"month":3,"day":9,"type":"variable","variable":"Weight (kg)","value":"70"}`, http.StatusOK},
		{"PATCH", `{"year":2024,"month":3,"day":9,"type":"variable","variable":"Weight (kg)","value":"69.5"}`, http.StatusOK},
		{"POST", `{"year":2024,"month":3,"day":9,"type":"variable","variable":"Weight (kg)","value":"71"}`, http.StatusBadRequest},
		{"POST", `{"year":2024,"month":3,"day":9,"type":"note","note":"Saw @Alice"}`, http.StatusOK},
		{"POST", `{"year":2024,"month":3,"day":9,"type":"note","note":"again"}`, http.StatusBadRequest},
		{"DELETE", `{"year":2024,"month":3,"day":9,"type":"variable","variable":"Weight (kg)"}`, http.StatusOK},
		{"DELETE", `{"year":2024,"month":3,"day":9,"type":"variable","variable":"Weight (kg)"}`, http.StatusNotFound},
	}
	paths := map[string]string{"POST": "/api/activity/new", "PATCH": "/api/activity/edit", "DELETE": "/api/activity/delete"}
	for i, st := range steps {
		w := env.do(t, st.method, paths[st.method], "alice", st.body)
		if w.Code != st.want {
			t.Fatalf("step %d %s: status = %d, want %d; body: %s", i, st.method, w.Code, st.want, w.Body.String())
		}
	}

	w := env.do(t, "GET", "/api/user", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("user: status = %d", w.Code)
	}
	names, _ := decodeBody(t, w)["names"].([]any)
	if len(names) != 1 || names[0] != "Alice" {
		t.Errorf("names = %v, want [Alice]", names)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	env := testServer(t)
	env.do(t, "POST", "/api/activity/new", "alice",
		`{"year":2024,"month":3,"day":9,"type":"note","note":"mine"}`)

	w := env.do(t, "GET", "/api/activity/day?year=2024&month=3&day=9", "bob", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMutationBadRequests(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `{"year":`, "validation"},
		{"missing type", `{"year":2024,"month":3,"day":9}`, "validation"},
		{"unknown type", `{"year":2024,"month":3,"day":9,"type":"mood"}`, "validation"},
		{"bad date", `{"year":2024,"month":2,"day":30,"type":"note","note":"x"}`, "validation"},
		{"no times", `{"year":2024,"month":3,"day":9,"type":"activity","activity":"Run","description":"1h"}`, "validation"},
		{"zero duration", `{"year":2024,"month":3,"day":9,"type":"activity","activity":"Run","description":"jog","start":"07:00"}`, "conflict"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/activity/new", "alice", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
			body := decodeBody(t, w)
			if body["code"] != tt.code {
				t.Errorf("code = %v, want %s", body["code"], tt.code)
			}
			if body["message"] == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestEditMissingActivity(t *testing.T) {
	env := testServer(t)
	env.do(t, "POST", "/api/activity/new", "alice",
		`{"year":2024,"month":3,"day":9,"type":"note","note":"x"}`)

	w := env.do(t, "PATCH", "/api/activity/edit", "alice",
		`{"year":2024,"month":3,"day":9,"type":"activity","id":"nope","activity":"Run","description":"1h","start":"07:00"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusNotFound, w.Body.String())
	}
	if msg := decodeBody(t, w)["message"]; msg != engine.MsgActivityNotFound {
		t.Errorf("message = %v, want %q", msg, engine.MsgActivityNotFound)
	}
}

func TestDayQueryValidation(t *testing.T) {
	env := testServer(t)
	for _, path := range []string{
		"/api/activity/day?year=2024&month=3",
		"/api/activity/day?year=x&month=3&day=9",
		"/api/activity/day?year=2024&month=13&day=9",
	} {
		if w := env.do(t, "GET", path, "alice", ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestRangeRoute(t *testing.T) {
	env := testServer(t)
	for _, d := range []string{"9", "3", "5"} {
		w := env.do(t, "POST", "/api/activity/new", "alice",
			`{"year":2024,"month":3,"day":`+d+`,"type":"note","note":"day `+d+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("create day %s: status = %d", d, w.Code)
		}
	}

	w := env.do(t, "GET", "/api/activity/range?from=2024-03-04&to=2024-03-09", "alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	days := decodeBody(t, w)["days"].([]any)
	if len(days) != 2 {
		t.Fatalf("got %d days, want 2", len(days))
	}
	if note := days[0].(map[string]any)["note"]; note != "day 5" {
		t.Errorf("first note = %v, want day 5", note)
	}

	for _, path := range []string{
		"/api/activity/range?from=2024-03-09&to=2024-03-01",
		"/api/activity/range?from=2024-03-09",
		"/api/activity/range?from=2020-01-01&to=2024-01-01",
	} {
		if w := env.do(t, "GET", path, "alice", ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d", path, w.Code, http.StatusBadRequest)
		}
	}
}

func TestUserRouteBootstrapsUser(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/api/user", "carol", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["_id"] != "carol" {
		t.Errorf("_id = %v, want carol", body["_id"])
	}
	colors := body["colors"].(map[string]any)
	if note, _ := colors["note"].(string); len(note) != 7 {
		t.Errorf("note color = %v, want #rrggbb", colors["note"])
	}
}
