package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lazypower/daybook/internal/auth"
	"github.com/lazypower/daybook/internal/engine"
	"github.com/lazypower/daybook/internal/ratelimit"
	"github.com/lazypower/daybook/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	srv    *Server
	tokens *auth.HMAC
}

func testServer(t *testing.T, mod ...func(*Options)) *testEnv {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens := auth.NewHMAC(testSecret, "daybook")
	opts := Options{Verifier: tokens, Metrics: true}
	for _, m := range mod {
		m(&opts)
	}
	eng := engine.New(db, zerolog.Nop())
	return &testEnv{srv: New(db, eng, zerolog.Nop(), "test-version", opts), tokens: tokens}
}

// do sends a request as user; an empty user sends no token.
func (e *testEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if user != "" {
		token, err := e.tokens.Issue(user, time.Hour)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/api/health", "", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["version"] != "test-version" {
		t.Errorf("version = %v, want test-version", body["version"])
	}
	if body["db"] != true {
		t.Errorf("db = %v, want true", body["db"])
	}
	if body["idempotency"] != false {
		t.Errorf("idempotency = %v, want false without a replay store", body["idempotency"])
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/api/health", "", "")
	if w.Header().Get("Request-Id") == "" {
		t.Error("expected Request-Id response header")
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := testServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{"POST", "/api/activity/new"},
		{"PATCH", "/api/activity/edit"},
		{"DELETE", "/api/activity/delete"},
		{"GET", "/api/activity/day?year=2024&month=3&day=9"},
		{"GET", "/api/activity/range?from=2024-03-01&to=2024-03-09"},
		{"GET", "/api/user"},
	}
	for _, rt := range routes {
		w := env.do(t, rt.method, rt.path, "", "{}")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d, want %d", rt.method, rt.path, w.Code, http.StatusUnauthorized)
			continue
		}
		if code := decodeBody(t, w)["code"]; code != "unauthorized" {
			t.Errorf("%s %s: code = %v, want unauthorized", rt.method, rt.path, code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := testServer(t)
	env.do(t, "GET", "/api/health", "", "")

	w := env.do(t, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "daybook_http_requests_total") {
		t.Error("expected daybook_http_requests_total in metrics output")
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := testServer(t, func(o *Options) { o.Metrics = false })
	w := env.do(t, "GET", "/metrics", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := testServer(t)
	w := env.do(t, "GET", "/api/nope", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if code := decodeBody(t, w)["code"]; code != "not_found" {
		t.Errorf("code = %v, want not_found", code)
	}
}

func TestRateLimited(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, time.Minute)
	t.Cleanup(limiter.Close)
	env := testServer(t, func(o *Options) { o.Limiter = limiter })

	for i := 0; i < 2; i++ {
		if w := env.do(t, "GET", "/api/user", "alice", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	w := env.do(t, "GET", "/api/user", "alice", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w := env.do(t, "GET", "/api/user", "bob", ""); w.Code != http.StatusOK {
		t.Errorf("other user: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRecovererWritesEnvelope(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeBody(t, w)
	if body["message"] != internalMessage || body["code"] != "internal" {
		t.Errorf("body = %v", body)
	}
}
