package idempotency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/daybook/internal/auth"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewStore("redis://"+mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

// counting returns a handler that answers status with a body carrying the
// call count.
func counting(status int, calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]int32{"call": n})
	})
}

func do(h http.Handler, method, path, user, key string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if key != "" {
		r.Header.Set(Header, key)
	}
	if user != "" {
		r = r.WithContext(auth.WithUserID(r.Context(), user))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestNewStoreBadURL(t *testing.T) {
	_, err := NewStore("not a url", time.Hour)
	assert.Error(t, err)
}

func TestReplaysCompletedResponse(t *testing.T) {
	s, _ := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusCreated, &calls))

	first := do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	second := do(h, http.MethodPost, "/api/activity/new", "u1", "k1")

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(ReplayedHeader))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
}

func TestKeysAreScopedPerUser(t *testing.T) {
	s, _ := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))

	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	do(h, http.MethodPost, "/api/activity/new", "u2", "k1")
	assert.EqualValues(t, 2, calls.Load())
}

func TestPassThrough(t *testing.T) {
	s, _ := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))

	do(h, http.MethodPost, "/api/activity/new", "u1", "")
	do(h, http.MethodPost, "/api/activity/new", "u1", "")
	do(h, http.MethodGet, "/api/user", "u1", "k1")
	do(h, http.MethodGet, "/api/user", "u1", "k1")
	do(h, http.MethodPost, "/api/activity/new", "", "k1")
	do(h, http.MethodPost, "/api/activity/new", "", "k1")
	assert.EqualValues(t, 6, calls.Load())
}

func TestServerErrorsAreNotStored(t *testing.T) {
	s, mr := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusInternalServerError, &calls))

	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	assert.False(t, mr.Exists(s.key("u1", "k1")))
	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	assert.EqualValues(t, 2, calls.Load())
}

func TestInFlightDuplicateConflicts(t *testing.T) {
	s, mr := setupTestStore(t)
	pending, err := json.Marshal(record{State: statePending, Method: http.MethodPost, Path: "/api/activity/new"})
	require.NoError(t, err)
	require.NoError(t, mr.Set(s.key("u1", "k1"), string(pending)))

	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))
	rec := do(h, http.MethodPost, "/api/activity/new", "u1", "k1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.EqualValues(t, 0, calls.Load())
}

func TestKeyReusedForDifferentRequest(t *testing.T) {
	s, _ := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))

	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	rec := do(h, http.MethodDelete, "/api/activity/delete", "u1", "k1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestStoredResponseExpires(t *testing.T) {
	s, mr := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))

	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	mr.FastForward(2 * time.Hour)
	do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	assert.EqualValues(t, 2, calls.Load())
}

func TestRedisDownPassesThrough(t *testing.T) {
	s, mr := setupTestStore(t)
	mr.Close()

	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))
	rec := do(h, http.MethodPost, "/api/activity/new", "u1", "k1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestOverlongKeyRejected(t *testing.T) {
	s, _ := setupTestStore(t)
	var calls atomic.Int32
	h := s.Middleware(zerolog.Nop())(counting(http.StatusOK, &calls))

	rec := do(h, http.MethodPost, "/api/activity/new", "u1", strings.Repeat("k", MaxKeyLen+1))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.EqualValues(t, 0, calls.Load())
}

func TestPing(t *testing.T) {
	s, _ := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
