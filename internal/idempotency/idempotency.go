// Package idempotency replays the stored response of a mutating request when
// a client retries it with the same Idempotency-Key.
package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lazypower/daybook/internal/auth"
)

// Header is the request header carrying the client's key.
const Header = "Idempotency-Key"

// ReplayedHeader marks a response served from the store.
const ReplayedHeader = "Idempotent-Replayed"

// MaxKeyLen bounds the accepted key length.
const MaxKeyLen = 255

const (
	statePending = "pending"
	stateDone    = "done"
)

// record is what one key stores.
type record struct {
	State       string `json:"state"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Store keeps responses in Redis, scoped per user and key.
type Store struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

// NewStore connects to redisURL. Responses are kept for ttl.
func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewStoreWithClient(client, ttl), nil
}

// NewStoreWithClient creates a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client:  client,
		prefix:  "idem:",
		ttl:     ttl,
		lockTTL: time.Minute,
	}
}

func (s *Store) key(userID, key string) string {
	return s.prefix + userID + ":" + key
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

// claim marks key as in flight. It returns the existing record, or nil when
// the caller now owns the key.
func (s *Store) claim(ctx context.Context, k string, r *http.Request) (*record, error) {
	pending, err := json.Marshal(record{State: statePending, Method: r.Method, Path: r.URL.Path})
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, k, pending, s.lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; treat as still in flight.
		return &record{State: statePending, Method: r.Method, Path: r.URL.Path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

func (s *Store) save(ctx context.Context, k string, rec record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, k, raw, s.ttl).Err()
}

func (s *Store) release(ctx context.Context, k string) error {
	return s.client.Del(ctx, k).Err()
}

// Middleware applies to authenticated POST, PATCH and DELETE requests that
// carry an Idempotency-Key. Completed responses below 500 are stored and
// replayed; a duplicate arriving while the first is running gets 409. Redis
// failures degrade to plain pass-through.
func (s *Store) Middleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(Header)
			userID, authed := auth.UserIDFromContext(r.Context())
			if key == "" || !authed || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > MaxKeyLen {
				writeError(w, http.StatusBadRequest, "validation",
					fmt.Sprintf("%s must be at most %d characters", Header, MaxKeyLen))
				return
			}

			k := s.key(userID, key)
			existing, err := s.claim(r.Context(), k, r)
			if err != nil {
				log.Warn().Err(err).Msg("idempotency store unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if existing != nil {
				s.replay(w, r, existing)
				return
			}

			var buf bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&buf)
			next.ServeHTTP(ww, r)

			// The request context may already be cancelled by now.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError {
				if err := s.release(ctx, k); err != nil {
					log.Warn().Err(err).Msg("release idempotency key")
				}
				return
			}
			err = s.save(ctx, k, record{
				State:       stateDone,
				Method:      r.Method,
				Path:        r.URL.Path,
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        buf.Bytes(),
			})
			if err != nil {
				log.Warn().Err(err).Msg("store idempotent response")
			}
		})
	}
}

func (s *Store) replay(w http.ResponseWriter, r *http.Request, rec *record) {
	if rec.Method != r.Method || rec.Path != r.URL.Path {
		writeError(w, http.StatusBadRequest, "validation",
			fmt.Sprintf("%s was already used for a different request", Header))
		return
	}
	if rec.State != stateDone {
		writeError(w, http.StatusConflict, "conflict", "a request with this key is still in progress")
		return
	}
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(rec.Status)
	w.Write(rec.Body)
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": msg, "code": code})
}
