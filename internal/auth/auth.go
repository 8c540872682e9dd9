// Package auth resolves the caller's user id from a bearer token. Tokens are
// either HMAC-signed JWTs issued by daybook itself or OIDC ID tokens from an
// external provider; in both cases the subject claim is the user id.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier checks a raw bearer token and returns the user id it names.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// HMAC issues and verifies HS256 tokens signed with a shared secret.
type HMAC struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewHMAC(secret, issuer string) *HMAC {
	return &HMAC{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs a token for userID. A zero ttl issues a token without expiry.
func (h *HMAC) Issue(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := h.now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		Issuer:   h.issuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
}

func (h *HMAC) Verify(_ context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return h.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(h.issuer),
		jwt.WithTimeFunc(h.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// OIDC verifies ID tokens from an OpenID Connect provider.
type OIDC struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDC discovers the provider at issuerURL and verifies tokens minted for clientID.
func NewOIDC(ctx context.Context, issuerURL, clientID string) (*OIDC, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider %s: %w", issuerURL, err)
	}
	return &OIDC{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewOIDCWithKeys verifies tokens against a fixed key set, without discovery.
func NewOIDCWithKeys(issuerURL, clientID string, keys oidc.KeySet, now func() time.Time) *OIDC {
	return &OIDC{verifier: oidc.NewVerifier(issuerURL, keys, &oidc.Config{ClientID: clientID, Now: now})}
}

func (o *OIDC) Verify(ctx context.Context, token string) (string, error) {
	idToken, err := o.verifier.Verify(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if idToken.Subject == "" {
		return "", ErrInvalidToken
	}
	return idToken.Subject, nil
}

// Chain accepts a token when any of its verifiers does.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (string, error) {
	err := ErrInvalidToken
	for _, v := range c {
		id, verr := v.Verify(ctx, token)
		if verr == nil {
			return id, nil
		}
		err = verr
	}
	return "", err
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// verified user id in the request context.
func Middleware(v Verifier, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := BearerToken(r)
			if err == nil {
				var userID string
				if userID, err = v.Verify(r.Context(), token); err == nil {
					next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
					return
				}
			}
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected request")
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"message": "authentication required",
		"code":    "unauthorized",
	})
}
