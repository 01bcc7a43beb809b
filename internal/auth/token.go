// ABOUTME: JWT issuance and verification carrying subject and permission claims
// ABOUTME: Uses HMAC signing with algorithm and secret fixed by configuration

package auth

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrMalformedToken = errors.New("malformed token")
	ErrExpiredToken   = errors.New("token expired")
	ErrInvalidClaims  = errors.New("invalid claims")
)

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (subject string, permissions []string, err error)
}

// TokenIssuer defines the interface for token issuance
type TokenIssuer interface {
	Issue(subject string, permissions []string) (string, error)
}

// JWTCodec issues and verifies HMAC-signed JWTs embedding a permission set.
// The signing method and secret are fixed at construction; the alg header of
// an incoming token is never trusted.
type JWTCodec struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	ttl    time.Duration
}

// NewJWTCodec creates a codec for the given secret, algorithm name and token
// lifetime. It is the startup validation point: an empty secret, an unknown
// algorithm, or a non-positive TTL is rejected here, once, not per call.
func NewJWTCodec(secret, algorithm string, ttl time.Duration) (*JWTCodec, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is not set")
	}

	var method *jwt.SigningMethodHMAC
	switch algorithm {
	case "HS256":
		method = jwt.SigningMethodHS256
	case "HS384":
		method = jwt.SigningMethodHS384
	case "HS512":
		method = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	if ttl <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %v", ttl)
	}

	return &JWTCodec{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
	}, nil
}

// Issue creates a signed token for the subject embedding its permission set.
// Expiry is always issued-at plus the configured TTL.
func (c *JWTCodec) Issue(subject string, permissions []string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         subject,
		"permissions": dedupePermissions(permissions),
		"iat":         jwt.NewNumericDate(now),
		"exp":         jwt.NewNumericDate(now.Add(c.ttl)),
	}

	token := jwt.NewWithClaims(c.method, claims)
	return token.SignedString(c.secret)
}

// Verify validates the token and extracts the subject and permission set.
// Returns ErrExpiredToken past expiry, ErrInvalidClaims for a missing or
// ill-typed permissions claim or empty subject, and ErrMalformedToken for
// everything else that fails to parse or verify.
func (c *JWTCodec) Verify(tokenString string) (string, []string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// The accepted signing method comes from configuration, never from
		// the token header
		if token.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", nil, ErrExpiredToken
		}
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !token.Valid {
		return "", nil, ErrMalformedToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", nil, ErrMalformedToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", nil, fmt.Errorf("%w: missing subject", ErrInvalidClaims)
	}

	rawPerms, ok := claims["permissions"].([]interface{})
	if !ok {
		return "", nil, fmt.Errorf("%w: permissions claim is missing or not a list", ErrInvalidClaims)
	}

	permissions := make([]string, 0, len(rawPerms))
	for _, p := range rawPerms {
		s, ok := p.(string)
		if !ok {
			return "", nil, fmt.Errorf("%w: permissions must be strings", ErrInvalidClaims)
		}
		permissions = append(permissions, s)
	}

	return sub, dedupePermissions(permissions), nil
}

// dedupePermissions collapses duplicates and sorts the set so the wire
// encoding is deterministic. Order carries no meaning for authorization.
func dedupePermissions(permissions []string) []string {
	seen := make(map[string]bool, len(permissions))
	out := make([]string, 0, len(permissions))
	for _, p := range permissions {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Ensure JWTCodec implements both interfaces
var (
	_ TokenVerifier = (*JWTCodec)(nil)
	_ TokenIssuer   = (*JWTCodec)(nil)
)
