// Package auth provides token issuance, verification, and the per-request
// authentication and authorization gates for authgate.
//
// # Tokens
//
// Tokens are HMAC-signed JWTs carrying the identity email as subject, a
// permission set, and issued-at/expiry timestamps. Expiry is always
// issued-at plus the configured TTL; there is no revocation list.
//
//	codec, err := NewJWTCodec(secret, "HS256", ttl)
//	token, err := codec.Issue("alice@x.com", []string{"read"})
//	subject, permissions, err := codec.Verify(token)
//
// The signing algorithm and secret are process-wide configuration validated
// once at startup. The alg header of an incoming token is never trusted, so
// a token cannot downgrade the verification method.
//
// # Request authentication
//
// HTTPAuthMiddleware wraps the protected handler chain. Public route
// prefixes pass through untouched; everything else needs a bearer token in
// the Authorization header. A missing or ill-formed header maps to 400, and
// every verification failure collapses to a generic 401 - the concrete
// reason (malformed, expired, bad claims) is logged, never returned.
//
// # Authorization
//
// RequirePermission attaches a declarative permission requirement to a
// handler and checks it by exact string membership against the principal's
// set. Handlers with no requirement accept any authenticated principal.
package auth
