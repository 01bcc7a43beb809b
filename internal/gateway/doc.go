// ABOUTME: Package documentation for the gateway
// ABOUTME: Describes the HTTP surface and route protection model

// Package gateway assembles the auth gateway's HTTP server.
//
// The surface splits into public and gated routes. Public routes are
// the OTP login endpoints under /auth/ plus the health probes; gated
// routes sit under /api/ and pass through bearer-token authentication
// followed by an optional per-route permission check. The /metrics
// scrape endpoint is registered when metrics are enabled in
// configuration.
//
// Run serves until the context is canceled, then drains in-flight
// requests and closes the identity store.
package gateway
