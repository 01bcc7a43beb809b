// Package config handles configuration loading for authgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package validates signing configuration at load time: a missing secret,
// an unknown signing algorithm, or a non-positive token TTL is a fatal error,
// so a misconfigured process never starts serving.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AUTHGATE_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server and database:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "./authgate.db"
//
// Token signing (TTL in milliseconds):
//
//	auth:
//	  jwt_secret: "${AUTHGATE_JWT_SECRET}"
//	  jwt_algorithm: "HS256"
//	  token_ttl_ms: 3600000
//	  public_prefixes: ["/auth/", "/health"]
//
// Outbound OTP mail:
//
//	mail:
//	  enabled: true
//	  host: "smtp.example.com"
//	  port: 587
//	  username: "gateway"
//	  password: "${AUTHGATE_SMTP_PASSWORD}"
//	  from: "no-reply@example.com"
package config
