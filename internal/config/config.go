// ABOUTME: Configuration loading and parsing for authgate
// ABOUTME: Supports YAML files with environment variable expansion and startup validation

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Algorithms accepted for token signing. The algorithm is fixed configuration;
// it is never read from an incoming token.
var allowedAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Config represents the complete authgate configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Mail     MailConfig     `yaml:"mail"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds token signing configuration.
// TokenTTL is derived from TokenTTLMillis at load time.
type AuthConfig struct {
	JWTSecret      string   `yaml:"jwt_secret"`
	JWTAlgorithm   string   `yaml:"jwt_algorithm"`
	TokenTTLMillis int64    `yaml:"token_ttl_ms"`
	PublicPrefixes []string `yaml:"public_prefixes"`

	TokenTTL time.Duration `yaml:"-"`
}

// MailConfig holds outbound SMTP configuration for OTP delivery.
// When disabled, OTP codes are written to the log instead of sent.
type MailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultPublicPrefixes are the route prefixes that bypass authentication
// when none are configured.
var DefaultPublicPrefixes = []string{"/auth/", "/health"}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Validation failures are fatal: the process must not start serving with a
// missing signing secret, an unknown algorithm, or a non-positive token TTL.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.Auth.TokenTTL = time.Duration(cfg.Auth.TokenTTLMillis) * time.Millisecond
	if len(cfg.Auth.PublicPrefixes) == 0 {
		cfg.Auth.PublicPrefixes = DefaultPublicPrefixes
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if !allowedAlgorithms[c.Auth.JWTAlgorithm] {
		return fmt.Errorf("auth.jwt_algorithm must be one of HS256, HS384, HS512 (got %q)", c.Auth.JWTAlgorithm)
	}

	if c.Auth.TokenTTLMillis <= 0 {
		return fmt.Errorf("auth.token_ttl_ms must be positive (got %d)", c.Auth.TokenTTLMillis)
	}

	if c.Mail.Enabled {
		if c.Mail.Host == "" {
			return fmt.Errorf("mail.host is required when mail is enabled")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from is required when mail is enabled")
		}
	}

	return nil
}
