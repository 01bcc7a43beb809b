// ABOUTME: Entry point for the authgate server
// ABOUTME: Subcommands for serving, config init, identity seeding, and health

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/sunware/authgate/internal/config"
	"github.com/sunware/authgate/internal/gateway"
	"github.com/sunware/authgate/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _   _                 _
  __ _ _   _| |_| |__   __ _  __ _| |_ ___
 / _' | | | | __| '_ \ / _' |/ _' | __/ _ \
| (_| | |_| | |_| | | | (_| | (_| | ||  __/
 \__,_|\__,_|\__|_| |_|\__, |\__,_|\__\___|
                       |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: AUTHGATE_CONFIG env var > XDG_CONFIG_HOME/authgate/gateway.yaml > ~/.config/authgate/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AUTHGATE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "authgate", "gateway.yaml")
}

// getDataPath returns the path to the authgate data directory.
// Priority: XDG_DATA_HOME/authgate > ~/.local/share/authgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "authgate")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: authgate <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                       Start the auth gateway")
		fmt.Println("  init                        Create a config file with a fresh JWT secret")
		fmt.Println("  seed --email E --permissions P1,P2")
		fmt.Println("                              Register an identity")
		fmt.Println("  seed --file identities.toml Register identities from a TOML fixture")
		fmt.Println("  seed --remove E             Remove an identity")
		fmt.Println("  seed --list                 List registered identities")
		fmt.Println("  health                      Check gateway health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "seed":
		err = runSeed(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Mail.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Mail:     %s:%d\n", cfg.Mail.Host, cfg.Mail.Port)
	} else {
		yellow := color.New(color.FgYellow)
		yellow.Print("    ▶ ")
		fmt.Println("Mail:     disabled (OTPs logged)")
	}
	fmt.Println()

	logger.Info("starting authgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// runInit writes a fresh config file with a random JWT secret. It
// refuses to overwrite an existing config.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "authgate.db")

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# authgate configuration
# Generated by authgate init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  jwt_algorithm: "HS256"
  token_ttl_ms: 3600000

mail:
  enabled: false

logging:
  level: "info"
  format: "text"
`, dbPath, jwtSecret)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	return nil
}

// seedFixture is the TOML layout accepted by `authgate seed --file`.
type seedFixture struct {
	Identities []seedIdentity `toml:"identity"`
}

type seedIdentity struct {
	Email       string   `toml:"email"`
	Permissions []string `toml:"permissions"`
}

// runSeed manages identities out of band: register from flags or a TOML
// fixture file, remove by email, or list what is registered.
func runSeed(ctx context.Context) error {
	var email, permissionList, fixturePath, removeEmail string
	var list bool
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		case arg == "--permissions":
			if i+1 >= len(args) {
				return fmt.Errorf("--permissions requires a value")
			}
			permissionList = args[i+1]
			i++
		case strings.HasPrefix(arg, "--permissions="):
			permissionList = strings.TrimPrefix(arg, "--permissions=")
		case arg == "--file":
			if i+1 >= len(args) {
				return fmt.Errorf("--file requires a value")
			}
			fixturePath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--file="):
			fixturePath = strings.TrimPrefix(arg, "--file=")
		case arg == "--remove":
			if i+1 >= len(args) {
				return fmt.Errorf("--remove requires a value")
			}
			removeEmail = args[i+1]
			i++
		case strings.HasPrefix(arg, "--remove="):
			removeEmail = strings.TrimPrefix(arg, "--remove=")
		case arg == "--list":
			list = true
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	var identities []seedIdentity
	switch {
	case list || removeEmail != "":
		if email != "" || permissionList != "" || fixturePath != "" {
			return fmt.Errorf("--list/--remove cannot be combined with registration flags")
		}
	case fixturePath != "":
		if email != "" || permissionList != "" {
			return fmt.Errorf("--file cannot be combined with --email/--permissions")
		}
		var fixture seedFixture
		if _, err := toml.DecodeFile(fixturePath, &fixture); err != nil {
			return fmt.Errorf("reading fixture: %w", err)
		}
		identities = fixture.Identities
	case email != "":
		var permissions []string
		for _, p := range strings.Split(permissionList, ",") {
			if p = strings.TrimSpace(p); p != "" {
				permissions = append(permissions, p)
			}
		}
		identities = []seedIdentity{{Email: email, Permissions: permissions}}
	default:
		return fmt.Errorf("one of --email, --file, --remove, or --list is required")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	if list {
		all, err := s.ListIdentities(ctx)
		if err != nil {
			return fmt.Errorf("listing identities: %w", err)
		}
		if len(all) == 0 {
			fmt.Println("No identities registered.")
			return nil
		}
		for _, id := range all {
			fmt.Printf("  %s  [%s]\n", id.Email, strings.Join(id.Permissions, ", "))
		}
		return nil
	}

	if removeEmail != "" {
		if err := s.DeleteIdentity(ctx, removeEmail); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no identity registered for %s", removeEmail)
			}
			return fmt.Errorf("removing identity: %w", err)
		}
		green.Printf("  ✓ Removed: %s\n", removeEmail)
		return nil
	}

	for _, id := range identities {
		if id.Email == "" {
			return fmt.Errorf("fixture entry missing email")
		}
		err := s.CreateIdentity(ctx, &store.Identity{
			ID:          uuid.New().String(),
			Email:       id.Email,
			Permissions: id.Permissions,
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		})
		switch {
		case errors.Is(err, store.ErrDuplicateIdentity):
			yellow.Printf("  - Skipped (exists): %s\n", id.Email)
		case err != nil:
			return fmt.Errorf("creating identity %s: %w", id.Email, err)
		default:
			green.Printf("  ✓ Registered: %s  [%s]\n", id.Email, strings.Join(id.Permissions, ", "))
		}
	}
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
