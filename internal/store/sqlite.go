// ABOUTME: SQLite implementation of the IdentityStore interface using modernc.org/sqlite
// ABOUTME: Provides identity/OTP/permission persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the IdentityStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: SQLite allows one writer, and this keeps the
	// per-connection pragmas below in effect for every statement
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			otp        TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_identities_email ON identities(email);

		CREATE TABLE IF NOT EXISTS identity_permissions (
			identity_id TEXT NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			permission  TEXT NOT NULL,

			PRIMARY KEY (identity_id, permission)
		);

		CREATE INDEX IF NOT EXISTS idx_permissions_identity ON identity_permissions(identity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateIdentity inserts a new identity with its permission set.
// Returns ErrDuplicateIdentity if the email is already provisioned.
func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, email, otp, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		identity.ID,
		identity.Email,
		nullString(identity.OTP),
		identity.CreatedAt.UTC().Format(time.RFC3339),
		identity.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateIdentity
		}
		return fmt.Errorf("inserting identity: %w", err)
	}

	if err := insertPermissions(ctx, tx, identity.ID, identity.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing identity: %w", err)
	}

	s.logger.Debug("created identity", "id", identity.ID, "email", identity.Email)
	return nil
}

// insertPermissions inserts the permission set for an identity.
// INSERT OR IGNORE collapses duplicates in the input.
func insertPermissions(ctx context.Context, tx *sql.Tx, identityID string, permissions []string) error {
	for _, perm := range permissions {
		if perm == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO identity_permissions (identity_id, permission)
			VALUES (?, ?)
		`, identityID, perm); err != nil {
			return fmt.Errorf("inserting permission %q: %w", perm, err)
		}
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// FindByEmail retrieves an identity and its permission set by email.
// Returns ErrNotFound if no identity exists for the address.
func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	query := `
		SELECT id, email, otp, created_at, updated_at
		FROM identities
		WHERE email = ?
	`

	var identity Identity
	var otp sql.NullString
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&identity.ID,
		&identity.Email,
		&otp,
		&createdAtStr,
		&updatedAtStr,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying identity: %w", err)
	}

	if otp.Valid {
		identity.OTP = otp.String
	}

	identity.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	identity.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	identity.Permissions, err = s.loadPermissions(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	return &identity, nil
}

// loadPermissions returns the sorted permission set for an identity
func (s *SQLiteStore) loadPermissions(ctx context.Context, identityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission FROM identity_permissions
		WHERE identity_id = ?
		ORDER BY permission
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("querying permissions: %w", err)
	}
	defer rows.Close()

	var permissions []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("scanning permission row: %w", err)
		}
		permissions = append(permissions, perm)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating permission rows: %w", err)
	}

	return permissions, nil
}

// Save updates an existing identity's OTP and replaces its permission set.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStore) Save(ctx context.Context, identity *Identity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE identities
		SET otp = ?, updated_at = ?
		WHERE id = ?
	`,
		nullString(identity.OTP),
		time.Now().UTC().Format(time.RFC3339),
		identity.ID,
	)
	if err != nil {
		return fmt.Errorf("updating identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM identity_permissions WHERE identity_id = ?
	`, identity.ID); err != nil {
		return fmt.Errorf("clearing permissions: %w", err)
	}

	if err := insertPermissions(ctx, tx, identity.ID, identity.Permissions); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing identity: %w", err)
	}

	s.logger.Debug("saved identity", "id", identity.ID, "email", identity.Email)
	return nil
}

// SetOTP stores a pending OTP against an identity, overwriting any prior one.
// Returns ErrNotFound if the identity doesn't exist.
func (s *SQLiteStore) SetOTP(ctx context.Context, email, otp string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET otp = ?, updated_at = ?
		WHERE email = ?
	`, otp, time.Now().UTC().Format(time.RFC3339), email)
	if err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("stored otp", "email", email)
	return nil
}

// RedeemOTP atomically clears the stored OTP if it exactly matches the
// supplied value. The guarded UPDATE is the single-use enforcement point:
// of two concurrent redemptions with the same value, only one statement
// can match the row before the value is cleared.
func (s *SQLiteStore) RedeemOTP(ctx context.Context, email, otp string) (bool, error) {
	if otp == "" {
		// An identity with no pending challenge stores NULL; never let an
		// empty submission match it.
		return false, nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE identities
		SET otp = NULL, updated_at = ?
		WHERE email = ? AND otp = ?
	`, time.Now().UTC().Format(time.RFC3339), email, otp)
	if err != nil {
		return false, fmt.Errorf("redeeming otp: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return false, nil
	}

	s.logger.Debug("redeemed otp", "email", email)
	return true, nil
}

// DeleteIdentity removes an identity by email; permission rows go with it
// via the foreign key cascade. Returns ErrNotFound if no identity exists.
func (s *SQLiteStore) DeleteIdentity(ctx context.Context, email string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM identities WHERE email = ?
	`, email)
	if err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted identity", "email", email)
	return nil
}

// ListIdentities returns all identities with their permission sets,
// ordered by email.
func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]*Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, otp, created_at, updated_at
		FROM identities
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var identities []*Identity
	for rows.Next() {
		var identity Identity
		var otp sql.NullString
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&identity.ID, &identity.Email, &otp, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}

		if otp.Valid {
			identity.OTP = otp.String
		}
		identity.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		identity.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}

		identities = append(identities, &identity)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identity rows: %w", err)
	}

	for _, identity := range identities {
		identity.Permissions, err = s.loadPermissions(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
	}

	return identities, nil
}

// Ensure SQLiteStore implements IdentityStore interface
var _ IdentityStore = (*SQLiteStore)(nil)
