// ABOUTME: Store interface and data types for authgate persistence
// ABOUTME: Defines the Identity record and the IdentityStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateIdentity is returned when trying to create an identity whose email is taken
var ErrDuplicateIdentity = errors.New("identity already exists")

// Identity represents a provisioned identity record.
// At most one unconsumed OTP exists per identity; OTP is empty when no
// challenge is pending. Permissions are an unordered, deduplicated set of
// opaque capability names.
type Identity struct {
	ID          string
	Email       string
	OTP         string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IdentityStore defines the interface for identity persistence.
//
// RedeemOTP is the single mutation that must be atomic: it clears the stored
// OTP only if it exactly matches the supplied value, and reports whether the
// clear happened. Two concurrent redemptions of the same OTP see exactly one
// true result between them.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, identity *Identity) error
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	Save(ctx context.Context, identity *Identity) error
	SetOTP(ctx context.Context, email, otp string) error
	RedeemOTP(ctx context.Context, email, otp string) (bool, error)
	ListIdentities(ctx context.Context) ([]*Identity, error)
	DeleteIdentity(ctx context.Context, email string) error

	// Close releases any resources held by the store
	Close() error
}
