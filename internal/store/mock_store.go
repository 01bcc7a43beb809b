// ABOUTME: Mock IdentityStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory IdentityStore implementation for testing.
// RedeemOTP performs its compare-and-clear under the store mutex, matching
// the atomicity guarantee of the SQLite guarded UPDATE.
type MockStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity // keyed by email

	// FailSave forces Save/SetOTP to return this error when set.
	FailSave error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		identities: make(map[string]*Identity),
	}
}

// CreateIdentity stores a new identity.
func (m *MockStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[identity.Email]; ok {
		return ErrDuplicateIdentity
	}

	// Make a copy to avoid external modification
	i := *identity
	i.Permissions = append([]string(nil), identity.Permissions...)
	m.identities[i.Email] = &i
	return nil
}

// FindByEmail retrieves an identity by email.
func (m *MockStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identity, ok := m.identities[email]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	i := *identity
	i.Permissions = append([]string(nil), identity.Permissions...)
	return &i, nil
}

// Save updates an existing identity.
func (m *MockStore) Save(ctx context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}

	existing, ok := m.identities[identity.Email]
	if !ok {
		return ErrNotFound
	}

	existing.OTP = identity.OTP
	existing.Permissions = append([]string(nil), identity.Permissions...)
	return nil
}

// SetOTP stores a pending OTP, overwriting any prior one.
func (m *MockStore) SetOTP(ctx context.Context, email, otp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}

	identity, ok := m.identities[email]
	if !ok {
		return ErrNotFound
	}

	identity.OTP = otp
	return nil
}

// RedeemOTP clears the stored OTP if it matches the supplied value.
func (m *MockStore) RedeemOTP(ctx context.Context, email, otp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	identity, ok := m.identities[email]
	if !ok {
		return false, nil
	}

	if otp == "" || identity.OTP != otp {
		return false, nil
	}

	identity.OTP = ""
	return true, nil
}

// DeleteIdentity removes an identity by email.
func (m *MockStore) DeleteIdentity(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.identities[email]; !ok {
		return ErrNotFound
	}
	delete(m.identities, email)
	return nil
}

// ListIdentities returns all identities.
func (m *MockStore) ListIdentities(ctx context.Context) ([]*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	identities := make([]*Identity, 0, len(m.identities))
	for _, identity := range m.identities {
		i := *identity
		i.Permissions = append([]string(nil), identity.Permissions...)
		identities = append(identities, &i)
	}
	return identities, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements IdentityStore interface
var _ IdentityStore = (*MockStore)(nil)
