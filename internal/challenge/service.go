// ABOUTME: Challenge service orchestrating OTP issuance and redemption
// ABOUTME: Looks up identities, delivers passcodes, and mints bearer tokens

package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sunware/authgate/internal/auth"
	"github.com/sunware/authgate/internal/store"
)

var (
	// ErrUnknownIdentity is returned when no identity exists for the
	// requested email address.
	ErrUnknownIdentity = errors.New("unknown identity")

	// ErrInvalidChallenge is returned when a presented passcode does not
	// match the pending challenge, has already been used, or no challenge
	// is pending.
	ErrInvalidChallenge = errors.New("invalid or expired OTP")

	// ErrDelivery is returned when a passcode was stored but could not be
	// sent to the identity's email address.
	ErrDelivery = errors.New("otp delivery failed")
)

// Deliverer sends an issued passcode to the identity's email address.
type Deliverer interface {
	SendOTP(ctx context.Context, email, otp string) error
}

// Recorder receives challenge lifecycle events for metrics.
type Recorder interface {
	RecordOTPRequested()
	RecordOTPDeliveryFailed()
	RecordOTPRedemption(success bool)
}

// Service owns the challenge lifecycle: issuing a passcode for a known
// identity and exchanging a valid passcode for a bearer token.
type Service struct {
	store     store.IdentityStore
	deliverer Deliverer
	issuer    auth.TokenIssuer
	logger    *slog.Logger
	recorder  Recorder
}

// NewService builds a challenge service. The recorder may be nil when
// metrics are disabled.
func NewService(st store.IdentityStore, deliverer Deliverer, issuer auth.TokenIssuer, logger *slog.Logger, recorder Recorder) *Service {
	return &Service{
		store:     st,
		deliverer: deliverer,
		issuer:    issuer,
		logger:    logger.With("component", "challenge"),
		recorder:  recorder,
	}
}

// RequestChallenge generates a passcode for the identity registered under
// email, stores it as the pending challenge, and delivers it. A newly
// generated passcode replaces any prior pending one. If delivery fails the
// stored passcode is left in place so a retry can supersede it.
func (s *Service) RequestChallenge(ctx context.Context, email string) error {
	if _, err := s.store.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnknownIdentity
		}
		return fmt.Errorf("looking up identity: %w", err)
	}

	otp, err := generateOTP()
	if err != nil {
		return fmt.Errorf("generating otp: %w", err)
	}

	if err := s.store.SetOTP(ctx, email, otp); err != nil {
		return fmt.Errorf("storing otp: %w", err)
	}
	if s.recorder != nil {
		s.recorder.RecordOTPRequested()
	}

	if err := s.deliverer.SendOTP(ctx, email, otp); err != nil {
		s.logger.Error("otp delivery failed", "email", email, "error", err)
		if s.recorder != nil {
			s.recorder.RecordOTPDeliveryFailed()
		}
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	s.logger.Info("otp issued", "email", email)
	return nil
}

// RedeemChallenge exchanges a pending passcode for a signed bearer token.
// The passcode is cleared atomically on match, so a given passcode can be
// redeemed at most once. The token carries the identity's current
// permission set.
func (s *Service) RedeemChallenge(ctx context.Context, email, otp string) (string, error) {
	if _, err := s.store.FindByEmail(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUnknownIdentity
		}
		return "", fmt.Errorf("looking up identity: %w", err)
	}

	matched, err := s.store.RedeemOTP(ctx, email, otp)
	if err != nil {
		return "", fmt.Errorf("redeeming otp: %w", err)
	}
	if !matched {
		if s.recorder != nil {
			s.recorder.RecordOTPRedemption(false)
		}
		s.logger.Warn("otp redemption rejected", "email", email)
		return "", ErrInvalidChallenge
	}

	identity, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("loading identity after redemption: %w", err)
	}

	token, err := s.issuer.Issue(identity.Email, identity.Permissions)
	if err != nil {
		return "", fmt.Errorf("issuing token: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordOTPRedemption(true)
	}
	s.logger.Info("otp redeemed", "email", email)
	return token, nil
}
