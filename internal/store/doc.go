// Package store provides persistence for identity records.
//
// An Identity is an email address with an optional pending OTP and a set of
// permission names. Identities are provisioned out-of-band (the seed command)
// and mutated only through OTP issuance and redemption.
//
// Two implementations exist:
//
//   - SQLiteStore: production storage using modernc.org/sqlite
//   - MockStore: in-memory implementation for tests
//
// The single-use guarantee for OTP redemption lives here: RedeemOTP clears
// the stored value only when it exactly matches the submission, atomically,
// so concurrent redemptions of the same code produce exactly one winner.
package store
