// ABOUTME: Package documentation for the challenge service
// ABOUTME: Describes the OTP request/redeem lifecycle

// Package challenge implements the email OTP login flow.
//
// A challenge begins with RequestChallenge: a 6-character alphanumeric
// passcode is generated, stored as the identity's single pending
// challenge, and delivered by email. Requesting again replaces the
// pending passcode, so only the most recent one is redeemable.
//
// RedeemChallenge exchanges a matching passcode for a signed bearer
// token. The match-and-clear happens atomically in the store, which
// makes every passcode single-use even under concurrent redemption
// attempts. The minted token carries the identity's permission set as
// it stands at redemption time.
package challenge
