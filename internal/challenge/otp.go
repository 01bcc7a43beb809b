// ABOUTME: One-time passcode generation for email challenges
// ABOUTME: Draws 6-character alphanumeric codes from crypto/rand

package challenge

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	otpLength  = 6
	otpCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// generateOTP returns a fresh 6-character alphanumeric passcode from a
// cryptographically secure random source.
func generateOTP() (string, error) {
	code := make([]byte, otpLength)
	max := big.NewInt(int64(len(otpCharset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("reading random source: %w", err)
		}
		code[i] = otpCharset[n.Int64()]
	}
	return string(code), nil
}
