// internal/identity/otp.go
package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	otpDigits      = 6
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
)

// generateOTPCode draws a 6-digit code from crypto/rand, zero-padded.
func generateOTPCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}

// isExpired reports whether the code is past its expiry at the given time.
func (o *OTP) isExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// canAttempt reports whether the code has attempt budget left.
func (o *OTP) canAttempt() bool {
	return o.Attempts < o.MaxAttempts
}

// checkConsumable validates the code's state before a verification attempt.
func (o *OTP) checkConsumable(now time.Time) error {
	if o.Status != OTPPending {
		return ErrOTPNotFound
	}
	if o.isExpired(now) {
		return ErrOTPExpired
	}
	if !o.canAttempt() {
		return ErrOTPAttemptsUsed
	}
	return nil
}
