// internal/identity/mailer.go
package identity

import (
	"context"
	"log"
)

// LogMailer writes codes to the process log instead of delivering mail.
// Deployments substitute a real delivery channel behind the Mailer
// interface.
type LogMailer struct{}

func (LogMailer) SendOTP(ctx context.Context, email, code string, purpose OTPPurpose) error {
	log.Printf("OTP for %s (%s): %s", email, purpose, code)
	return nil
}
