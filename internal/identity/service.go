// internal/identity/service.go
package identity

import (
	"context"

	"github.com/google/uuid"
)

// Mailer delivers one-time codes. Delivery is an external collaborator;
// the service only formats what to send.
type Mailer interface {
	SendOTP(ctx context.Context, email, code string, purpose OTPPurpose) error
}

// UpdateUserInput patches the mutable user fields. Nil means "leave as
// is"; role changes are gated to administrators at the handler.
type UpdateUserInput struct {
	FullName *string
	Role     *Role
}

// Service manages users, credentials and one-time codes.
type Service interface {
	// CreateUser registers a user without a password and issues a
	// PASSWORD_SETUP code through the mailer. Administrator operation.
	CreateUser(ctx context.Context, email, fullName string, role Role) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, role Role) ([]*User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*User, error)
	UserStats(ctx context.Context) (*UserStats, error)
	MemberExists(ctx context.Context, id uuid.UUID) (bool, error)

	// Login verifies credentials and returns the user plus a signed token.
	Login(ctx context.Context, email, password string) (*User, string, error)
	// RequestPasswordReset issues a PASSWORD_RESET code for the account.
	RequestPasswordReset(ctx context.Context, email string) error
	// SetPassword consumes a valid code and stores the new password hash.
	SetPassword(ctx context.Context, email, code, newPassword string) error
	// ChangePassword replaces an authenticated user's password after
	// verifying the current one.
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	// ResendSetupCode reissues the PASSWORD_SETUP code for an account
	// that has not completed its first login. Administrator operation.
	ResendSetupCode(ctx context.Context, id uuid.UUID) error

	// VerifyToken parses a bearer token back into an actor.
	VerifyToken(token string) (Actor, error)
}
