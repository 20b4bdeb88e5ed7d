// internal/identity/domain.go
package identity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role gates who may create loans, accounts and record payments.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordNotSet     = errors.New("password not set for this account")
	ErrRateLimited        = errors.New("rate limit exceeded")
	ErrOTPNotFound        = errors.New("no valid code found")
	ErrOTPExpired         = errors.New("code has expired")
	ErrOTPInvalid         = errors.New("invalid code")
	ErrOTPAttemptsUsed    = errors.New("too many attempts for this code")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrInvalidRole        = errors.New("unknown role")
)

// User is an authenticated actor: a staff administrator or an organization
// member.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	LastLogin    time.Time `json:"last_login,omitempty"`
	IsFirstLogin bool      `json:"is_first_login"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OTPPurpose says what a one-time code is allowed to unlock.
type OTPPurpose string

const (
	OTPPasswordSetup OTPPurpose = "PASSWORD_SETUP"
	OTPPasswordReset OTPPurpose = "PASSWORD_RESET"
)

// OTPStatus tracks a code through its lifecycle.
type OTPStatus string

const (
	OTPPending OTPStatus = "PENDING"
	OTPUsed    OTPStatus = "USED"
	OTPExpired OTPStatus = "EXPIRED"
)

// OTP is a short-lived 6-digit code delivered out of band. A code is
// consumable while it is PENDING, unexpired and under its attempt budget.
type OTP struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Code        string     `json:"-"`
	Purpose     OTPPurpose `json:"purpose"`
	Status      OTPStatus  `json:"status"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// UserStats is the operator's view of the user base.
type UserStats struct {
	TotalUsers          int `json:"total_users"`
	AdminCount          int `json:"admin_count"`
	MemberCount         int `json:"member_count"`
	PendingFirstLogin   int `json:"pending_first_login"`
	RecentRegistrations int `json:"recent_registrations"`
}

// Actor is the authenticated identity attached to a request.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsAdmin reports whether the actor may perform administrator operations.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
