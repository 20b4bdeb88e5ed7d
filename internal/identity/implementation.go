// internal/identity/implementation.go
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/time/rate"
)

// service implements the Service interface.
type service struct {
	db          *sql.DB
	mailer      Mailer
	tokens      *signer
	authLimiter *rate.Limiter
	now         func() time.Time
}

// NewService creates a new identity service instance. tokenSecret signs
// bearer tokens; tokenTTL bounds their lifetime.
func NewService(db *sql.DB, mailer Mailer, tokenSecret string, tokenTTL time.Duration) Service {
	return &service{
		db:          db,
		mailer:      mailer,
		tokens:      newSigner(tokenSecret, tokenTTL),
		authLimiter: rate.NewLimiter(rate.Every(time.Minute), 20),
		now:         time.Now,
	}
}

const userColumns = `id, email, full_name, role, last_login, is_first_login, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*User, error) {
	user := &User{}
	var lastLogin sql.NullTime
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Role,
		&lastLogin,
		&user.IsFirstLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLogin = lastLogin.Time
	}
	return user, nil
}

// CreateUser registers a user without credentials and issues a password
// setup code. The mailer failure is logged, not fatal: the operator can
// reissue the code.
func (s *service) CreateUser(ctx context.Context, email, fullName string, role Role) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if role != RoleAdmin && role != RoleMember {
		role = RoleMember
	}

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		IsFirstLogin: true,
		CreatedAt:    s.now().UTC(),
		UpdatedAt:    s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, role, is_first_login, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Email, user.FullName, user.Role, user.IsFirstLogin, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	if err := s.issueOTP(ctx, user, OTPPasswordSetup); err != nil {
		log.Printf("failed to issue setup code for %s: %v", user.Email, err)
	}

	return user, nil
}

// GetUser retrieves a user by ID.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by their (case-insensitive) email.
func (s *service) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// ListUsers returns users, optionally filtered by role.
func (s *service) ListUsers(ctx context.Context, role Role) ([]*User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role = $1`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateUser patches a user's name and role. Email is immutable after
// registration.
func (s *service) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FullName != nil && strings.TrimSpace(*in.FullName) != "" {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Role != nil {
		if *in.Role != RoleAdmin && *in.Role != RoleMember {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRole, *in.Role)
		}
		user.Role = *in.Role
	}
	user.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET full_name = $1, role = $2, updated_at = $3 WHERE id = $4
	`, user.FullName, user.Role, user.UpdatedAt, user.ID)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	return user, nil
}

// UserStats counts the user base per role plus pending first logins and
// registrations from the last 30 days.
func (s *service) UserStats(ctx context.Context) (*UserStats, error) {
	stats := &UserStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE role = $1),
			COUNT(*) FILTER (WHERE role = $2),
			COUNT(*) FILTER (WHERE is_first_login),
			COUNT(*) FILTER (WHERE created_at >= $3)
		FROM users
	`, RoleAdmin, RoleMember, s.now().UTC().AddDate(0, 0, -30)).Scan(
		&stats.TotalUsers,
		&stats.AdminCount,
		&stats.MemberCount,
		&stats.PendingFirstLogin,
		&stats.RecentRegistrations,
	)
	if err != nil {
		return nil, fmt.Errorf("user stats: %w", err)
	}
	return stats, nil
}

// MemberExists satisfies the lending book's member directory contract.
func (s *service) MemberExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return exists, nil
}

// Login verifies credentials, marks the login and returns a signed token.
func (s *service) Login(ctx context.Context, email, password string) (*User, string, error) {
	if !s.authLimiter.Allow() {
		return nil, "", ErrRateLimited
	}

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}

	var hash, salt sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT password_hash, salt FROM users WHERE id = $1`, user.ID).Scan(&hash, &salt)
	if err != nil {
		return nil, "", fmt.Errorf("load credentials: %w", err)
	}
	if !hash.Valid || hash.String == "" {
		return nil, "", ErrPasswordNotSet
	}

	ok, err := verifyPassword(password, salt.String, hash.String)
	if err != nil {
		return nil, "", fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, "", ErrInvalidCredentials
	}

	user.LastLogin = s.now().UTC()
	user.IsFirstLogin = false
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET last_login = $1, is_first_login = FALSE, updated_at = $1 WHERE id = $2
	`, user.LastLogin, user.ID)
	if err != nil {
		return nil, "", fmt.Errorf("mark login: %w", err)
	}

	token, err := s.tokens.Sign(user)
	if err != nil {
		return nil, "", fmt.Errorf("sign token: %w", err)
	}

	return user, token, nil
}

// RequestPasswordReset issues a reset code for the account.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	if !s.authLimiter.Allow() {
		return ErrRateLimited
	}

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	return s.issueOTP(ctx, user, OTPPasswordReset)
}

// issueOTP expires any pending codes for the same purpose, stores a fresh
// one and hands it to the mailer.
func (s *service) issueOTP(ctx context.Context, user *User, purpose OTPPurpose) error {
	code, err := generateOTPCode()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE otps SET status = $1 WHERE user_id = $2 AND purpose = $3 AND status = $4
	`, OTPExpired, user.ID, purpose, OTPPending)
	if err != nil {
		return fmt.Errorf("expire old codes: %w", err)
	}

	now := s.now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO otps (id, user_id, code, purpose, status, expires_at, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
	`, uuid.New(), user.ID, code, purpose, OTPPending, now.Add(otpTTL), otpMaxAttempts, now)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return s.mailer.SendOTP(ctx, user.Email, code, purpose)
}

// SetPassword consumes a pending code (either purpose) and stores the new
// password hash. Wrong codes burn an attempt.
func (s *service) SetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}

	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	otp := &OTP{}
	var usedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, code, purpose, status, expires_at, attempts, max_attempts, used_at, created_at
		FROM otps
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, user.ID, OTPPending).Scan(
		&otp.ID, &otp.UserID, &otp.Code, &otp.Purpose, &otp.Status,
		&otp.ExpiresAt, &otp.Attempts, &otp.MaxAttempts, &usedAt, &otp.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrOTPNotFound
		}
		return fmt.Errorf("load code: %w", err)
	}

	now := s.now().UTC()
	if err := otp.checkConsumable(now); err != nil {
		if err == ErrOTPExpired {
			tx.ExecContext(ctx, `UPDATE otps SET status = $1 WHERE id = $2`, OTPExpired, otp.ID)
			tx.Commit()
		}
		return err
	}

	if otp.Code != code {
		_, uerr := tx.ExecContext(ctx, `UPDATE otps SET attempts = attempts + 1 WHERE id = $1`, otp.ID)
		if uerr == nil {
			tx.Commit()
		}
		return ErrOTPInvalid
	}

	hash, salt, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE otps SET status = $1, used_at = $2 WHERE id = $3
	`, OTPUsed, now, otp.ID)
	if err != nil {
		return fmt.Errorf("consume code: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, salt = $2, is_first_login = FALSE, updated_at = $3 WHERE id = $4
	`, hash, salt, now, user.ID)
	if err != nil {
		return fmt.Errorf("store password: %w", err)
	}

	return tx.Commit()
}

// ChangePassword swaps an authenticated user's password after checking the
// current one. Users without a stored password go through the OTP flow
// instead.
func (s *service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}

	var hash, salt sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT password_hash, salt FROM users WHERE id = $1
	`, userID).Scan(&hash, &salt)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrUserNotFound
		}
		return fmt.Errorf("load credentials: %w", err)
	}
	if !hash.Valid || hash.String == "" {
		return ErrPasswordNotSet
	}
	ok, err := verifyPassword(currentPassword, salt.String, hash.String)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	newHash, newSalt, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, salt = $2, updated_at = $3 WHERE id = $4
	`, newHash, newSalt, s.now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	return nil
}

// ResendSetupCode reissues the password-setup code for a user who lost the
// original mail. Any pending code is expired first.
func (s *service) ResendSetupCode(ctx context.Context, id uuid.UUID) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.issueOTP(ctx, user, OTPPasswordSetup)
}

// VerifyToken parses a bearer token back into an actor.
func (s *service) VerifyToken(token string) (Actor, error) {
	return s.tokens.Verify(token)
}
