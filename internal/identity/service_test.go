// internal/identity/service_test.go
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ujjiboni/internal/postgres"
)

// setupTestDB attempts to connect to a PostgreSQL database for testing.
// It skips the test if the connection cannot be established.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	pgUser := os.Getenv("PGUSER")
	pgPassword := os.Getenv("PGPASSWORD")
	pgHost := os.Getenv("PGHOST")
	pgPort := os.Getenv("PGPORT")
	pgDB := os.Getenv("PGDATABASE")

	if pgUser == "" {
		pgUser = "user"
	}
	if pgPassword == "" {
		pgPassword = "password"
	}
	if pgHost == "" {
		pgHost = "localhost"
	}
	if pgPort == "" {
		pgPort = "5432"
	}
	if pgDB == "" {
		pgDB = "testdb"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pgHost, pgPort, pgUser, pgPassword, pgDB)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping database tests: could not connect to postgres: %v", err)
	}

	if err := postgres.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	_, err = db.Exec("TRUNCATE TABLE interest_payments, loan_payments, loans, transactions, accounts, otps, users CASCADE")
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}

	return db
}

// captureMailer records the last code it was asked to deliver.
type captureMailer struct {
	code    string
	purpose OTPPurpose
}

func (m *captureMailer) SendOTP(ctx context.Context, email, code string, purpose OTPPurpose) error {
	m.code = code
	m.purpose = purpose
	return nil
}

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	user, err := svc.CreateUser(ctx, "  Alice@Example.COM ", "Alice", RoleMember)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, RoleMember, user.Role)
	assert.True(t, user.IsFirstLogin)
	assert.Equal(t, OTPPasswordSetup, mailer.purpose)
	assert.Len(t, mailer.code, otpDigits)

	_, err = svc.CreateUser(ctx, "alice@example.com", "Alice Again", RoleMember)
	assert.ErrorIs(t, err, ErrEmailTaken)

	// Unknown roles fall back to member.
	user, err = svc.CreateUser(ctx, "bob@example.com", "Bob", "SUPERUSER")
	require.NoError(t, err)
	assert.Equal(t, RoleMember, user.Role)

	exists, err := svc.MemberExists(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSetPasswordAndLogin(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	user, err := svc.CreateUser(ctx, "carol@example.com", "Carol", RoleAdmin)
	require.NoError(t, err)

	// Login before the password is set fails distinctly.
	_, _, err = svc.Login(ctx, "carol@example.com", "whatever")
	assert.ErrorIs(t, err, ErrPasswordNotSet)

	// A wrong code burns an attempt but does not consume the OTP.
	err = svc.SetPassword(ctx, "carol@example.com", "000000", "s3cure-pass")
	if mailer.code == "000000" {
		t.Skip("generated code collided with the test's wrong guess")
	}
	assert.ErrorIs(t, err, ErrOTPInvalid)

	err = svc.SetPassword(ctx, "carol@example.com", mailer.code, "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	err = svc.SetPassword(ctx, "carol@example.com", mailer.code, "s3cure-pass")
	require.NoError(t, err)

	// The consumed code cannot be replayed.
	err = svc.SetPassword(ctx, "carol@example.com", mailer.code, "another-pass")
	assert.ErrorIs(t, err, ErrOTPNotFound)

	got, token, err := svc.Login(ctx, "carol@example.com", "s3cure-pass")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.False(t, got.IsFirstLogin)

	actor, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.ID)
	assert.True(t, actor.IsAdmin())

	_, _, err = svc.Login(ctx, "carol@example.com", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody@example.com", "s3cure-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasswordReset(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	_, err := svc.CreateUser(ctx, "dave@example.com", "Dave", RoleMember)
	require.NoError(t, err)

	setupCode := mailer.code
	require.NoError(t, svc.SetPassword(ctx, "dave@example.com", setupCode, "first-pass"))

	require.NoError(t, svc.RequestPasswordReset(ctx, "dave@example.com"))
	assert.Equal(t, OTPPasswordReset, mailer.purpose)

	require.NoError(t, svc.SetPassword(ctx, "dave@example.com", mailer.code, "second-pass"))

	_, _, err = svc.Login(ctx, "dave@example.com", "first-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "dave@example.com", "second-pass")
	assert.NoError(t, err)

	err = svc.RequestPasswordReset(ctx, "ghost@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestChangePassword(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	user, err := svc.CreateUser(ctx, "erin@example.com", "Erin", RoleMember)
	require.NoError(t, err)

	// Accounts without a stored password go through the OTP flow instead.
	err = svc.ChangePassword(ctx, user.ID, "anything", "brand-new-pass")
	assert.ErrorIs(t, err, ErrPasswordNotSet)

	require.NoError(t, svc.SetPassword(ctx, "erin@example.com", mailer.code, "first-pass"))

	err = svc.ChangePassword(ctx, user.ID, "not-the-password", "brand-new-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, user.ID, "first-pass", "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	require.NoError(t, svc.ChangePassword(ctx, user.ID, "first-pass", "brand-new-pass"))

	_, _, err = svc.Login(ctx, "erin@example.com", "first-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "erin@example.com", "brand-new-pass")
	assert.NoError(t, err)

	err = svc.ChangePassword(ctx, uuid.New(), "brand-new-pass", "whatever-pass")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateUser(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewService(db, &captureMailer{}, "test-secret", time.Hour)

	user, err := svc.CreateUser(ctx, "frank@example.com", "Frank", RoleMember)
	require.NoError(t, err)

	name := "  Franklin  "
	updated, err := svc.UpdateUser(ctx, user.ID, UpdateUserInput{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Franklin", updated.FullName)
	assert.Equal(t, RoleMember, updated.Role)

	role := RoleAdmin
	updated, err = svc.UpdateUser(ctx, user.ID, UpdateUserInput{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, updated.Role)
	assert.Equal(t, "Franklin", updated.FullName)

	// Blank names leave the stored name alone.
	blank := "   "
	updated, err = svc.UpdateUser(ctx, user.ID, UpdateUserInput{FullName: &blank})
	require.NoError(t, err)
	assert.Equal(t, "Franklin", updated.FullName)

	bogus := Role("SUPERUSER")
	_, err = svc.UpdateUser(ctx, user.ID, UpdateUserInput{Role: &bogus})
	assert.ErrorIs(t, err, ErrInvalidRole)

	_, err = svc.UpdateUser(ctx, uuid.New(), UpdateUserInput{FullName: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserStats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	_, err := svc.CreateUser(ctx, "admin@example.com", "Admin", RoleAdmin)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "m1@example.com", "Member One", RoleMember)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "m2@example.com", "Member Two", RoleMember)
	require.NoError(t, err)
	require.NoError(t, svc.SetPassword(ctx, "m2@example.com", mailer.code, "settled-pass"))

	stats, err := svc.UserStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 1, stats.AdminCount)
	assert.Equal(t, 2, stats.MemberCount)
	assert.Equal(t, 2, stats.PendingFirstLogin)
	assert.Equal(t, 3, stats.RecentRegistrations)
}

func TestResendSetupCode(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	mailer := &captureMailer{}
	svc := NewService(db, mailer, "test-secret", time.Hour)

	user, err := svc.CreateUser(ctx, "grace@example.com", "Grace", RoleMember)
	require.NoError(t, err)
	firstCode := mailer.code

	require.NoError(t, svc.ResendSetupCode(ctx, user.ID))
	assert.Equal(t, OTPPasswordSetup, mailer.purpose)

	// The original code was expired when the new one was issued.
	if firstCode != mailer.code {
		err = svc.SetPassword(ctx, "grace@example.com", firstCode, "settled-pass")
		assert.ErrorIs(t, err, ErrOTPInvalid)
	}
	require.NoError(t, svc.SetPassword(ctx, "grace@example.com", mailer.code, "settled-pass"))

	err = svc.ResendSetupCode(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	svc := NewService(db, &captureMailer{}, "test-secret", time.Hour)

	_, err := svc.CreateUser(ctx, "admin@example.com", "Admin", RoleAdmin)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, "member@example.com", "Member", RoleMember)
	require.NoError(t, err)

	all, err := svc.ListUsers(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	admins, err := svc.ListUsers(ctx, RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, RoleAdmin, admins[0].Role)
}
