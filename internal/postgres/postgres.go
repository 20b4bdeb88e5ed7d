// internal/postgres/postgres.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres with sane pool limits and verifies the
// connection. The handle is constructed once and passed down; callers own
// its Close.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the tables the services expect. Idempotent.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	full_name TEXT NOT NULL,
	password_hash TEXT,
	salt TEXT,
	role TEXT NOT NULL,
	last_login TIMESTAMPTZ,
	is_first_login BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS otps (
	id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(id),
	code TEXT NOT NULL,
	purpose TEXT NOT NULL,
	status TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	max_attempts INT NOT NULL,
	used_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_otps_user ON otps (user_id, purpose, status);

CREATE TABLE IF NOT EXISTS accounts (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	account_holder UUID NOT NULL REFERENCES users(id),
	is_locked BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transactions (
	id UUID PRIMARY KEY,
	account_id UUID NOT NULL REFERENCES accounts(id),
	type TEXT NOT NULL CHECK (type IN ('debit', 'credit')),
	amount NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
	comment TEXT NOT NULL DEFAULT '',
	entered_by UUID NOT NULL,
	transaction_date TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (account_id, type);

CREATE TABLE IF NOT EXISTS loans (
	id UUID PRIMARY KEY,
	member_id UUID NOT NULL REFERENCES users(id),
	loan_number TEXT NOT NULL UNIQUE,
	loan_type TEXT NOT NULL,
	principal_amount NUMERIC(18, 2) NOT NULL CHECK (principal_amount > 0),
	monthly_interest_rate NUMERIC(10, 6) NOT NULL,
	status TEXT NOT NULL,
	notes TEXT,
	disbursement_month TEXT NOT NULL,
	interest_start_month TEXT,
	entered_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_loans_member_status ON loans (member_id, status);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans (status);

CREATE TABLE IF NOT EXISTS loan_payments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id),
	payment_date TIMESTAMPTZ NOT NULL,
	amount NUMERIC(18, 2) NOT NULL CHECK (amount > 0),
	entered_by UUID NOT NULL,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_loan_payments_loan ON loan_payments (loan_id, payment_date);

CREATE TABLE IF NOT EXISTS interest_payments (
	id UUID PRIMARY KEY,
	loan_id UUID NOT NULL REFERENCES loans(id),
	period TEXT NOT NULL,
	previous_interest_due NUMERIC(18, 2) NOT NULL CHECK (previous_interest_due >= 0),
	interest_amount NUMERIC(18, 2) NOT NULL CHECK (interest_amount >= 0),
	penalty_amount NUMERIC(18, 2) NOT NULL CHECK (penalty_amount >= 0),
	paid_amount NUMERIC(18, 2) NOT NULL CHECK (paid_amount >= 0),
	due_after_payment NUMERIC(18, 2) NOT NULL CHECK (due_after_payment >= 0),
	entered_by UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_interest_payments_loan ON interest_payments (loan_id);
`
