// internal/accounting/implementation.go
package accounting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface on top of Postgres.
type service struct {
	db     *sql.DB
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a new accounting service instance.
func NewService(db *sql.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("ujjiboni/accounting"),
		now:    time.Now,
	}
}

const accountColumns = `id, name, account_holder, is_locked, created_at, updated_at`

func scanAccount(row interface{ Scan(dest ...any) error }) (*Account, error) {
	a := &Account{}
	err := row.Scan(&a.ID, &a.Name, &a.AccountHolder, &a.IsLocked, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// CreateAccount opens a new unlocked account for a holder.
func (s *service) CreateAccount(ctx context.Context, name string, holder uuid.UUID) (*Account, error) {
	account := &Account{
		ID:            uuid.New(),
		Name:          name,
		AccountHolder: holder,
		CreatedAt:     s.now().UTC(),
		UpdatedAt:     s.now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, account_holder, is_locked, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
	`, account.ID, account.Name, account.AccountHolder, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return account, nil
}

// GetAccount retrieves an account by its ID.
func (s *service) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	account, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return account, nil
}

// ListAccounts returns every account, newest first.
func (s *service) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount patches an account's name, holder or lock flag.
func (s *service) UpdateAccount(ctx context.Context, id uuid.UUID, in UpdateAccountInput) (*Account, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != "" {
		account.Name = *in.Name
	}
	if in.AccountHolder != nil {
		account.AccountHolder = *in.AccountHolder
	}
	if in.IsLocked != nil {
		account.IsLocked = *in.IsLocked
	}
	account.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE accounts SET name = $1, account_holder = $2, is_locked = $3, updated_at = $4 WHERE id = $5
	`, account.Name, account.AccountHolder, account.IsLocked, account.UpdatedAt, account.ID)
	if err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}

	return account, nil
}

// SetAccountLock locks or unlocks an account.
func (s *service) SetAccountLock(ctx context.Context, id uuid.UUID, locked bool) (*Account, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	account.IsLocked = locked
	account.UpdatedAt = s.now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE accounts SET is_locked = $1, updated_at = $2 WHERE id = $3
	`, account.IsLocked, account.UpdatedAt, account.ID)
	if err != nil {
		return nil, fmt.Errorf("update account lock: %w", err)
	}

	return account, nil
}

// RecordTransaction appends one ledger entry. The lock check and the
// insert share a transaction with the account row locked, so locking an
// account cannot race an in-flight entry.
func (s *service) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "accounting.record_transaction",
		trace.WithAttributes(
			attribute.String("account.id", in.AccountID.String()),
			attribute.String("transaction.type", string(in.Type)),
		),
	)
	defer span.End()

	if in.Type != Debit && in.Type != Credit {
		return nil, ErrInvalidType
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if in.TransactionDate.IsZero() {
		in.TransactionDate = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	err = tx.QueryRowContext(ctx,
		`SELECT is_locked FROM accounts WHERE id = $1 FOR UPDATE`, in.AccountID).Scan(&locked)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}
	if locked {
		return nil, ErrAccountLocked
	}

	entry := &Transaction{
		ID:              uuid.New(),
		AccountID:       in.AccountID,
		Type:            in.Type,
		Amount:          in.Amount,
		Comment:         in.Comment,
		EnteredBy:       in.EnteredBy,
		TransactionDate: in.TransactionDate,
		CreatedAt:       s.now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, account_id, type, amount, comment, entered_by, transaction_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.Comment, entry.EnteredBy,
		entry.TransactionDate, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return entry, nil
}

// ListTransactions pages through an account's ledger, optionally filtered
// by side.
func (s *service) ListTransactions(ctx context.Context, accountID uuid.UUID, txType TransactionType, page, limit int) ([]*Transaction, int, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, 0, err
	}

	where := ` WHERE account_id = $1`
	args := []any{accountID}
	if txType != "" {
		where += ` AND type = $2`
		args = append(args, txType)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`
		SELECT id, account_id, type, amount, comment, entered_by, transaction_date, created_at
		FROM transactions%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var entries []*Transaction
	for rows.Next() {
		e := &Transaction{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.Comment, &e.EnteredBy,
			&e.TransactionDate, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan transaction: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transactions: %w", err)
	}

	return entries, total, nil
}

// AccountBalance computes credits minus debits in one grouped query.
func (s *service) AccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return decimal.Zero, err
	}

	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = $1 THEN amount ELSE -amount END), 0)
		FROM transactions
		WHERE account_id = $2
	`, Credit, accountID).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("compute balance: %w", err)
	}
	return balance, nil
}

// AccountSummary aggregates the account's ledger per side plus the balance.
func (s *service) AccountSummary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	summary := &AccountSummary{AccountID: accountID}
	var first, last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN type = $1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = $2 THEN amount ELSE 0 END), 0),
			COUNT(*) FILTER (WHERE type = $1),
			COUNT(*) FILTER (WHERE type = $2),
			MIN(transaction_date),
			MAX(transaction_date)
		FROM transactions
		WHERE account_id = $3
	`, Credit, Debit, accountID).Scan(
		&summary.TotalCredits,
		&summary.TotalDebits,
		&summary.CreditCount,
		&summary.DebitCount,
		&first,
		&last,
	)
	if err != nil {
		return nil, fmt.Errorf("account summary: %w", err)
	}

	summary.Balance = summary.TotalCredits.Sub(summary.TotalDebits)
	if first.Valid {
		summary.FirstTransaction = &first.Time
	}
	if last.Valid {
		summary.LastTransaction = &last.Time
	}
	return summary, nil
}
