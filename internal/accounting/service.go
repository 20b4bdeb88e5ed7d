// internal/accounting/service.go
package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordTransactionInput carries one ledger entry.
type RecordTransactionInput struct {
	AccountID       uuid.UUID
	Type            TransactionType
	Amount          decimal.Decimal
	Comment         string
	EnteredBy       uuid.UUID
	TransactionDate time.Time
}

// UpdateAccountInput patches the mutable account fields. Nil means "leave
// as is". Ledger entries stay immutable; only account metadata moves.
type UpdateAccountInput struct {
	Name          *string
	AccountHolder *uuid.UUID
	IsLocked      *bool
}

// Service manages savings accounts and their cash ledger.
type Service interface {
	CreateAccount(ctx context.Context, name string, holder uuid.UUID) (*Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	UpdateAccount(ctx context.Context, id uuid.UUID, in UpdateAccountInput) (*Account, error)
	SetAccountLock(ctx context.Context, id uuid.UUID, locked bool) (*Account, error)

	RecordTransaction(ctx context.Context, in RecordTransactionInput) (*Transaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, txType TransactionType, page, limit int) ([]*Transaction, int, error)
	AccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	AccountSummary(ctx context.Context, accountID uuid.UUID) (*AccountSummary, error)
}
