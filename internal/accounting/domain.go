// internal/accounting/domain.go
package accounting

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the side of a cash movement against an account.
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountLocked   = errors.New("account is locked")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidType     = errors.New("transaction type must be debit or credit")
)

// Account is a named savings account held by a member. A locked account
// rejects new transactions but keeps its history queryable.
type Account struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	AccountHolder uuid.UUID `json:"account_holder"`
	IsLocked      bool      `json:"is_locked"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Transaction is one immutable ledger entry. Credits raise the account
// balance, debits lower it.
type Transaction struct {
	ID              uuid.UUID       `json:"id"`
	AccountID       uuid.UUID       `json:"account_id"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	Comment         string          `json:"comment"`
	EnteredBy       uuid.UUID       `json:"entered_by"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// AccountSummary aggregates an account's ledger per side.
type AccountSummary struct {
	AccountID        uuid.UUID       `json:"account_id"`
	Balance          decimal.Decimal `json:"balance"`
	TotalCredits     decimal.Decimal `json:"total_credits"`
	TotalDebits      decimal.Decimal `json:"total_debits"`
	CreditCount      int             `json:"credit_count"`
	DebitCount       int             `json:"debit_count"`
	LastTransaction  *time.Time      `json:"last_transaction,omitempty"`
	FirstTransaction *time.Time      `json:"first_transaction,omitempty"`
}
