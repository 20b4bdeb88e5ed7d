// internal/lending/service.go
package lending

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemberDirectory is the identity collaborator: the lending book only needs
// to know whether a referenced member exists.
type MemberDirectory interface {
	MemberExists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CreateLoanInput carries a loan entry operation. MonthlyInterestRate is a
// decimal fraction (0.02 = 2% per month).
type CreateLoanInput struct {
	MemberID            uuid.UUID
	LoanType            LoanType
	PrincipalAmount     decimal.Decimal
	MonthlyInterestRate decimal.Decimal
	Notes               string
	DisbursementMonth   string
	InterestStartMonth  string
	EnteredBy           uuid.UUID
}

// RecordPaymentInput carries a principal repayment entry.
type RecordPaymentInput struct {
	LoanID      uuid.UUID
	PaymentDate time.Time
	Amount      decimal.Decimal
	Notes       string
	EnteredBy   uuid.UUID
}

// RecordInterestInput carries an interest payment entry for a period.
type RecordInterestInput struct {
	LoanID        uuid.UUID
	Period        string
	PaidAmount    decimal.Decimal
	PenaltyAmount decimal.Decimal
	EnteredBy     uuid.UUID
}

// UpdateLoanInput patches the mutable loan fields. Nil means "leave as is".
type UpdateLoanInput struct {
	Notes  *string
	Status *LoanStatus
}

// Service is the lending book: loan lifecycle, principal repayments,
// monthly interest accrual and portfolio statistics.
type Service interface {
	CreateLoan(ctx context.Context, in CreateLoanInput) (*Loan, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListLoans(ctx context.Context, f ListFilter) ([]*Loan, int, error)
	UpdateLoan(ctx context.Context, id uuid.UUID, in UpdateLoanInput) (*Loan, error)
	MemberLoans(ctx context.Context, memberID uuid.UUID) ([]*LoanDetail, error)

	OutstandingBalance(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
	RecordPayment(ctx context.Context, in RecordPaymentInput) (*Payment, bool, error)
	ListPayments(ctx context.Context, loanID uuid.UUID, page, limit int) ([]*Payment, int, error)
	PaymentSummary(ctx context.Context, loanID uuid.UUID) (*PaymentSummary, error)

	GenerateMonthlyInterest(ctx context.Context, loanID, enteredBy uuid.UUID) (*InterestPayment, error)
	RecordInterestPayment(ctx context.Context, in RecordInterestInput) (*InterestPayment, error)
	ListInterestPayments(ctx context.Context, loanID uuid.UUID) ([]*InterestPayment, *InterestSummary, error)
	MemberInterestPayments(ctx context.Context, memberID uuid.UUID, page, limit int) ([]*InterestPayment, int, error)
	GetInterestPayment(ctx context.Context, id uuid.UUID) (*InterestPayment, error)
	InterestSummary(ctx context.Context, loanID uuid.UUID) (*InterestSummary, error)

	LoanSummary(ctx context.Context, memberID uuid.UUID) (*LoanSummary, error)
	LoanStats(ctx context.Context) (*LoanStats, error)
}
