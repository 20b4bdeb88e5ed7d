// internal/lending/domain.go
package lending

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanStatus enumerates the loan state machine. The only transition is
// ACTIVE -> COMPLETED, triggered by a principal payment that exactly zeroes
// the outstanding balance.
type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanCompleted LoanStatus = "COMPLETED"
)

// LoanType classifies the purpose of a loan.
type LoanType string

const (
	LoanPersonal  LoanType = "PERSONAL"
	LoanBusiness  LoanType = "BUSINESS"
	LoanEmergency LoanType = "EMERGENCY"
	LoanEducation LoanType = "EDUCATION"
)

// ValidLoanType reports whether t is one of the known loan types.
func ValidLoanType(t LoanType) bool {
	switch t {
	case LoanPersonal, LoanBusiness, LoanEmergency, LoanEducation:
		return true
	}
	return false
}

// Domain errors. Every rejected operation surfaces the precondition that
// failed; handlers map these to HTTP statuses with errors.Is.
var (
	ErrLoanNotFound            = errors.New("loan not found")
	ErrMemberNotFound          = errors.New("member not found")
	ErrInterestPaymentNotFound = errors.New("interest payment not found")
	ErrLoanNotActive           = errors.New("loan is not active")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrAmountExceedsBalance    = errors.New("payment amount exceeds outstanding balance")
	ErrAmountExceedsDue        = errors.New("payment amount exceeds total due amount")
	ErrNoOutstandingBalance    = errors.New("no outstanding balance for interest calculation")
	ErrDuplicatePeriod         = errors.New("interest already generated for this period")
	ErrInvalidPeriod           = errors.New("period must be a first-of-month date in YYYY-MM-01 format")
	ErrInvalidRate             = errors.New("monthly interest rate must be a positive decimal fraction")
	ErrInvalidLoanType         = errors.New("unknown loan type")
	ErrInvalidStatus           = errors.New("unknown loan status")
)

// Loan is a disbursed member loan. MonthlyInterestRate is a decimal
// fraction (0.02 means 2% per month) across the whole API; principal and
// the rate are immutable after creation.
type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	MemberID            uuid.UUID       `json:"member_id"`
	LoanNumber          string          `json:"loan_number"`
	LoanType            LoanType        `json:"loan_type"`
	PrincipalAmount     decimal.Decimal `json:"principal_amount"`
	MonthlyInterestRate decimal.Decimal `json:"monthly_interest_rate"`
	Status              LoanStatus      `json:"status"`
	Notes               string          `json:"notes,omitempty"`
	DisbursementMonth   string          `json:"disbursement_month"`
	InterestStartMonth  string          `json:"interest_start_month"`
	EnteredBy           uuid.UUID       `json:"entered_by"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Payment is a principal repayment. Interest is tracked separately in
// InterestPayment; the two are never mixed in one ledger.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	PaymentDate time.Time       `json:"payment_date"`
	Amount      decimal.Decimal `json:"amount"`
	EnteredBy   uuid.UUID       `json:"entered_by"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InterestPayment records one period's interest transaction. Period is the
// calendar month as a YYYY-MM-01 string. PreviousInterestDue carries the
// unpaid due from earlier periods; DueAfterPayment is what remains after
// PaidAmount is applied, so consecutive records form a carry-forward chain.
type InterestPayment struct {
	ID                  uuid.UUID       `json:"id"`
	LoanID              uuid.UUID       `json:"loan_id"`
	Period              string          `json:"payment_date"`
	PreviousInterestDue decimal.Decimal `json:"previous_interest_due"`
	InterestAmount      decimal.Decimal `json:"interest_amount"`
	PenaltyAmount       decimal.Decimal `json:"penalty_amount"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	DueAfterPayment     decimal.Decimal `json:"due_after_interest_payment"`
	EnteredBy           uuid.UUID       `json:"entered_by"`
	CreatedAt           time.Time       `json:"created_at"`
}

// PaymentSummary aggregates principal repayments for one loan or the whole
// book.
type PaymentSummary struct {
	TotalPayments        int             `json:"total_payments"`
	TotalPrincipalPaid   decimal.Decimal `json:"total_principal_paid"`
	FirstPaymentDate     *time.Time      `json:"first_payment_date"`
	LastPaymentDate      *time.Time      `json:"last_payment_date"`
	AveragePaymentAmount decimal.Decimal `json:"average_payment_amount"`
}

// InterestSummary aggregates interest records: how much interest was
// generated and how much of it has been paid.
type InterestSummary struct {
	TotalPayments   int             `json:"total_payments"`
	TotalInterest   decimal.Decimal `json:"total_interest"`
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
}

// LoanSummary groups the (optionally member-filtered) loan set by status.
// Loans with a status outside the known set still count toward TotalLoans
// and TotalPrincipalAmount but appear in neither bucket.
type LoanSummary struct {
	TotalLoans           int             `json:"total_loans"`
	ActiveLoans          int             `json:"active_loans"`
	CompletedLoans       int             `json:"completed_loans"`
	TotalPrincipalAmount decimal.Decimal `json:"total_principal_amount"`
}

// LoanBalance is one active loan's outstanding position inside the
// portfolio breakdown.
type LoanBalance struct {
	LoanID             uuid.UUID       `json:"loan_id"`
	LoanNumber         string          `json:"loan_number"`
	PrincipalAmount    decimal.Decimal `json:"principal_amount"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
}

// LoanStats is the portfolio-wide statistics view. TotalOutstandingBalance
// and TotalPrincipalDue are documented to carry the same value (both sum
// outstanding balances over active loans); they are kept as separate fields
// because callers consume both.
type LoanStats struct {
	TotalLoans           int             `json:"total_loans"`
	ActiveLoans          int             `json:"active_loans"`
	CompletedLoans       int             `json:"completed_loans"`
	TotalPrincipalAmount decimal.Decimal `json:"total_principal_amount"`

	TotalOutstandingBalance decimal.Decimal `json:"total_outstanding_balance"`
	TotalPrincipalDue       decimal.Decimal `json:"total_principal_due"`

	TotalInterestGenerated decimal.Decimal `json:"total_interest_generated"`
	TotalInterestPaid      decimal.Decimal `json:"total_interest_paid"`
	TotalInterestDue       decimal.Decimal `json:"total_interest_due"`

	TotalDue decimal.Decimal `json:"total_due"`

	AverageLoanAmount decimal.Decimal `json:"average_loan_amount"`
	RecoveryRate      decimal.Decimal `json:"recovery_rate"`

	ActiveLoanBalances   []LoanBalance `json:"active_loan_balances"`
	InterestPaymentCount int           `json:"interest_payment_count"`
}

// LoanDetail pairs a loan with its computed balances for member-facing
// listings.
type LoanDetail struct {
	Loan               Loan            `json:"loan"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	InterestSummary    InterestSummary `json:"interest_summary"`
}

// ListFilter narrows ListLoans. Zero values mean "no filter".
type ListFilter struct {
	Status   LoanStatus
	MemberID uuid.UUID
	LoanType LoanType
	Search   string
	Page     int
	Limit    int
}
