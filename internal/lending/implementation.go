// internal/lending/implementation.go
package lending

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// service implements the Service interface on top of Postgres.
type service struct {
	db      *sql.DB
	members MemberDirectory
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService creates a new lending service instance.
func NewService(db *sql.DB, members MemberDirectory) Service {
	return &service{
		db:      db,
		members: members,
		tracer:  otel.Tracer("ujjiboni/lending"),
		now:     time.Now,
	}
}

const loanColumns = `id, member_id, loan_number, loan_type, principal_amount, monthly_interest_rate,
	status, COALESCE(notes, ''), disbursement_month, COALESCE(interest_start_month, ''), entered_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*Loan, error) {
	loan := &Loan{}
	err := row.Scan(
		&loan.ID,
		&loan.MemberID,
		&loan.LoanNumber,
		&loan.LoanType,
		&loan.PrincipalAmount,
		&loan.MonthlyInterestRate,
		&loan.Status,
		&loan.Notes,
		&loan.DisbursementMonth,
		&loan.InterestStartMonth,
		&loan.EnteredBy,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// CreateLoan validates the member reference, assigns the next loan number
// within the current year and persists the loan as ACTIVE.
func (s *service) CreateLoan(ctx context.Context, in CreateLoanInput) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "lending.create_loan",
		trace.WithAttributes(
			attribute.String("member.id", in.MemberID.String()),
			attribute.String("loan.type", string(in.LoanType)),
		),
	)
	defer span.End()

	if !in.PrincipalAmount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !in.MonthlyInterestRate.IsPositive() {
		return nil, ErrInvalidRate
	}
	if in.LoanType == "" {
		in.LoanType = LoanPersonal
	}
	if !ValidLoanType(in.LoanType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLoanType, in.LoanType)
	}
	if !ValidPeriod(in.DisbursementMonth) {
		return nil, fmt.Errorf("%w: disbursement month %q", ErrInvalidPeriod, in.DisbursementMonth)
	}
	if in.InterestStartMonth != "" && !ValidPeriod(in.InterestStartMonth) {
		return nil, fmt.Errorf("%w: interest start month %q", ErrInvalidPeriod, in.InterestStartMonth)
	}

	exists, err := s.members.MemberExists(ctx, in.MemberID)
	if err != nil {
		return nil, fmt.Errorf("check member: %w", err)
	}
	if !exists {
		return nil, ErrMemberNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Serialize number generation on the year's current maximum so two
	// concurrent entries cannot claim the same sequence.
	year := s.now().Year()
	var lastNumber string
	// Longer numbers sort first so the scan stays numeric once a year
	// outgrows the four-digit padding.
	err = tx.QueryRowContext(ctx, `
		SELECT loan_number
		FROM loans
		WHERE loan_number LIKE $1
		ORDER BY length(loan_number) DESC, loan_number DESC
		LIMIT 1
		FOR UPDATE
	`, loanNumberPrefix(year)+"%").Scan(&lastNumber)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query last loan number: %w", err)
	}

	loan := &Loan{
		ID:                  uuid.New(),
		MemberID:            in.MemberID,
		LoanNumber:          nextLoanNumber(lastNumber, year),
		LoanType:            in.LoanType,
		PrincipalAmount:     in.PrincipalAmount,
		MonthlyInterestRate: in.MonthlyInterestRate,
		Status:              LoanActive,
		Notes:               in.Notes,
		DisbursementMonth:   in.DisbursementMonth,
		InterestStartMonth:  in.InterestStartMonth,
		EnteredBy:           in.EnteredBy,
		CreatedAt:           s.now().UTC(),
		UpdatedAt:           s.now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loans (id, member_id, loan_number, loan_type, principal_amount, monthly_interest_rate,
			status, notes, disbursement_month, interest_start_month, entered_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, loan.ID, loan.MemberID, loan.LoanNumber, loan.LoanType, loan.PrincipalAmount, loan.MonthlyInterestRate,
		loan.Status, loan.Notes, loan.DisbursementMonth, loan.InterestStartMonth, loan.EnteredBy,
		loan.CreatedAt, loan.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert loan: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.String("loan.number", loan.LoanNumber))
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return loan, nil
}

// ListLoans returns a filtered page of loans plus the unpaged total.
func (s *service) ListLoans(ctx context.Context, f ListFilter) ([]*Loan, int, error) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != "" {
		conds = append(conds, "status = "+arg(f.Status))
	}
	if f.MemberID != uuid.Nil {
		conds = append(conds, "member_id = "+arg(f.MemberID))
	}
	if f.LoanType != "" {
		conds = append(conds, "loan_type = "+arg(f.LoanType))
	}
	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, "(loan_number ILIKE "+p+" OR notes ILIKE "+p+")")
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM loans"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count loans: %w", err)
	}

	page, limit := normalizePage(f.Page, f.Limit)
	query := "SELECT " + loanColumns + " FROM loans" + where +
		" ORDER BY created_at DESC" +
		" LIMIT " + arg(limit) + " OFFSET " + arg((page-1)*limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()

	var loans []*Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate loans: %w", err)
	}

	return loans, total, nil
}

// UpdateLoan patches notes and status. Principal and rate are immutable;
// COMPLETED never transitions back to ACTIVE.
func (s *service) UpdateLoan(ctx context.Context, id uuid.UUID, in UpdateLoanInput) (*Loan, error) {
	loan, err := s.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Notes != nil {
		loan.Notes = *in.Notes
	}
	if in.Status != nil {
		switch *in.Status {
		case LoanActive, LoanCompleted:
			if loan.Status == LoanCompleted && *in.Status == LoanActive {
				return nil, ErrLoanNotActive
			}
			loan.Status = *in.Status
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *in.Status)
		}
	}
	loan.UpdatedAt = s.now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE loans SET notes = $1, status = $2, updated_at = $3 WHERE id = $4
	`, loan.Notes, loan.Status, loan.UpdatedAt, loan.ID)
	if err != nil {
		return nil, fmt.Errorf("update loan: %w", err)
	}

	return loan, nil
}

// MemberLoans lists a member's loans with their outstanding balances and
// interest summaries.
func (s *service) MemberLoans(ctx context.Context, memberID uuid.UUID) ([]*LoanDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE member_id = $1 ORDER BY created_at DESC`, memberID)
	if err != nil {
		return nil, fmt.Errorf("query member loans: %w", err)
	}
	defer rows.Close()

	var details []*LoanDetail
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		details = append(details, &LoanDetail{Loan: *loan})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate loans: %w", err)
	}

	for _, d := range details {
		balance, err := s.OutstandingBalance(ctx, d.Loan.ID)
		if err != nil {
			return nil, err
		}
		d.OutstandingBalance = balance

		summary, err := s.InterestSummary(ctx, d.Loan.ID)
		if err != nil {
			return nil, err
		}
		d.InterestSummary = *summary
	}

	return details, nil
}

// OutstandingBalance computes principal minus the sum of recorded principal
// repayments as a single grouped query. The result is not clamped; writes
// are validated so it stays non-negative.
func (s *service) OutstandingBalance(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT l.principal_amount - COALESCE(SUM(p.amount), 0)
		FROM loans l
		LEFT JOIN loan_payments p ON p.loan_id = l.id
		WHERE l.id = $1
		GROUP BY l.principal_amount
	`, loanID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, ErrLoanNotFound
		}
		return decimal.Zero, fmt.Errorf("compute outstanding balance: %w", err)
	}
	return balance, nil
}

// outstandingBalanceTx is OutstandingBalance against an open transaction,
// used by mutations that must read the balance under the loan row lock.
func (s *service) outstandingBalanceTx(ctx context.Context, tx *sql.Tx, loan *Loan) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM loan_payments WHERE loan_id = $1
	`, loan.ID).Scan(&paid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return loan.PrincipalAmount.Sub(paid), nil
}

// lockLoan reads the loan inside tx with a row lock, serializing all
// financial mutations per loan identity.
func (s *service) lockLoan(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*Loan, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("lock loan: %w", err)
	}
	return loan, nil
}

// RecordPayment persists a principal repayment. The balance check and the
// insert run under the loan's row lock, so two concurrent payments cannot
// both be accepted against the same balance. When the amount exactly equals
// the balance before the payment, the loan transitions to COMPLETED; any
// smaller amount leaves it ACTIVE.
func (s *service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Payment, bool, error) {
	ctx, span := s.tracer.Start(ctx, "lending.record_payment",
		trace.WithAttributes(
			attribute.String("loan.id", in.LoanID.String()),
			attribute.String("payment.amount", in.Amount.String()),
		),
	)
	defer span.End()

	if !in.Amount.IsPositive() {
		return nil, false, ErrInvalidAmount
	}
	if in.PaymentDate.IsZero() {
		in.PaymentDate = s.now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.lockLoan(ctx, tx, in.LoanID)
	if err != nil {
		return nil, false, err
	}
	if loan.Status != LoanActive {
		return nil, false, ErrLoanNotActive
	}

	balanceBefore, err := s.outstandingBalanceTx(ctx, tx, loan)
	if err != nil {
		return nil, false, err
	}
	if in.Amount.GreaterThan(balanceBefore) {
		return nil, false, ErrAmountExceedsBalance
	}

	payment := &Payment{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		PaymentDate: in.PaymentDate,
		Amount:      in.Amount,
		EnteredBy:   in.EnteredBy,
		Notes:       in.Notes,
		CreatedAt:   s.now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, payment_date, amount, entered_by, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, payment.ID, payment.LoanID, payment.PaymentDate, payment.Amount, payment.EnteredBy, payment.Notes, payment.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert payment: %w", err)
	}

	// Exact equality is the payoff trigger, not a threshold.
	completed := in.Amount.Equal(balanceBefore)
	if completed {
		_, err = tx.ExecContext(ctx, `
			UPDATE loans SET status = $1, updated_at = $2 WHERE id = $3
		`, LoanCompleted, s.now().UTC(), loan.ID)
		if err != nil {
			return nil, false, fmt.Errorf("complete loan: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Bool("loan.completed", completed))
	return payment, completed, nil
}

// ListPayments returns a page of a loan's principal repayments, newest
// payment date first.
func (s *service) ListPayments(ctx context.Context, loanID uuid.UUID, page, limit int) ([]*Payment, int, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loan_payments WHERE loan_id = $1`, loanID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loan_id, payment_date, amount, entered_by, COALESCE(notes, ''), created_at
		FROM loan_payments
		WHERE loan_id = $1
		ORDER BY payment_date DESC
		LIMIT $2 OFFSET $3
	`, loanID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p := &Payment{}
		if err := rows.Scan(&p.ID, &p.LoanID, &p.PaymentDate, &p.Amount, &p.EnteredBy, &p.Notes, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payments: %w", err)
	}

	return payments, total, nil
}

// PaymentSummary aggregates principal repayments, for one loan when loanID
// is set or across the whole book when it is uuid.Nil.
func (s *service) PaymentSummary(ctx context.Context, loanID uuid.UUID) (*PaymentSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), MIN(payment_date), MAX(payment_date), COALESCE(AVG(amount), 0)
		FROM loan_payments
	`
	var args []any
	if loanID != uuid.Nil {
		query += ` WHERE loan_id = $1`
		args = append(args, loanID)
	}

	summary := &PaymentSummary{}
	var first, last sql.NullTime
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalPayments,
		&summary.TotalPrincipalPaid,
		&first,
		&last,
		&summary.AveragePaymentAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("payment summary: %w", err)
	}
	if first.Valid {
		summary.FirstPaymentDate = &first.Time
	}
	if last.Valid {
		summary.LastPaymentDate = &last.Time
	}
	return summary, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return page, limit
}
