// internal/lending/interest.go
package lending

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const interestColumns = `id, loan_id, period, previous_interest_due, interest_amount,
	penalty_amount, paid_amount, due_after_payment, entered_by, created_at`

func scanInterestPayment(row rowScanner) (*InterestPayment, error) {
	ip := &InterestPayment{}
	err := row.Scan(
		&ip.ID,
		&ip.LoanID,
		&ip.Period,
		&ip.PreviousInterestDue,
		&ip.InterestAmount,
		&ip.PenaltyAmount,
		&ip.PaidAmount,
		&ip.DueAfterPayment,
		&ip.EnteredBy,
		&ip.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return ip, nil
}

// interestSummaryTx aggregates a loan's interest records inside tx so the
// carry-forward due is read under the loan row lock.
func (s *service) interestSummaryTx(ctx context.Context, tx *sql.Tx, loanID uuid.UUID) (*InterestSummary, error) {
	summary := &InterestSummary{}
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(interest_amount), 0), COALESCE(SUM(paid_amount), 0)
		FROM interest_payments
		WHERE loan_id = $1
	`, loanID).Scan(&summary.TotalPayments, &summary.TotalInterest, &summary.TotalPaidAmount)
	if err != nil {
		return nil, fmt.Errorf("interest summary: %w", err)
	}
	return summary, nil
}

// carriedDue is the unpaid interest carried from prior periods: generated
// minus paid, floored at zero.
func carriedDue(summary *InterestSummary) decimal.Decimal {
	due := summary.TotalInterest.Sub(summary.TotalPaidAmount)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// interestDue computes one period's accrual from the outstanding balance
// and the loan's monthly rate (a decimal fraction, 0.02 = 2%).
func interestDue(balance, monthlyRate decimal.Decimal) decimal.Decimal {
	return balance.Mul(monthlyRate)
}

// GenerateMonthlyInterest creates the interest obligation for a loan's next
// period: due = outstanding balance x monthly rate. The schedule advances
// from the most recent period with a recorded payment, one calendar month at
// a time, starting at the loan's interest start month. A period that already
// carries a record cannot be generated again, so an unpaid obligation must be
// transacted before the schedule moves on.
func (s *service) GenerateMonthlyInterest(ctx context.Context, loanID, enteredBy uuid.UUID) (*InterestPayment, error) {
	ctx, span := s.tracer.Start(ctx, "lending.generate_interest",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())),
	)
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.lockLoan(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanActive {
		return nil, ErrLoanNotActive
	}

	balance, err := s.outstandingBalanceTx(ctx, tx, loan)
	if err != nil {
		return nil, err
	}
	if !balance.IsPositive() {
		return nil, ErrNoOutstandingBalance
	}

	var lastPeriod string
	err = tx.QueryRowContext(ctx, `
		SELECT period FROM interest_payments
		WHERE loan_id = $1 AND paid_amount > 0
		ORDER BY period DESC
		LIMIT 1
	`, loanID).Scan(&lastPeriod)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query last period: %w", err)
	}

	var period string
	if lastPeriod != "" {
		period, err = NextPeriod(lastPeriod)
	} else {
		period, err = startPeriod(loan)
	}
	if err != nil {
		return nil, err
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM interest_payments WHERE loan_id = $1 AND period = $2)
	`, loanID, period).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check period: %w", err)
	}
	if exists {
		return nil, ErrDuplicatePeriod
	}

	summary, err := s.interestSummaryTx(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}

	previousDue := carriedDue(summary)
	accrued := interestDue(balance, loan.MonthlyInterestRate)

	ip := &InterestPayment{
		ID:                  uuid.New(),
		LoanID:              loanID,
		Period:              period,
		PreviousInterestDue: previousDue,
		InterestAmount:      accrued,
		PenaltyAmount:       decimal.Zero,
		PaidAmount:          decimal.Zero,
		DueAfterPayment:     previousDue.Add(accrued),
		EnteredBy:           enteredBy,
		CreatedAt:           s.now().UTC(),
	}

	if err := s.insertInterestPayment(ctx, tx, ip); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(
		attribute.String("interest.period", period),
		attribute.String("interest.amount", accrued.String()),
	)
	return ip, nil
}

// RecordInterestPayment applies a payment against a loan's interest due.
// Total due for the transaction is the carried-over due plus the current
// period's accrual plus the penalty; the paid amount may cover it partially
// but never exceed it. A period that already has a record (generated, or a
// prior partial payment) is not accrued again; its due arrives through the
// carried-over amount. Interest delinquency never changes loan status.
func (s *service) RecordInterestPayment(ctx context.Context, in RecordInterestInput) (*InterestPayment, error) {
	ctx, span := s.tracer.Start(ctx, "lending.record_interest_payment",
		trace.WithAttributes(
			attribute.String("loan.id", in.LoanID.String()),
			attribute.String("interest.paid", in.PaidAmount.String()),
		),
	)
	defer span.End()

	if in.PaidAmount.IsNegative() || in.PenaltyAmount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	if !ValidPeriod(in.Period) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPeriod, in.Period)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	loan, err := s.lockLoan(ctx, tx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != LoanActive {
		return nil, ErrLoanNotActive
	}

	balance, err := s.outstandingBalanceTx(ctx, tx, loan)
	if err != nil {
		return nil, err
	}

	summary, err := s.interestSummaryTx(ctx, tx, in.LoanID)
	if err != nil {
		return nil, err
	}

	var periodAccrued bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM interest_payments WHERE loan_id = $1 AND period = $2)
	`, in.LoanID, in.Period).Scan(&periodAccrued)
	if err != nil {
		return nil, fmt.Errorf("check period: %w", err)
	}

	previousDue := carriedDue(summary)
	currentInterest := decimal.Zero
	if !periodAccrued {
		currentInterest = interestDue(balance, loan.MonthlyInterestRate)
	}
	totalDue := previousDue.Add(currentInterest).Add(in.PenaltyAmount)

	if in.PaidAmount.GreaterThan(totalDue) {
		return nil, ErrAmountExceedsDue
	}

	ip := &InterestPayment{
		ID:                  uuid.New(),
		LoanID:              in.LoanID,
		Period:              in.Period,
		PreviousInterestDue: previousDue,
		InterestAmount:      currentInterest,
		PenaltyAmount:       in.PenaltyAmount,
		PaidAmount:          in.PaidAmount,
		DueAfterPayment:     totalDue.Sub(in.PaidAmount),
		EnteredBy:           in.EnteredBy,
		CreatedAt:           s.now().UTC(),
	}

	if err := s.insertInterestPayment(ctx, tx, ip); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.String("interest.due_after", ip.DueAfterPayment.String()))
	return ip, nil
}

func (s *service) insertInterestPayment(ctx context.Context, tx *sql.Tx, ip *InterestPayment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO interest_payments (id, loan_id, period, previous_interest_due, interest_amount,
			penalty_amount, paid_amount, due_after_payment, entered_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ip.ID, ip.LoanID, ip.Period, ip.PreviousInterestDue, ip.InterestAmount,
		ip.PenaltyAmount, ip.PaidAmount, ip.DueAfterPayment, ip.EnteredBy, ip.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert interest payment: %w", err)
	}
	return nil
}

// ListInterestPayments returns a loan's interest records, newest first,
// along with their summary.
func (s *service) ListInterestPayments(ctx context.Context, loanID uuid.UUID) ([]*InterestPayment, *InterestSummary, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+interestColumns+`
		FROM interest_payments
		WHERE loan_id = $1
		ORDER BY created_at DESC
	`, loanID)
	if err != nil {
		return nil, nil, fmt.Errorf("query interest payments: %w", err)
	}
	defer rows.Close()

	var payments []*InterestPayment
	for rows.Next() {
		ip, err := scanInterestPayment(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan interest payment: %w", err)
		}
		payments = append(payments, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate interest payments: %w", err)
	}

	summary, err := s.InterestSummary(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return payments, summary, nil
}

// MemberInterestPayments pages through the interest records of all of a
// member's loans.
func (s *service) MemberInterestPayments(ctx context.Context, memberID uuid.UUID, page, limit int) ([]*InterestPayment, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM interest_payments ip
		JOIN loans l ON l.id = ip.loan_id
		WHERE l.member_id = $1
	`, memberID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count member interest payments: %w", err)
	}

	page, limit = normalizePage(page, limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ip.id, ip.loan_id, ip.period, ip.previous_interest_due, ip.interest_amount,
			ip.penalty_amount, ip.paid_amount, ip.due_after_payment, ip.entered_by, ip.created_at
		FROM interest_payments ip
		JOIN loans l ON l.id = ip.loan_id
		WHERE l.member_id = $1
		ORDER BY ip.created_at DESC
		LIMIT $2 OFFSET $3
	`, memberID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query member interest payments: %w", err)
	}
	defer rows.Close()

	var payments []*InterestPayment
	for rows.Next() {
		ip, err := scanInterestPayment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan interest payment: %w", err)
		}
		payments = append(payments, ip)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate interest payments: %w", err)
	}

	return payments, total, nil
}

// GetInterestPayment retrieves one interest record by its ID.
func (s *service) GetInterestPayment(ctx context.Context, id uuid.UUID) (*InterestPayment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+interestColumns+` FROM interest_payments WHERE id = $1`, id)
	ip, err := scanInterestPayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInterestPaymentNotFound
		}
		return nil, fmt.Errorf("get interest payment: %w", err)
	}
	return ip, nil
}

// InterestSummary aggregates interest records, for one loan when loanID is
// set or across the whole book when it is uuid.Nil.
func (s *service) InterestSummary(ctx context.Context, loanID uuid.UUID) (*InterestSummary, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(interest_amount), 0), COALESCE(SUM(paid_amount), 0)
		FROM interest_payments
	`
	var args []any
	if loanID != uuid.Nil {
		query += ` WHERE loan_id = $1`
		args = append(args, loanID)
	}

	summary := &InterestSummary{}
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalPayments, &summary.TotalInterest, &summary.TotalPaidAmount)
	if err != nil {
		return nil, fmt.Errorf("interest summary: %w", err)
	}
	return summary, nil
}
