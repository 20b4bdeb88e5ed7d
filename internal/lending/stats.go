// internal/lending/stats.go
package lending

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// recoveryRate is the percentage of disbursed principal recovered so far,
// rounded to two decimals. Zero principal yields zero rather than a
// division error.
func recoveryRate(totalPrincipal, totalOutstanding decimal.Decimal) decimal.Decimal {
	if !totalPrincipal.IsPositive() {
		return decimal.Zero
	}
	return totalPrincipal.Sub(totalOutstanding).Div(totalPrincipal).Mul(hundred).Round(2)
}

// averageLoanAmount is total principal over loan count, rounded to a whole
// amount. Zero loans yields zero.
func averageLoanAmount(totalPrincipal decimal.Decimal, totalLoans int) decimal.Decimal {
	if totalLoans == 0 {
		return decimal.Zero
	}
	return totalPrincipal.Div(decimal.NewFromInt(int64(totalLoans))).Round(0)
}

// clampedInterestDue floors generated-minus-paid at zero.
func clampedInterestDue(generated, paid decimal.Decimal) decimal.Decimal {
	due := generated.Sub(paid)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// LoanSummary folds the loan set, optionally filtered by member, into the
// four status buckets. Statuses outside the known set count toward the
// totals but toward neither bucket.
func (s *service) LoanSummary(ctx context.Context, memberID uuid.UUID) (*LoanSummary, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(principal_amount), 0) FROM loans`
	var args []any
	if memberID != uuid.Nil {
		query += ` WHERE member_id = $1`
		args = append(args, memberID)
	}
	query += ` GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loan summary: %w", err)
	}
	defer rows.Close()

	summary := &LoanSummary{TotalPrincipalAmount: decimal.Zero}
	for rows.Next() {
		var status LoanStatus
		var count int
		var principal decimal.Decimal
		if err := rows.Scan(&status, &count, &principal); err != nil {
			return nil, fmt.Errorf("scan summary group: %w", err)
		}

		summary.TotalLoans += count
		summary.TotalPrincipalAmount = summary.TotalPrincipalAmount.Add(principal)

		switch status {
		case LoanActive:
			summary.ActiveLoans = count
		case LoanCompleted:
			summary.CompletedLoans = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary groups: %w", err)
	}

	return summary, nil
}

// LoanStats composes the portfolio view: the status summary, outstanding
// balances for every active loan (one grouped query rather than a query per
// loan), the interest totals, and the derived recovery metrics.
// TotalOutstandingBalance and TotalPrincipalDue carry the same value; both
// are the sum of active-loan outstanding balances.
func (s *service) LoanStats(ctx context.Context) (*LoanStats, error) {
	ctx, span := s.tracer.Start(ctx, "lending.loan_stats")
	defer span.End()

	summary, err := s.LoanSummary(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.loan_number, l.principal_amount, l.principal_amount - COALESCE(SUM(p.amount), 0)
		FROM loans l
		LEFT JOIN loan_payments p ON p.loan_id = l.id
		WHERE l.status = $1
		GROUP BY l.id, l.loan_number, l.principal_amount
		ORDER BY l.loan_number
	`, LoanActive)
	if err != nil {
		return nil, fmt.Errorf("query active balances: %w", err)
	}
	defer rows.Close()

	totalOutstanding := decimal.Zero
	var balances []LoanBalance
	for rows.Next() {
		var b LoanBalance
		if err := rows.Scan(&b.LoanID, &b.LoanNumber, &b.PrincipalAmount, &b.OutstandingBalance); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		totalOutstanding = totalOutstanding.Add(b.OutstandingBalance)
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balances: %w", err)
	}

	interest, err := s.InterestSummary(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}

	interestDue := clampedInterestDue(interest.TotalInterest, interest.TotalPaidAmount)

	return &LoanStats{
		TotalLoans:           summary.TotalLoans,
		ActiveLoans:          summary.ActiveLoans,
		CompletedLoans:       summary.CompletedLoans,
		TotalPrincipalAmount: summary.TotalPrincipalAmount,

		TotalOutstandingBalance: totalOutstanding,
		TotalPrincipalDue:       totalOutstanding,

		TotalInterestGenerated: interest.TotalInterest,
		TotalInterestPaid:      interest.TotalPaidAmount,
		TotalInterestDue:       interestDue,

		TotalDue: totalOutstanding.Add(interestDue),

		AverageLoanAmount: averageLoanAmount(summary.TotalPrincipalAmount, summary.TotalLoans),
		RecoveryRate:      recoveryRate(summary.TotalPrincipalAmount, totalOutstanding),

		ActiveLoanBalances:   balances,
		InterestPaymentCount: interest.TotalPayments,
	}, nil
}
