// internal/lending/lending_test.go
package lending

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestValidPeriod(t *testing.T) {
	valid := []string{"2026-01-01", "2026-12-01", "1999-06-01"}
	for _, s := range valid {
		assert.True(t, ValidPeriod(s), s)
	}

	invalid := []string{"", "2026-01-15", "2026-13-01", "2026-00-01", "2026-1-01", "26-01-01", "2026/01/01", "2026-01-01T00:00:00Z"}
	for _, s := range invalid {
		assert.False(t, ValidPeriod(s), s)
	}
}

func TestNextPeriod(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"2026-01-01", "2026-02-01"},
		{"2026-11-01", "2026-12-01"},
		{"2026-12-01", "2027-01-01"},
	}
	for _, c := range cases {
		got, err := NextPeriod(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := NextPeriod("2026-01-15")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestStartPeriod(t *testing.T) {
	loan := &Loan{DisbursementMonth: "2026-03-01"}
	got, err := startPeriod(loan)
	require.NoError(t, err)
	assert.Equal(t, "2026-04-01", got)

	loan.InterestStartMonth = "2026-06-01"
	got, err = startPeriod(loan)
	require.NoError(t, err)
	assert.Equal(t, "2026-06-01", got)

	loan.InterestStartMonth = "not-a-period"
	_, err = startPeriod(loan)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestNextLoanNumber(t *testing.T) {
	assert.Equal(t, "LN20260001", nextLoanNumber("", 2026))
	assert.Equal(t, "LN20260002", nextLoanNumber("LN20260001", 2026))
	assert.Equal(t, "LN20260100", nextLoanNumber("LN20260099", 2026))

	// A new year restarts the sequence.
	assert.Equal(t, "LN20270001", nextLoanNumber("LN20260042", 2027))

	// Past four digits the counter keeps going without padding.
	assert.Equal(t, "LN202610000", nextLoanNumber("LN20269999", 2026))
}

func TestInterestDue(t *testing.T) {
	balance := decimal.NewFromInt(5000)
	rate := decimal.RequireFromString("0.02")
	assert.True(t, decimal.NewFromInt(100).Equal(interestDue(balance, rate)))

	assert.True(t, decimal.Zero.Equal(interestDue(decimal.Zero, rate)))
}

func TestCarriedDue(t *testing.T) {
	s := &InterestSummary{
		TotalInterest:   decimal.NewFromInt(300),
		TotalPaidAmount: decimal.NewFromInt(120),
	}
	assert.True(t, decimal.NewFromInt(180).Equal(carriedDue(s)))

	// Overpaid interest never carries a negative due forward.
	s.TotalPaidAmount = decimal.NewFromInt(500)
	assert.True(t, decimal.Zero.Equal(carriedDue(s)))
}

func TestRecoveryRate(t *testing.T) {
	rate := recoveryRate(decimal.NewFromInt(10000), decimal.NewFromInt(6000))
	assert.Equal(t, "40", rate.String())

	rate = recoveryRate(decimal.NewFromInt(3), decimal.NewFromInt(1))
	assert.Equal(t, "66.67", rate.String())

	assert.True(t, decimal.Zero.Equal(recoveryRate(decimal.Zero, decimal.Zero)))
	assert.True(t, decimal.Zero.Equal(recoveryRate(decimal.NewFromInt(-5), decimal.Zero)))
}

func TestAverageLoanAmount(t *testing.T) {
	avg := averageLoanAmount(decimal.NewFromInt(3000), 2)
	assert.Equal(t, "1500", avg.String())

	// Rounded to a whole amount.
	avg = averageLoanAmount(decimal.NewFromInt(1000), 3)
	assert.Equal(t, "333", avg.String())

	assert.True(t, decimal.Zero.Equal(averageLoanAmount(decimal.NewFromInt(1000), 0)))
}

func TestClampedInterestDue(t *testing.T) {
	due := clampedInterestDue(decimal.NewFromInt(250), decimal.NewFromInt(100))
	assert.True(t, decimal.NewFromInt(150).Equal(due))

	due = clampedInterestDue(decimal.NewFromInt(100), decimal.NewFromInt(250))
	assert.True(t, decimal.Zero.Equal(due))
}

func TestValidLoanType(t *testing.T) {
	for _, lt := range []LoanType{LoanPersonal, LoanBusiness, LoanEmergency, LoanEducation} {
		assert.True(t, ValidLoanType(lt))
	}
	assert.False(t, ValidLoanType("MORTGAGE"))
	assert.False(t, ValidLoanType(""))
}

func TestRecoveryRateProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		principal := decimal.NewFromInt(rapid.Int64Range(1, 1_000_000_00).Draw(t, "principal"))
		outstanding := decimal.NewFromInt(rapid.Int64Range(0, 1_000_000_00).Draw(t, "outstanding"))
		if outstanding.GreaterThan(principal) {
			outstanding = principal
		}

		rate := recoveryRate(principal, outstanding)
		if rate.IsNegative() || rate.GreaterThan(hundred) {
			t.Fatalf("recovery rate %s outside [0, 100]", rate)
		}
		if outstanding.IsZero() && !rate.Equal(hundred) {
			t.Fatalf("fully recovered book should report 100, got %s", rate)
		}
		if outstanding.Equal(principal) && !rate.IsZero() {
			t.Fatalf("untouched book should report 0, got %s", rate)
		}
	})
}

func TestNextLoanNumberProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(2000, 2100).Draw(t, "year")
		seq := rapid.IntRange(1, 20000).Draw(t, "seq")
		last := fmt.Sprintf("%s%04d", loanNumberPrefix(year), seq)

		next := nextLoanNumber(last, year)
		if next <= last {
			t.Fatalf("next number %q does not sort after %q", next, last)
		}
		want := fmt.Sprintf("%s%04d", loanNumberPrefix(year), seq+1)
		if next != want {
			t.Fatalf("got %q, want %q", next, want)
		}
	})
}

func TestNextPeriodProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		year := rapid.IntRange(1990, 2100).Draw(t, "year")
		month := rapid.IntRange(1, 12).Draw(t, "month")
		period := fmt.Sprintf("%04d-%02d-01", year, month)

		next, err := NextPeriod(period)
		if err != nil {
			t.Fatalf("NextPeriod(%q): %v", period, err)
		}
		if !ValidPeriod(next) {
			t.Fatalf("NextPeriod(%q) produced invalid period %q", period, next)
		}
		if next <= period {
			t.Fatalf("NextPeriod(%q) = %q does not advance", period, next)
		}
	})
}

func TestCarriedDueNeverNegative(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := &InterestSummary{
			TotalInterest:   decimal.NewFromInt(rapid.Int64Range(0, 1_000_000).Draw(t, "generated")),
			TotalPaidAmount: decimal.NewFromInt(rapid.Int64Range(0, 1_000_000).Draw(t, "paid")),
		}
		if carriedDue(s).IsNegative() {
			t.Fatalf("carried due went negative for %+v", s)
		}
	})
}
