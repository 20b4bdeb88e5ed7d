// internal/lending/period.go
package lending

import (
	"fmt"
	"regexp"
	"time"
)

const periodLayout = "2006-01-02"

var periodPattern = regexp.MustCompile(`^\d{4}-(?:0[1-9]|1[0-2])-01$`)

// ValidPeriod reports whether s is a first-of-month date string, the only
// shape an interest period may take.
func ValidPeriod(s string) bool {
	return periodPattern.MatchString(s)
}

func parsePeriod(s string) (time.Time, error) {
	if !ValidPeriod(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	t, err := time.Parse(periodLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return t, nil
}

// NextPeriod returns the first-of-month string one calendar month after s.
func NextPeriod(s string) (string, error) {
	t, err := parsePeriod(s)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 1, 0).Format(periodLayout), nil
}

// startPeriod picks the period for a loan's first interest record: the
// interest start month when the loan carries one, otherwise one month after
// disbursement.
func startPeriod(loan *Loan) (string, error) {
	if loan.InterestStartMonth != "" {
		if !ValidPeriod(loan.InterestStartMonth) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, loan.InterestStartMonth)
		}
		return loan.InterestStartMonth, nil
	}
	return NextPeriod(loan.DisbursementMonth)
}
