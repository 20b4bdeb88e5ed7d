// internal/lending/loannumber.go
package lending

import (
	"fmt"
	"strconv"
	"strings"
)

// loanNumberPrefix returns the per-year prefix, e.g. "LN2026".
func loanNumberPrefix(year int) string {
	return fmt.Sprintf("LN%d", year)
}

// nextLoanNumber derives the next loan number from the highest existing
// number within the year's prefix. The sequence restarts at 1 each year and
// is zero-padded to four digits; years with more than 9999 loans keep
// counting without padding.
func nextLoanNumber(lastNumber string, year int) string {
	prefix := loanNumberPrefix(year)
	sequence := 1
	if strings.HasPrefix(lastNumber, prefix) {
		if n, err := strconv.Atoi(lastNumber[len(prefix):]); err == nil {
			sequence = n + 1
		}
	}
	return fmt.Sprintf("%s%04d", prefix, sequence)
}
