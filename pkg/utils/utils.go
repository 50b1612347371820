package utils

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// IsNumericID reports whether id looks like a server-issued id
func IsNumericID(id string) bool {
	n, err := strconv.ParseInt(id, 10, 64)
	return err == nil && n > 0
}

// ParseAmount parses a positive decimal amount such as "1250.50"
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", amount)
	}
	return amount, nil
}

// AddPeriods moves t forward by n weeks or n calendar months
func AddPeriods(t time.Time, frequency string, n int) (time.Time, error) {
	switch frequency {
	case "weekly":
		return t.AddDate(0, 0, 7*n), nil
	case "monthly":
		return t.AddDate(0, n, 0), nil
	}
	return time.Time{}, fmt.Errorf("unknown frequency %q", frequency)
}

// ClampZero returns d, or zero when d is negative
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
