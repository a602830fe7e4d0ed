package utils

import (
	"math"
	"strconv"
)

// FormatCurrency renders amount as dollars with two decimals, e.g. $1234.50.
// Negative amounts have no rendering and report false.
func FormatCurrency(amount float64) (string, bool) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "", false
	}
	return "$" + strconv.FormatFloat(amount, 'f', 2, 64), true
}
