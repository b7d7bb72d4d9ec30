package domain

import "strconv"

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
