// Package money implements minor-unit (cent) arithmetic for the marketplace.
// All amounts in the system are int64 cents; percentages are quantized to a
// whole cent with half-up rounding.
package money

import "fmt"

// Percent returns pct% of amount in cents, rounded half-up.
// amount must be non-negative.
func Percent(amount int64, pct int) int64 {
	return (amount*int64(pct) + 50) / 100
}

// Split divides total across len(ratios) legs. Every leg except the last is
// quantized half-up from its ratio; the last leg takes the remainder so the
// legs always sum exactly to total.
func Split(total int64, ratios ...int) []int64 {
	legs := make([]int64, len(ratios))
	var allocated int64
	for i, r := range ratios {
		if i == len(ratios)-1 {
			legs[i] = total - allocated
			break
		}
		legs[i] = Percent(total, r)
		allocated += legs[i]
	}
	return legs
}

// FormatUSD renders cents as a dollar string, e.g. 11000 -> "$110.00".
func FormatUSD(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
