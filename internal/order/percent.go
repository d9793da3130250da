// Package order compiles validated trade signals into percentage based
// webhook orders.
package order

// PercentFromEntry returns the offset of target from entry in percent.
// It is positive above entry and negative below; callers must not flip it.
func PercentFromEntry(entry, target float64) float64 {
	return (target/entry - 1) * 100
}

// PriceAtPercent is the inverse of PercentFromEntry.
func PriceAtPercent(entry, pct float64) float64 {
	return entry * (1 + pct/100)
}
