package domain

// AccrualResult is the aggregate transition computed for one delivery.
type AccrualResult struct {
	NewTotal     int64
	PointGranted bool
}

// Accrue converts a driver's running total plus a new delivery amount into
// the next total and at most one point grant. The grant fires exactly once
// per un-reset window: only when this delivery moves the total across the
// threshold. A single delivery far above the threshold still grants one
// point; the window resets only on claim.
func Accrue(currentTotal, amount int64) AccrualResult {
	newTotal := currentTotal + amount
	return AccrualResult{
		NewTotal:     newTotal,
		PointGranted: currentTotal < Threshold && newTotal >= Threshold,
	}
}
