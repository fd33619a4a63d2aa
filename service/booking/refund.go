package booking

import "time"

// RefundCutoff is how far before the appointment start a cancellation must
// happen to qualify for a full refund.
const RefundCutoff = 24 * time.Hour

// ComputeRefund returns the refund owed for a cancellation at `now` of an
// appointment starting at `start`, where `paid` was charged. Cancellations
// strictly more than 24 hours before the start refund everything; anything
// later refunds nothing. Pure function: callers inject the clock.
func ComputeRefund(start, now time.Time, paid float64) float64 {
	if start.Sub(now) > RefundCutoff {
		return paid
	}
	return 0
}
