package submitter

import "time"

// CalculateBackoff implements the piecewise retry schedule from §4.I:
// monotone non-decreasing and capped at 3h. The retry count this
// applies to is persisted per message ID so a restart reconstructs an
// equivalent wait instead of resetting to zero.
func CalculateBackoff(retries uint32) time.Duration {
	switch {
	case retries == 0:
		return 0
	case retries <= 4:
		return 10 * time.Second
	case retries <= 9:
		return 60 * time.Second
	case retries <= 19:
		return 5 * time.Minute
	case retries <= 29:
		return 30 * time.Minute
	default:
		return 3 * time.Hour
	}
}
