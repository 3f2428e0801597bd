package submitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBackoffScheduleMonotonicAndBounded exercises testable property 7:
// CalculateBackoff is monotone non-decreasing and capped at 3h.
func TestBackoffScheduleMonotonicAndBounded(t *testing.T) {
	prev := time.Duration(-1)
	for retries := uint32(0); retries <= 200; retries++ {
		d := CalculateBackoff(retries)
		require.GreaterOrEqualf(t, d, prev, "retries=%d", retries)
		require.LessOrEqual(t, d, 3*time.Hour)
		prev = d
	}
}

func TestBackoffScheduleLiteralValues(t *testing.T) {
	cases := []struct {
		retries uint32
		want    time.Duration
	}{
		{0, 0},
		{1, 10 * time.Second},
		{4, 10 * time.Second},
		{5, 60 * time.Second},
		{9, 60 * time.Second},
		{10, 5 * time.Minute},
		{19, 5 * time.Minute},
		{20, 30 * time.Minute},
		{29, 30 * time.Minute},
		{30, 3 * time.Hour},
		{1000, 3 * time.Hour},
	}
	for _, c := range cases {
		require.Equal(t, c.want, CalculateBackoff(c.retries), "retries=%d", c.retries)
	}
}
