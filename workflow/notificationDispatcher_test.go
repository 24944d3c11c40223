package workflow

import (
	"testing"
	"time"
)

func TestNextBackoffSchedule(t *testing.T) {
	initial := 5 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{5, 80 * time.Second},
		{7, 320 * time.Second},
		// Cap at ten minutes from attempt 8 on.
		{8, 10 * time.Minute},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := nextBackoff(initial, tc.attempt); got != tc.want {
			t.Errorf("nextBackoff(attempt=%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}
