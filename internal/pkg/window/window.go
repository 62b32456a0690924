// Package window computes sliding time windows.
package window

import "time"

// Bounds returns the half-open interval [now-size, now).
func Bounds(now time.Time, size time.Duration) (start, end time.Time) {
	return now.Add(-size), now
}

// Start returns the inclusive lower bound of the window ending at now.
func Start(now time.Time, size time.Duration) time.Time {
	return now.Add(-size)
}

// Seconds converts a whole number of seconds into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Longest returns the largest of the given durations, or zero when none are given.
func Longest(sizes ...time.Duration) time.Duration {
	var longest time.Duration
	for _, s := range sizes {
		if s > longest {
			longest = s
		}
	}
	return longest
}
