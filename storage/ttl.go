package storage

import (
	"strconv"
	"time"
)

// DeleteAfterChoices lists the accepted delete_after values in minutes.
// 0 means the image is kept forever.
var DeleteAfterChoices = []int{0, 5, 15, 30, 60, 180, 360, 720, 1440, 2880, 7200, 10080, 14400, 43200, 129600}

// ParseDeleteAfter maps a delete_after form value onto a deadline relative to
// now. Values outside DeleteAfterChoices mean "never expire" and yield nil.
func ParseDeleteAfter(input string, now time.Time) *time.Time {
	for _, m := range DeleteAfterChoices {
		if m > 0 && strconv.Itoa(m) == input {
			t := now.Add(time.Duration(m) * time.Minute)
			return &t
		}
	}
	return nil
}
