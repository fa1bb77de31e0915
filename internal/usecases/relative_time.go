package usecases

import (
	"fmt"
	"time"
)

const absoluteDateLayout = "Jan 2, 2006"

// RelativeTime describes t relative to now: "just now" under an hour,
// hours under a day, days under a week, otherwise an absolute date.
func RelativeTime(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "recently"
	}
	d := now.Sub(*t)
	switch {
	case d < time.Hour:
		return "just now"
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour") + " ago"
	case d < 7*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day") + " ago"
	default:
		return t.In(now.Location()).Format(absoluteDateLayout)
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
