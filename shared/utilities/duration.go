package utilities

import (
	"fmt"
	"time"
)

// HumanizeDuration renders whole hours or minutes the way they read in a
// sentence ("1 hour", "15 minutes"). Anything finer falls back to d.String().
func HumanizeDuration(d time.Duration) string {
	switch {
	case d == time.Hour:
		return "1 hour"
	case d > 0 && d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d == time.Minute:
		return "1 minute"
	case d > 0 && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}
