package util

import (
	"fmt"
	"time"
)

// FormatDuration renders a call duration as MM:SS, growing to H:MM:SS after
// the first hour. Negative durations clamp to zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatClock renders a message timestamp as a local wall-clock time.
func FormatClock(t time.Time) string {
	return t.Local().Format("15:04")
}
